package merger

import (
	"github.com/davidvella/kway/monitoring"
)

// WriteFailurePolicy decides what Run does when a single record fails to
// write.
type WriteFailurePolicy int

const (
	// ContinueOnWriteFailure logs the failure and keeps merging.
	ContinueOnWriteFailure WriteFailurePolicy = iota
	// AbortOnWriteFailure stops the merge and returns the error.
	AbortOnWriteFailure
)

func (p WriteFailurePolicy) String() string {
	switch p {
	case ContinueOnWriteFailure:
		return "continue"
	case AbortOnWriteFailure:
		return "abort"
	default:
		return "unknown"
	}
}

// options defines the configuration of a Merger.
type options struct {
	logger monitoring.Logger
	stats  *monitoring.Stats
	policy WriteFailurePolicy
}

// Option configures a Merger.
type Option func(*options)

// WithLogger sets the logger that receives failure and progress events.
func WithLogger(logger monitoring.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStats reports counters into a shared registry.
func WithStats(stats *monitoring.Stats) Option {
	return func(o *options) {
		o.stats = stats
	}
}

// WithWriteFailurePolicy sets how record write failures are handled.
func WithWriteFailurePolicy(policy WriteFailurePolicy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

func defaultOptions() options {
	return options{
		logger: monitoring.Nop(),
		policy: ContinueOnWriteFailure,
	}
}
