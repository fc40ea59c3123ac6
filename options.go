package kway

import (
	"github.com/davidvella/kway/memtable"
	"github.com/davidvella/kway/merger"
	"github.com/davidvella/kway/monitoring"
	"github.com/davidvella/kway/storage/pebble"
)

// options defines all configuration options for MergeDir.
type options struct {
	// Input options
	inputFormat  Format            // Encoding of every input file
	pebbleInputs []string          // Databases merged after the files
	tables       []*memtable.Table // Memtables merged last

	// Output options
	format Format                // Encoding of the merged output
	pebble pebble.StorageOptions // Used when format is FormatPebble

	// Merger options
	logger monitoring.Logger
	stats  *monitoring.Stats
	policy merger.WriteFailurePolicy
}

// Option is a function that configures MergeDir.
type Option func(*options)

// WithFormat sets the output format.
func WithFormat(f Format) Option {
	return func(o *options) {
		o.format = f
	}
}

// WithInputFormat sets the format the input files are read in.
func WithInputFormat(f Format) Option {
	return func(o *options) {
		o.inputFormat = f
	}
}

// WithPebbleInput adds pebble databases, as written by FormatPebble, to the
// merge. They are opened read only and merged after the input files, in the
// order given.
func WithPebbleInput(paths ...string) Option {
	return func(o *options) {
		o.pebbleInputs = append(o.pebbleInputs, paths...)
	}
}

// WithTables adds memtables to the merge. Each contributes a snapshot taken
// when the merge starts and is merged after every file and database.
func WithTables(tables ...*memtable.Table) Option {
	return func(o *options) {
		for _, t := range tables {
			if t != nil {
				o.tables = append(o.tables, t)
			}
		}
	}
}

// WithPebbleOptions tunes the database written by FormatPebble. The path is
// always the output path given to MergeDir.
func WithPebbleOptions(opts pebble.StorageOptions) Option {
	return func(o *options) {
		o.pebble = opts
	}
}

// WithLogger sets the logger shared by MergeDir and the merger.
func WithLogger(logger monitoring.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStats reports merge counters into a shared registry.
func WithStats(stats *monitoring.Stats) Option {
	return func(o *options) {
		o.stats = stats
	}
}

// WithWriteFailurePolicy sets how record write failures are handled.
func WithWriteFailurePolicy(policy merger.WriteFailurePolicy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

// defaultOptions returns the default configuration: text in, text out,
// keep going past write failures.
func defaultOptions() options {
	return options{
		inputFormat: FormatText,
		format:      FormatText,
		logger:      monitoring.Nop(),
		policy:      merger.ContinueOnWriteFailure,
	}
}

func (o options) mergerOptions() []merger.Option {
	return []merger.Option{
		merger.WithLogger(o.logger),
		merger.WithStats(o.stats),
		merger.WithWriteFailurePolicy(o.policy),
	}
}
