package monitoring

import (
	"context"
	"encoding/json"
	"io"
	"maps"
	"sync"
	"time"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name to a LogLevel, falling back to INFO.
func ParseLevel(s string) LogLevel {
	switch s {
	case "debug", "DEBUG":
		return DEBUG
	case "warn", "WARN":
		return WARN
	case "error", "ERROR":
		return ERROR
	default:
		return INFO
	}
}

type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component"`
	EventType string         `json:"event_type"`
	Details   map[string]any `json:"details,omitempty"`
}

// Logger records structured events.
type Logger interface {
	Log(ctx context.Context, level LogLevel, eventType string, message string, details map[string]any)
}

// JSONLogger writes one JSON object per event.
type JSONLogger struct {
	mu        *sync.Mutex
	w         io.Writer
	component string
	min       LogLevel
	fields    map[string]any
	now       func() time.Time
}

func NewLogger(component string, w io.Writer) *JSONLogger {
	return &JSONLogger{
		mu:        &sync.Mutex{},
		w:         w,
		component: component,
		min:       INFO,
		now:       time.Now,
	}
}

// WithLevel returns a logger that drops events below level.
func (l *JSONLogger) WithLevel(level LogLevel) *JSONLogger {
	c := *l
	c.min = level
	return &c
}

// WithComponent returns a logger reporting under another component name.
func (l *JSONLogger) WithComponent(component string) *JSONLogger {
	c := *l
	c.component = component
	return &c
}

// With returns a logger that adds key to the details of every event.
func (l *JSONLogger) With(key string, value any) *JSONLogger {
	c := *l
	c.fields = make(map[string]any, len(l.fields)+1)
	maps.Copy(c.fields, l.fields)
	c.fields[key] = value
	return &c
}

func (l *JSONLogger) Log(_ context.Context, level LogLevel, eventType string, message string, details map[string]any) {
	if level < l.min {
		return
	}

	entry := LogEntry{
		Timestamp: l.now(),
		Level:     level.String(),
		Message:   message,
		Component: l.component,
		EventType: eventType,
		Details:   l.merge(details),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	//nolint:errcheck // a failing log sink must not stop the caller
	json.NewEncoder(l.w).Encode(entry)
}

func (l *JSONLogger) merge(details map[string]any) map[string]any {
	if len(l.fields) == 0 {
		return details
	}
	out := make(map[string]any, len(l.fields)+len(details))
	maps.Copy(out, l.fields)
	maps.Copy(out, details)
	return out
}

type nopLogger struct{}

func (nopLogger) Log(context.Context, LogLevel, string, string, map[string]any) {}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}
