package merger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/davidvella/kway/monitoring"
	"github.com/davidvella/kway/priority"
)

// Common errors returned by the merger.
var (
	ErrInvalidConfiguration = errors.New("merger: invalid configuration")
	ErrAlreadyRun           = errors.New("merger: run already called")
	ErrRecordRead           = errors.New("merger: record read failed")
	ErrRecordWrite          = errors.New("merger: record write failed")
	ErrOutputClose          = errors.New("merger: output close failed")

	// ErrNoRecord is returned by a ReadFunc when its stream holds no more
	// records. io.EOF is accepted as a synonym.
	ErrNoRecord = errors.New("merger: no record")
)

// ReadFunc pulls the next record from src.
type ReadFunc[S, T any] func(src S) (T, error)

// WriteFunc serialises rec to dst.
type WriteFunc[W, T any] func(dst W, rec T) error

// CombineFunc folds two records that compare equal into one.
type CombineFunc[T any] func(a, b T) T

// CompareFunc orders records. It returns a negative number when a sorts
// before b, zero when they share a key and a positive number otherwise.
type CompareFunc[T any] func(a, b T) int

// Stats summarises a finished run.
type Stats struct {
	Streams       int
	Read          int
	Emitted       int
	Combined      int
	ReadFailures  int
	WriteFailures int
}

// entry is one buffered record and the stream it was read from.
type entry[T any] struct {
	record T
	stream int
}

// Merger merges sorted input streams of type S into the output W, folding
// records that compare equal with the combine function.
type Merger[S any, W io.Closer, T any] struct {
	inputs  []S
	output  W
	compare CompareFunc[T]
	read    ReadFunc[S, T]
	write   WriteFunc[W, T]
	combine CombineFunc[T]

	opts  options
	queue *priority.Queue[int, entry[T]]
	stats Stats
	ran   bool
}

// New creates a Merger over inputs writing to output. The reader, writer and
// combiner must be set before Run.
func New[S any, W io.Closer, T any](inputs []S, output W, compare CompareFunc[T], opts ...Option) (*Merger[S, W, T], error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no input streams", ErrInvalidConfiguration)
	}
	if isNil(output) {
		return nil, fmt.Errorf("%w: output stream is nil", ErrInvalidConfiguration)
	}
	if compare == nil {
		return nil, fmt.Errorf("%w: compare function is nil", ErrInvalidConfiguration)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Merger[S, W, T]{
		inputs:  inputs,
		output:  output,
		compare: compare,
		opts:    o,
		stats:   Stats{Streams: len(inputs)},
	}, nil
}

// Merge builds a Merger and runs it.
func Merge[S any, W io.Closer, T any](
	inputs []S,
	output W,
	compare CompareFunc[T],
	read ReadFunc[S, T],
	write WriteFunc[W, T],
	combine CombineFunc[T],
	opts ...Option,
) (Stats, error) {
	m, err := New(inputs, output, compare, opts...)
	if err != nil {
		return Stats{}, err
	}
	m.SetReader(read)
	m.SetWriter(write)
	m.SetCombiner(combine)

	err = m.Run()
	return m.Stats(), err
}

// SetReader sets the function that pulls the next record from a stream. It
// must report an exhausted stream with ErrNoRecord or io.EOF.
func (m *Merger[S, W, T]) SetReader(read ReadFunc[S, T]) {
	m.read = read
}

// SetWriter sets the function that writes each merged record to the output.
func (m *Merger[S, W, T]) SetWriter(write WriteFunc[W, T]) {
	m.write = write
}

// SetCombiner sets the function that folds a record into the pending record
// with an equal key. A nil combiner is rejected by Run.
func (m *Merger[S, W, T]) SetCombiner(combine CombineFunc[T]) {
	m.combine = combine
}

// Stats returns the counters gathered by Run.
func (m *Merger[S, W, T]) Stats() Stats {
	return m.stats
}

// Run drains every input, writes the merged records and closes the output.
// The output is closed on every path once Run has started, including when
// the merger is missing its reader, writer or combiner.
func (m *Merger[S, W, T]) Run() (err error) {
	if m.ran {
		return ErrAlreadyRun
	}
	m.ran = true

	ctx := context.Background()

	defer func() {
		if cerr := m.output.Close(); cerr != nil {
			m.log(ctx, monitoring.ERROR, "output_close_failed", "failed to close output", map[string]any{
				"error": cerr.Error(),
			})
			err = errors.Join(err, fmt.Errorf("%w: %w", ErrOutputClose, cerr))
		}
	}()

	if err := m.validate(); err != nil {
		return err
	}

	m.log(ctx, monitoring.INFO, "merge_started", "merge started", map[string]any{
		"streams": len(m.inputs),
	})

	m.queue = priority.NewQueueSize[int, entry[T]](len(m.inputs), m.less)
	for i := range m.inputs {
		m.pull(ctx, i)
	}

	for m.queue.Len() > 0 {
		_, removed, _ := m.queue.Pop()
		m.pull(ctx, removed.stream)

		if key, peek, ok := m.queue.Peek(); ok && m.compare(removed.record, peek.record) == 0 {
			peek.record = m.combine(peek.record, removed.record)
			m.queue.Set(key, peek)
			m.count(&m.stats.Combined, monitoring.RecordsCombined)
			continue
		}

		if err := m.emit(ctx, removed.record); err != nil {
			return err
		}
	}

	m.log(ctx, monitoring.INFO, "merge_finished", "merge finished", map[string]any{
		"read":           m.stats.Read,
		"emitted":        m.stats.Emitted,
		"combined":       m.stats.Combined,
		"read_failures":  m.stats.ReadFailures,
		"write_failures": m.stats.WriteFailures,
	})

	return nil
}

func (m *Merger[S, W, T]) validate() error {
	switch {
	case m.read == nil:
		return fmt.Errorf("%w: reader function not set", ErrInvalidConfiguration)
	case m.write == nil:
		return fmt.Errorf("%w: writer function not set", ErrInvalidConfiguration)
	case m.combine == nil:
		return fmt.Errorf("%w: combine function not set", ErrInvalidConfiguration)
	}
	return nil
}

// less orders heap entries by record, then by stream so that equal records
// are folded in stream order.
func (m *Merger[S, W, T]) less(a, b entry[T]) int {
	if c := m.compare(a.record, b.record); c != 0 {
		return c
	}
	return a.stream - b.stream
}

// pull buffers the next record of stream i. A stream that is exhausted or
// fails to read contributes nothing further.
func (m *Merger[S, W, T]) pull(ctx context.Context, i int) {
	rec, err := m.read(m.inputs[i])
	switch {
	case err == nil:
		m.count(&m.stats.Read, monitoring.RecordsRead)
		m.queue.Set(i, entry[T]{record: rec, stream: i})
	case errors.Is(err, ErrNoRecord) || errors.Is(err, io.EOF):
		m.opts.stats.Add(monitoring.StreamsExhausted, 1)
		m.log(ctx, monitoring.DEBUG, "stream_exhausted", "stream exhausted", map[string]any{
			"stream": i,
		})
	default:
		m.opts.stats.Add(monitoring.StreamsExhausted, 1)
		m.count(&m.stats.ReadFailures, monitoring.ReadFailures)
		m.log(ctx, monitoring.WARN, "record_read_failed", "dropping stream after read failure", map[string]any{
			"stream": i,
			"error":  fmt.Errorf("%w: %w", ErrRecordRead, err).Error(),
		})
	}
}

func (m *Merger[S, W, T]) emit(ctx context.Context, rec T) error {
	err := m.write(m.output, rec)
	if err == nil {
		m.count(&m.stats.Emitted, monitoring.RecordsEmitted)
		return nil
	}

	m.count(&m.stats.WriteFailures, monitoring.WriteFailures)
	m.log(ctx, monitoring.ERROR, "record_write_failed", "failed to write record", map[string]any{
		"error":  err.Error(),
		"policy": m.opts.policy.String(),
	})
	if m.opts.policy == AbortOnWriteFailure {
		return fmt.Errorf("%w: %w", ErrRecordWrite, err)
	}
	return nil
}

func (m *Merger[S, W, T]) count(field *int, name string) {
	*field++
	m.opts.stats.Add(name, 1)
}

func (m *Merger[S, W, T]) log(ctx context.Context, level monitoring.LogLevel, event, msg string, details map[string]any) {
	m.opts.logger.Log(ctx, level, event, msg, details)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}
