package kway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/davidvella/kway/kv"
	"github.com/davidvella/kway/merger"
	"github.com/davidvella/kway/monitoring"
	"github.com/davidvella/kway/recordio"
	"github.com/davidvella/kway/sstable"
	"github.com/davidvella/kway/storage/local"
	"github.com/davidvella/kway/storage/pebble"
)

// ErrNoInputs is returned when there is nothing to merge: the input
// directory holds no files and no extra inputs were given. It matches
// merger.ErrInvalidConfiguration.
var ErrNoInputs = fmt.Errorf("%w: no input files", merger.ErrInvalidConfiguration)

// source yields the next record of one input stream.
type source func() (kv.Record, error)

type readFunc = merger.ReadFunc[source, kv.Record]

// MergeDir merges every file in dir into output, followed by the pebble
// databases and memtables given as options. Each input must be sorted by
// key; records sharing a key are summed. Files are read in name order and
// come before the extra inputs, which fixes the order equal keys are folded
// in.
//
// Text, binary and sstable outputs are written to a staging file next to
// output and renamed into place once the merge succeeds. A pebble output is
// a database directory written in place.
func MergeDir(ctx context.Context, dir, output string, opts ...Option) (merger.Stats, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	decode, err := o.decoder()
	if err != nil {
		return merger.Stats{}, err
	}

	store := local.NewStorage(dir, filepath.Dir(output))
	names, err := store.List(ctx)
	if err != nil {
		return merger.Stats{}, err
	}
	names = withoutOutput(dir, names, output)

	in, err := o.openInputs(ctx, store, names, decode, output)
	if err != nil {
		return merger.Stats{}, err
	}
	defer in.close(ctx, o.logger)
	if len(in.streams) == 0 {
		return merger.Stats{}, fmt.Errorf("%w in %s", ErrNoInputs, dir)
	}

	o.logger.Log(ctx, monitoring.INFO, "inputs_opened", "opened inputs", map[string]any{
		"dir":          dir,
		"files":        len(names),
		"pebble":       len(o.pebbleInputs),
		"memtables":    len(o.tables),
		"input_format": o.inputFormat.String(),
		"format":       o.format.String(),
	})

	read := o.reader(ctx)
	switch o.format {
	case FormatText:
		return mergeStaged(ctx, store, output, in.streams, read, newBufferedFile, kv.WriteLine[*bufferedFile], o)
	case FormatBinary:
		return mergeStaged(ctx, store, output, in.streams, read, newBufferedFile, recordio.WriteRecord[*bufferedFile], o)
	case FormatSSTable:
		newTable := func(wc io.WriteCloser) (*sstable.Writer, error) {
			return sstable.NewWriter(wc, nil)
		}
		return mergeStaged(ctx, store, output, in.streams, read, newTable, sstable.WriteRecord, o)
	case FormatPebble:
		return mergePebble(ctx, output, in.streams, read, o)
	default:
		return merger.Stats{}, fmt.Errorf("%w: output %s", ErrUnknownFormat, o.format)
	}
}

// decoder picks the record decoder for the input files.
func (o options) decoder() (func(*bufio.Reader) (kv.Record, error), error) {
	switch o.inputFormat {
	case FormatText:
		return kv.ReadLine, nil
	case FormatBinary:
		return recordio.Read[*bufio.Reader], nil
	default:
		return nil, fmt.Errorf("%w: input %s", ErrUnknownFormat, o.inputFormat)
	}
}

// reader pulls from a stream. A cancelled context ends every stream.
func (o options) reader(ctx context.Context) readFunc {
	return func(next source) (kv.Record, error) {
		if err := ctx.Err(); err != nil {
			return kv.Record{}, err
		}
		return next()
	}
}

func mergeStaged[W io.Closer](
	ctx context.Context,
	store *local.Storage,
	output string,
	inputs []source,
	read readFunc,
	open func(io.WriteCloser) (W, error),
	write merger.WriteFunc[W, kv.Record],
	o options,
) (merger.Stats, error) {
	name := filepath.Base(output)

	f, err := store.Create(ctx, name)
	if err != nil {
		return merger.Stats{}, err
	}

	out, err := open(f)
	if err != nil {
		return merger.Stats{}, errors.Join(err, store.Discard(ctx, name))
	}

	stats, err := merger.Merge(inputs, out, kv.Compare, read, write, kv.Sum, o.mergerOptions()...)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return stats, errors.Join(err, store.Discard(ctx, name))
	}

	if err := store.Publish(ctx, name); err != nil {
		return stats, err
	}

	o.logger.Log(ctx, monitoring.INFO, "output_published", "merged output published", map[string]any{
		"path":    store.Path(name),
		"emitted": stats.Emitted,
	})
	return stats, nil
}

func mergePebble(ctx context.Context, output string, inputs []source, read readFunc, o options) (merger.Stats, error) {
	popts := o.pebble
	popts.Path = output

	sink, err := pebble.OpenSink(popts)
	if err != nil {
		return merger.Stats{}, err
	}

	stats, err := merger.Merge(inputs, sink, kv.Compare, read, pebble.WriteRecord, kv.Sum, o.mergerOptions()...)
	if err == nil {
		err = ctx.Err()
	}
	return stats, err
}

// inputSet holds the open streams of a merge, in merge order.
type inputSet struct {
	names   []string
	streams []source
	closers []io.Closer
}

func (in *inputSet) add(name string, next source, c io.Closer) {
	in.names = append(in.names, name)
	in.streams = append(in.streams, next)
	in.closers = append(in.closers, c)
}

// openInputs opens the files in names, then the pebble databases, then
// takes a cursor over each memtable.
func (o options) openInputs(
	ctx context.Context,
	store *local.Storage,
	names []string,
	decode func(*bufio.Reader) (kv.Record, error),
	output string,
) (*inputSet, error) {
	in := &inputSet{}

	for _, name := range names {
		rc, err := store.Open(ctx, name)
		if err != nil {
			in.close(ctx, o.logger)
			return nil, err
		}
		br := bufio.NewReader(rc)
		in.add(name, func() (kv.Record, error) { return decode(br) }, rc)
	}

	for _, path := range o.pebbleInputs {
		if samePath(path, output) {
			in.close(ctx, o.logger)
			return nil, fmt.Errorf("%w: pebble input %s is the output", merger.ErrInvalidConfiguration, path)
		}
		src, err := pebble.OpenSource(pebble.StorageOptions{Path: path, ReadOnly: true})
		if err != nil {
			in.close(ctx, o.logger)
			return nil, err
		}
		in.add(path, src.Next, src)
	}

	for i, table := range o.tables {
		in.add(fmt.Sprintf("memtable-%d", i), table.Cursor().Next, nil)
	}
	return in, nil
}

func (in *inputSet) close(ctx context.Context, logger monitoring.Logger) {
	for i, c := range in.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			logger.Log(ctx, monitoring.WARN, "input_close_failed", "failed to close input", map[string]any{
				"input": in.names[i],
				"error": err.Error(),
			})
		}
	}
	in.closers = nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

// withoutOutput drops output from names when it lives in dir, so a rerun
// does not merge the previous result back in.
func withoutOutput(dir string, names []string, output string) []string {
	kept := names[:0]
	for _, name := range names {
		if samePath(filepath.Join(dir, name), output) {
			continue
		}
		kept = append(kept, name)
	}
	return kept
}

// bufferedFile flushes its buffer before closing the file underneath.
type bufferedFile struct {
	*bufio.Writer
	file io.Closer
}

func newBufferedFile(wc io.WriteCloser) (*bufferedFile, error) {
	return &bufferedFile{Writer: bufio.NewWriter(wc), file: wc}, nil
}

func (f *bufferedFile) Close() error {
	return errors.Join(f.Flush(), f.file.Close())
}
