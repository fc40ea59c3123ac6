package kway

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"

	"github.com/davidvella/kway/compactor"
	"github.com/davidvella/kway/kv"
	"github.com/davidvella/kway/loser"
	"github.com/davidvella/kway/monitoring"
	"github.com/davidvella/kway/sstable"
	"github.com/davidvella/kway/storage/local"
)

// CompactDir folds the sstables in dir, such as earlier FormatSSTable
// outputs, into a single sstable at output. Records sharing a key are
// summed, earlier files first. Unlike MergeDir it streams through a loser
// tree and any unreadable table fails the whole run. Only WithLogger is
// honoured among the options.
//
// The output is staged next to output and renamed into place on success.
func CompactDir(ctx context.Context, dir, output string, opts ...Option) error {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	store := local.NewStorage(dir, filepath.Dir(output))
	names, err := store.List(ctx)
	if err != nil {
		return err
	}
	names = withoutOutput(dir, names, output)
	if len(names) == 0 {
		return fmt.Errorf("%w in %s", ErrNoInputs, dir)
	}

	readers := make([]*sstable.Reader, 0, len(names))
	defer func() {
		for i, r := range readers {
			if err := r.Close(); err != nil {
				o.logger.Log(ctx, monitoring.WARN, "input_close_failed", "failed to close input", map[string]any{
					"input": names[i],
					"error": err.Error(),
				})
			}
		}
	}()

	tables := make([]loser.Sequence[kv.Record], 0, len(names))
	for _, name := range names {
		r, err := sstable.OpenReaderFile(filepath.Join(dir, name), nil)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		readers = append(readers, r)
		tables = append(tables, untilDone(ctx, r.All()))
	}

	o.logger.Log(ctx, monitoring.INFO, "tables_opened", "opened input tables", map[string]any{
		"dir":    dir,
		"tables": len(names),
	})

	name := filepath.Base(output)
	f, err := store.Create(ctx, name)
	if err != nil {
		return err
	}

	err = errors.Join(compactor.Compact(f, tables...), f.Close())
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return errors.Join(err, store.Discard(ctx, name))
	}

	if err := store.Publish(ctx, name); err != nil {
		return err
	}

	o.logger.Log(ctx, monitoring.INFO, "output_published", "compacted output published", map[string]any{
		"path":   store.Path(name),
		"tables": len(names),
	})
	return nil
}

// untilDone stops seq once ctx is cancelled. The caller checks ctx after
// draining so a cut short sequence is never mistaken for a complete one.
func untilDone(ctx context.Context, seq iter.Seq[kv.Record]) loser.Sequence[kv.Record] {
	return loser.Func[kv.Record](func(yield func(kv.Record) bool) {
		for rec := range seq {
			if ctx.Err() != nil || !yield(rec) {
				return
			}
		}
	})
}
