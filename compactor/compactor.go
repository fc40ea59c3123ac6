package compactor

import (
	"fmt"
	"io"
	"iter"

	"github.com/davidvella/kway/kv"
	"github.com/davidvella/kway/loser"
	"github.com/davidvella/kway/sstable"
)

// Merge lazily merges sorted sequences and folds every run of values that
// compare equal into one. For a run v1, v2, v3 in merge order the yielded
// value is combine(v3, combine(v2, v1)); a value without equals is yielded
// untouched and combine is never called for it.
func Merge[T any](compare func(a, b T) int, combine func(a, b T) T, sequences ...loser.Sequence[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		var (
			lt      = loser.New(sequences, compare)
			last    T
			pending bool
		)

		for current := range lt.All() {
			if !pending {
				last, pending = current, true
				continue
			}
			if compare(current, last) == 0 {
				last = combine(current, last)
				continue
			}
			if !yield(last) {
				return
			}
			last = current
		}

		if pending {
			yield(last)
		}
	}
}

// Compact performs streaming compaction of multiple key ordered sequences
// into an sstable written to w. Records sharing a key are summed.
func Compact(w io.Writer, sequences ...loser.Sequence[kv.Record]) error {
	return CompactFunc(w, kv.Sum, sequences...)
}

// CompactFunc is Compact with a caller supplied combine function.
func CompactFunc(w io.Writer, combine func(a, b kv.Record) kv.Record, sequences ...loser.Sequence[kv.Record]) error {
	sst, err := sstable.OpenWriter(w, nil)
	if err != nil {
		return fmt.Errorf("compactor: failed to open table: %w", err)
	}

	for rec := range Merge(kv.Compare, combine, sequences...) {
		if err := sst.Add(rec); err != nil {
			return fmt.Errorf("compactor: %w", err)
		}
	}

	if err := sst.Close(); err != nil {
		return fmt.Errorf("compactor: failed to close table: %w", err)
	}
	return nil
}
