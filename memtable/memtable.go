// Package memtable holds kv.Record values in key order in memory. Records
// may be put in any order; a record whose key is already present is folded
// into the existing one. A Cursor walks a snapshot of the table in key order
// and can feed a merge like any other sorted stream.
package memtable

import (
	"fmt"
	"io"
	"sync"

	"github.com/davidvella/kway/kv"
	"github.com/google/btree"
)

const degree = 32

// ErrExhausted is returned by Cursor.Next after the last record. It matches
// io.EOF.
var ErrExhausted = fmt.Errorf("memtable: cursor exhausted: %w", io.EOF)

// Table is an ordered set of records, safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	tree    *btree.BTreeG[kv.Record]
	combine func(a, b kv.Record) kv.Record
}

// New creates an empty table. combine folds a new record into the record
// already stored under its key; a nil combine keeps the newest record.
func New(combine func(a, b kv.Record) kv.Record) *Table {
	if combine == nil {
		combine = func(_, b kv.Record) kv.Record { return b }
	}
	return &Table{
		tree: btree.NewG[kv.Record](degree, func(a, b kv.Record) bool {
			return a.Key < b.Key
		}),
		combine: combine,
	}
}

// Put inserts rec, combining it with any record already stored under rec.Key.
func (t *Table) Put(rec kv.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.tree.Get(rec); ok {
		rec = t.combine(old, rec)
	}
	t.tree.ReplaceOrInsert(rec)
}

// Get returns the record stored under key.
func (t *Table) Get(key string) (kv.Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tree.Get(kv.Record{Key: key})
}

// Len returns the number of keys in the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tree.Len()
}

// Cursor returns a cursor over a snapshot of the table. Later writes to the
// table are not visible through it.
func (t *Table) Cursor() *Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &Cursor{tree: t.tree.Clone()}
}

// Cursor is a forward-only iterator over a table snapshot.
type Cursor struct {
	tree    *btree.BTreeG[kv.Record]
	last    string
	started bool
}

// Next returns the next record in key order, or ErrExhausted.
func (c *Cursor) Next() (kv.Record, error) {
	var (
		next  kv.Record
		found bool
	)

	visit := func(rec kv.Record) bool {
		if c.started && rec.Key == c.last {
			return true
		}
		next, found = rec, true
		return false
	}

	if c.started {
		c.tree.AscendGreaterOrEqual(kv.Record{Key: c.last}, visit)
	} else {
		c.tree.Ascend(visit)
	}

	if !found {
		return kv.Record{}, ErrExhausted
	}
	c.started = true
	c.last = next.Key
	return next, nil
}

// ReadNext advances c. It has the shape of a merger read function.
func ReadNext(c *Cursor) (kv.Record, error) {
	return c.Next()
}
