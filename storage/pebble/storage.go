// Package pebble stores merged records in a Pebble database and streams them
// back in key order.
//
// A Sink is a merge output: records are buffered in a batch and committed
// every BatchSize writes. A Source is a merge input: it walks the database
// with a forward iterator.
package pebble

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble"
	"github.com/davidvella/kway/kv"
)

const (
	defaultBatchSize = 1000
	defaultCacheSize = 8 << 20
	valueSize        = 8
)

var (
	// ErrExhausted is returned by Source.Next after the last key. It matches
	// io.EOF.
	ErrExhausted = fmt.Errorf("pebble: source exhausted: %w", io.EOF)
	// ErrCorruptValue is returned for a stored value that is not an int64.
	ErrCorruptValue = errors.New("pebble: corrupt value")
	ErrClosed       = errors.New("pebble: closed")
	// ErrCommit is returned once a batch commit has failed. The records in
	// that batch are lost and the sink accepts no further writes.
	ErrCommit = errors.New("pebble: batch commit failed")
)

// StorageOptions configures the database opened by OpenSink and OpenSource.
type StorageOptions struct {
	Path         string
	BatchSize    int
	CacheSize    int64
	MaxOpenFiles int
	// Sync makes every batch commit wait for the write ahead log to reach
	// stable storage.
	Sync bool
	// ReadOnly opens an existing database without write access.
	ReadOnly bool
}

func (o StorageOptions) withDefaults() StorageOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.CacheSize <= 0 {
		o.CacheSize = defaultCacheSize
	}
	return o
}

func open(opts StorageOptions) (*pebble.DB, error) {
	cache := pebble.NewCache(opts.CacheSize)
	defer cache.Unref()

	pebbleOpts := &pebble.Options{
		Cache:        cache,
		MaxOpenFiles: opts.MaxOpenFiles,
		ReadOnly:     opts.ReadOnly,
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := pebble.Open(opts.Path, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", opts.Path, err)
	}
	return db, nil
}

func encodeValue(v int64) []byte {
	buf := make([]byte, valueSize)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return buf
}

func decodeValue(b []byte) (int64, error) {
	if len(b) != valueSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrCorruptValue, len(b))
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

// Sink writes records into a database it owns.
//
// A failed commit is sticky: every later Write and Close returns the same
// error, which names how many staged records were dropped with the batch.
type Sink struct {
	db        *pebble.DB
	batch     *pebble.Batch
	batchSize int
	writeOpts *pebble.WriteOptions
	written   int64
	committed int64
	err       error
	closed    bool
}

// OpenSink opens or creates the database at opts.Path for writing.
func OpenSink(opts StorageOptions) (*Sink, error) {
	opts = opts.withDefaults()

	db, err := open(opts)
	if err != nil {
		return nil, err
	}

	writeOpts := pebble.NoSync
	if opts.Sync {
		writeOpts = pebble.Sync
	}

	return &Sink{
		db:        db,
		batch:     db.NewBatch(),
		batchSize: opts.BatchSize,
		writeOpts: writeOpts,
	}, nil
}

// Write stages rec in the current batch, committing it once it holds
// BatchSize records.
func (s *Sink) Write(rec kv.Record) error {
	if s.closed {
		return ErrClosed
	}
	if s.err != nil {
		return s.err
	}

	if err := s.batch.Set([]byte(rec.Key), encodeValue(rec.Value), nil); err != nil {
		return err
	}
	s.written++

	// Commit batch if it gets too large
	if int(s.batch.Count()) >= s.batchSize {
		return s.commit()
	}
	return nil
}

// Len returns the number of records accepted by Write.
func (s *Sink) Len() int64 {
	return s.written
}

// Committed returns the number of records durably handed to the database.
func (s *Sink) Committed() int64 {
	return s.committed
}

func (s *Sink) commit() error {
	n := int64(s.batch.Count())
	err := s.batch.Commit(s.writeOpts)
	s.batch.Close()
	s.batch = s.db.NewBatch()
	if err != nil {
		s.err = fmt.Errorf("%w: %d records lost: %w", ErrCommit, n, err)
		return s.err
	}
	s.committed += n
	return nil
}

// Close commits the pending batch and closes the database. After a failed
// commit nothing more is committed and the commit error is returned.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.err
	if err == nil && !s.batch.Empty() {
		err = s.commit()
	}
	return errors.Join(err, s.batch.Close(), s.db.Close())
}

// WriteRecord writes rec to s.
func WriteRecord(s *Sink, rec kv.Record) error {
	return s.Write(rec)
}

// Source reads records in key order.
type Source struct {
	db     *pebble.DB
	iter   *pebble.Iterator
	owned  bool
	primed bool
}

// OpenSource opens the database at opts.Path and returns a source that closes
// it on Close.
func OpenSource(opts StorageOptions) (*Source, error) {
	db, err := open(opts.withDefaults())
	if err != nil {
		return nil, err
	}

	src, err := NewSource(db)
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}
	src.owned = true
	return src, nil
}

// NewSource returns a source over a point in time view of db. The caller
// keeps ownership of db.
func NewSource(db *pebble.DB) (*Source, error) {
	iter, err := db.NewIter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to iterate: %w", err)
	}
	return &Source{db: db, iter: iter}, nil
}

// Next returns the next record, or ErrExhausted after the last one.
func (s *Source) Next() (kv.Record, error) {
	if s.iter == nil {
		return kv.Record{}, ErrClosed
	}

	var valid bool
	if s.primed {
		valid = s.iter.Next()
	} else {
		valid = s.iter.First()
		s.primed = true
	}

	if !valid {
		if err := s.iter.Error(); err != nil {
			return kv.Record{}, err
		}
		return kv.Record{}, ErrExhausted
	}

	value, err := decodeValue(s.iter.Value())
	if err != nil {
		return kv.Record{}, fmt.Errorf("key %q: %w", s.iter.Key(), err)
	}

	// The iterator reuses its key buffer.
	return kv.Record{Key: string(s.iter.Key()), Value: value}, nil
}

// Close releases the iterator, and the database when the source owns it.
func (s *Source) Close() error {
	if s.iter == nil {
		return nil
	}

	err := s.iter.Close()
	s.iter = nil
	if s.owned {
		err = errors.Join(err, s.db.Close())
	}
	return err
}

// ReadRecord advances s.
func ReadRecord(s *Source) (kv.Record, error) {
	return s.Next()
}
