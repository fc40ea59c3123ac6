package sstable

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"sort"
	"sync"

	"github.com/davidvella/kway/kv"
	"github.com/davidvella/kway/recordio"
)

// Common errors that can be returned by SSTable operations.
var (
	ErrTableClosed    = errors.New("sstable: table already closed")
	ErrKeyNotFound    = errors.New("sstable: key not found")
	ErrCorruptedTable = errors.New("sstable: corrupted table data")
	ErrOutOfOrder     = errors.New("sstable: records must be written in strictly increasing key order")
	headerSize        = int64(binary.Size(magicHeader) + binary.Size(formatVersion))
	footerSize        = int64(binary.Size(int64(0)) + binary.Size(magicFooter))
)

// File format constants.
const (
	magicHeader          = int64(0x53535442) // "SSTB" in hex
	magicFooter          = int64(0x454E4442) // "ENDB" in hex
	formatVersion        = int64(2)
	defaultBufSize       = 52 * 1024
	defaultIndexInterval = 16
)

// Options configures the behavior of an SSTable.
type Options struct {
	// IndexInterval is the number of records between two sparse index
	// entries. The first record is always indexed.
	IndexInterval int

	// BufferSize is the size of the read/write buffer.
	BufferSize int
}

func (o *Options) withDefaults() Options {
	var opts Options
	if o != nil {
		opts = *o
	}
	if opts.IndexInterval <= 0 {
		opts.IndexInterval = defaultIndexInterval
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufSize
	}
	return opts
}

// indexEntry is one entry of the sparse index.
type indexEntry struct {
	key    string
	offset int64
}

// Writer appends records to a new table.
type Writer struct {
	mu      sync.Mutex
	buf     *bufio.Writer
	bw      recordio.BinaryWriter
	file    io.Closer
	opts    Options
	closed  bool
	index   []indexEntry
	count   int64
	lastKey string
	dataEnd int64
}

// OpenWriter starts a new table on w and writes its header.
func OpenWriter(w io.Writer, opts *Options) (*Writer, error) {
	if w == nil {
		return nil, errors.New("sstable: writer cannot be nil")
	}

	o := opts.withDefaults()
	buf := bufio.NewWriterSize(w, o.BufferSize)
	writer := &Writer{
		buf:     buf,
		bw:      recordio.NewBinaryWriter(buf),
		opts:    o,
		dataEnd: headerSize,
	}

	if err := writer.writeHeader(); err != nil {
		return nil, fmt.Errorf("sstable: failed to write header: %w", err)
	}

	return writer, nil
}

// NewWriter starts a new table on wc like OpenWriter. The writer owns wc and
// closes it on Close.
func NewWriter(wc io.WriteCloser, opts *Options) (*Writer, error) {
	if wc == nil {
		return nil, errors.New("sstable: writer cannot be nil")
	}

	writer, err := OpenWriter(wc, opts)
	if err != nil {
		wc.Close()
		return nil, err
	}
	writer.file = wc

	return writer, nil
}

// OpenWriterFile creates a table at path. The file is closed by Close.
func OpenWriterFile(path string, opts *Options) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return nil, fmt.Errorf("sstable: failed to open file for writing: %w", err)
	}
	return NewWriter(file, opts)
}

// Add appends rec. Keys must be strictly increasing.
func (w *Writer) Add(rec kv.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrTableClosed
	}

	if w.count > 0 && rec.Key <= w.lastKey {
		return fmt.Errorf("%w: %q after %q", ErrOutOfOrder, rec.Key, w.lastKey)
	}

	n, err := recordio.Write(w.buf, rec)
	if err != nil {
		return fmt.Errorf("sstable: failed to write record: %w", err)
	}

	if w.count%int64(w.opts.IndexInterval) == 0 {
		w.index = append(w.index, indexEntry{key: rec.Key, offset: w.dataEnd})
	}

	w.count++
	w.lastKey = rec.Key
	w.dataEnd += n

	return nil
}

// Len returns the number of records added so far.
func (w *Writer) Len() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close writes the sparse index and footer, flushes, and closes the file
// when the writer owns one.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	err := w.writeIndex()
	if w.file != nil {
		err = errors.Join(err, w.file.Close())
	}
	return err
}

// WriteRecord adds rec to w. It has the shape of a merger write function.
func WriteRecord(w *Writer, rec kv.Record) error {
	return w.Add(rec)
}

func (w *Writer) writeHeader() error {
	if _, err := w.bw.WriteInt64(magicHeader); err != nil {
		return err
	}
	if _, err := w.bw.WriteInt64(formatVersion); err != nil {
		return err
	}
	return nil
}

// writeIndex writes the record count, the sparse index and the footer.
func (w *Writer) writeIndex() error {
	if _, err := w.bw.WriteInt64(w.count); err != nil {
		return fmt.Errorf("sstable: failed to write index: %w", err)
	}
	if _, err := w.bw.WriteInt64(int64(len(w.index))); err != nil {
		return fmt.Errorf("sstable: failed to write index: %w", err)
	}

	for _, e := range w.index {
		if _, err := w.bw.WriteString(e.key); err != nil {
			return fmt.Errorf("sstable: failed to write index: %w", err)
		}
		if _, err := w.bw.WriteInt64(e.offset); err != nil {
			return fmt.Errorf("sstable: failed to write index: %w", err)
		}
	}

	if _, err := w.bw.WriteInt64(w.dataEnd); err != nil {
		return fmt.Errorf("sstable: failed to write footer: %w", err)
	}
	if _, err := w.bw.WriteInt64(magicFooter); err != nil {
		return fmt.Errorf("sstable: failed to write footer: %w", err)
	}

	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("sstable: failed to flush: %w", err)
	}
	return nil
}

// Reader serves point lookups and scans over a finished table.
type Reader struct {
	mu      sync.Mutex
	rs      io.ReadSeeker
	buf     *BufferReaderSeeker
	br      recordio.BinaryReader
	file    io.Closer
	closed  bool
	index   []indexEntry
	count   int64
	dataEnd int64
}

// OpenReader loads the header, footer and sparse index of the table in rs.
func OpenReader(rs io.ReadSeeker, opts *Options) (*Reader, error) {
	if rs == nil {
		return nil, errors.New("sstable: ReadSeeker cannot be nil")
	}

	o := opts.withDefaults()
	buf := NewReadSeeker(rs, o.BufferSize)
	reader := &Reader{
		rs:  rs,
		buf: buf,
		br:  recordio.NewBinaryReader(buf),
	}

	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("sstable: failed to size table: %w", err)
	}
	if size < headerSize+footerSize {
		return nil, fmt.Errorf("%w: file is too small", ErrCorruptedTable)
	}

	if err := reader.load(); err != nil {
		return nil, fmt.Errorf("sstable: failed to load table: %w", err)
	}

	return reader, nil
}

// OpenReaderFile opens the table at path. The file is closed by Close.
func OpenReaderFile(path string, opts *Options) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: failed to open file for reading: %w", err)
	}

	reader, err := OpenReader(file, opts)
	if err != nil {
		file.Close()
		return nil, err
	}
	reader.file = file

	return reader, nil
}

// Len returns the number of records in the table.
func (r *Reader) Len() int64 {
	return r.count
}

// Close releases the reader and its file when it owns one.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

func (r *Reader) load() error {
	if err := r.checkHeader(); err != nil {
		return err
	}

	indexOffset, err := r.readFooter()
	if err != nil {
		return err
	}

	return r.readIndex(indexOffset)
}

func (r *Reader) checkHeader() error {
	if _, err := r.buf.Seek(0, io.SeekStart); err != nil {
		return err
	}

	header, err := r.br.ReadInt64()
	if err != nil {
		return fmt.Errorf("sstable: invalid header: %w", err)
	}
	if header != magicHeader {
		return ErrCorruptedTable
	}

	version, err := r.br.ReadInt64()
	if err != nil {
		return fmt.Errorf("sstable: invalid version: %w", err)
	}
	if version != formatVersion {
		return fmt.Errorf("sstable: unsupported version %d", version)
	}

	return nil
}

// readFooter returns the offset of the index block.
func (r *Reader) readFooter() (int64, error) {
	if _, err := r.buf.Seek(-footerSize, io.SeekEnd); err != nil {
		return 0, err
	}

	indexOffset, err := r.br.ReadInt64()
	if err != nil {
		return 0, err
	}

	footer, err := r.br.ReadInt64()
	if err != nil {
		return 0, err
	}
	if footer != magicFooter || indexOffset < headerSize {
		return 0, ErrCorruptedTable
	}

	return indexOffset, nil
}

func (r *Reader) readIndex(indexOffset int64) error {
	r.dataEnd = indexOffset
	if _, err := r.buf.Seek(indexOffset, io.SeekStart); err != nil {
		return err
	}

	count, err := r.br.ReadInt64()
	if err != nil || count < 0 {
		return fmt.Errorf("sstable: invalid record count: %w", errors.Join(err, ErrCorruptedTable))
	}
	r.count = count

	// Every index entry points at a distinct record.
	entries, err := r.br.ReadInt64()
	if err != nil || entries < 0 || entries > count {
		return fmt.Errorf("sstable: invalid index count: %w", errors.Join(err, ErrCorruptedTable))
	}

	r.index = nil
	for i := int64(0); i < entries; i++ {
		key, err := r.br.ReadString()
		if err != nil {
			return fmt.Errorf("sstable: invalid index key: %w", err)
		}

		offset, err := r.br.ReadInt64()
		if err != nil {
			return fmt.Errorf("sstable: invalid index offset: %w", err)
		}
		if offset < headerSize || offset >= indexOffset {
			return fmt.Errorf("sstable: index offset %d out of range: %w", offset, ErrCorruptedTable)
		}

		r.index = append(r.index, indexEntry{key: key, offset: offset})
	}
	return nil
}

// Get retrieves the record stored under key.
func (r *Reader) Get(key string) (kv.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return kv.Record{}, ErrTableClosed
	}

	// Last index entry whose key is <= key.
	i := sort.Search(len(r.index), func(i int) bool {
		return r.index[i].key > key
	}) - 1
	if i < 0 {
		return kv.Record{}, ErrKeyNotFound
	}

	if _, err := r.buf.Seek(r.index[i].offset, io.SeekStart); err != nil {
		return kv.Record{}, fmt.Errorf("sstable: seek error: %w", err)
	}

	end := r.dataEnd
	if i+1 < len(r.index) {
		end = r.index[i+1].offset
	}

	section := io.LimitReader(r.buf, end-r.index[i].offset)
	for {
		rec, err := recordio.ReadRecord(section)
		if errors.Is(err, io.EOF) {
			return kv.Record{}, ErrKeyNotFound
		}
		if err != nil {
			return kv.Record{}, fmt.Errorf("sstable: record parse error: %w", err)
		}
		if rec.Key == key {
			return rec, nil
		}
		if rec.Key > key {
			return kv.Record{}, ErrKeyNotFound
		}
	}
}

// All returns an iterator over every record in key order. The iterator
// shares the reader position and must not be interleaved with Get.
func (r *Reader) All() iter.Seq[kv.Record] {
	return func(yield func(kv.Record) bool) {
		scanner, err := r.Scanner()
		if err != nil {
			return
		}
		for {
			rec, err := scanner.Next()
			if err != nil || !yield(rec) {
				return
			}
		}
	}
}

// Scanner returns a forward-only cursor positioned on the first record.
func (r *Reader) Scanner() (*Scanner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrTableClosed
	}
	if _, err := r.buf.Seek(headerSize, io.SeekStart); err != nil {
		return nil, fmt.Errorf("sstable: seek error: %w", err)
	}
	return &Scanner{
		r: io.LimitReader(r.buf, r.dataEnd-headerSize),
	}, nil
}

// Scanner reads the records of a table one at a time.
type Scanner struct {
	r io.Reader
}

// Next returns the next record, or io.EOF after the last one.
func (s *Scanner) Next() (kv.Record, error) {
	rec, err := recordio.ReadRecord(s.r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return kv.Record{}, io.EOF
		}
		return kv.Record{}, fmt.Errorf("sstable: record parse error: %w", err)
	}
	return rec, nil
}

// ReadRecord advances s. It has the shape of a merger read function.
func ReadRecord(s *Scanner) (kv.Record, error) {
	return s.Next()
}
