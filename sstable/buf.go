package sstable

import (
	"bufio"
	"io"
)

// BufferReaderSeeker buffers reads from an io.ReadSeeker and drops the
// buffer whenever the position changes.
type BufferReaderSeeker struct {
	reader *bufio.Reader
	rs     io.ReadSeeker
}

func NewReadSeeker(r io.ReadSeeker, size int) *BufferReaderSeeker {
	return &BufferReaderSeeker{
		reader: bufio.NewReaderSize(r, size),
		rs:     r,
	}
}

func (r *BufferReaderSeeker) Read(p []byte) (n int, err error) {
	return r.reader.Read(p)
}

func (r *BufferReaderSeeker) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekCurrent {
		// The underlying reader is ahead of us by whatever is buffered.
		offset -= int64(r.reader.Buffered())
	}

	pos, err := r.rs.Seek(offset, whence)
	if err != nil {
		return pos, err
	}

	r.reader.Reset(r.rs)
	return pos, nil
}
