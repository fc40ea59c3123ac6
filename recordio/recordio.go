package recordio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/davidvella/kway/kv"
)

var (
	Uint64Size = int64(binary.Size(uint64(0)))
	Int64Size  = int64(binary.Size(int64(0)))
	// MagicBytes Magic bytes to identify valid recordio files (REC).
	MagicBytes           = []byte{0x52, 0x45, 0x43}
	ErrInvalidMagicBytes = errors.New("invalid magic bytes - not a valid recordio file")
	// ErrStringTooLong is returned for a length prefix above MaxStringSize.
	ErrStringTooLong = errors.New("recordio: string length exceeds limit")
)

// MaxStringSize is the longest string ReadString accepts.
const MaxStringSize = 64 << 20

// BinaryWriter writes little-endian integers and length-prefixed strings.
type BinaryWriter struct {
	w io.Writer
}

func NewBinaryWriter(w io.Writer) BinaryWriter {
	return BinaryWriter{w: w}
}

func (bw BinaryWriter) WriteString(s string) (int64, error) {
	if err := binary.Write(bw.w, binary.LittleEndian, uint64(len(s))); err != nil {
		return 0, fmt.Errorf("error writing string length: %w", err)
	}

	n, err := io.WriteString(bw.w, s)
	if err != nil {
		return Uint64Size, fmt.Errorf("error writing string content: %w", err)
	}

	return Uint64Size + int64(n), nil
}

func (bw BinaryWriter) WriteInt64(i int64) (int64, error) {
	if err := binary.Write(bw.w, binary.LittleEndian, i); err != nil {
		return 0, err
	}
	return Int64Size, nil
}

// BinaryReader reads values written by BinaryWriter.
type BinaryReader struct {
	r io.Reader
}

func NewBinaryReader(r io.Reader) BinaryReader {
	return BinaryReader{r: r}
}

func (br BinaryReader) ReadString() (string, error) {
	var length uint64
	if err := binary.Read(br.r, binary.LittleEndian, &length); err != nil {
		return "", fmt.Errorf("error reading string length: %w", err)
	}

	if length > MaxStringSize {
		return "", fmt.Errorf("%w: %d bytes", ErrStringTooLong, length)
	}

	// The buffer grows with the bytes actually present, so a length prefix
	// larger than the remaining input costs no more than the input itself.
	var b strings.Builder
	if _, err := io.CopyN(&b, br.r, int64(length)); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return "", fmt.Errorf("error reading string content: %w", err)
	}
	return b.String(), nil
}

func (br BinaryReader) ReadInt64() (int64, error) {
	var value int64
	err := binary.Read(br.r, binary.LittleEndian, &value)
	return value, err
}

// Write writes a single record and returns the number of bytes written.
func Write(w io.Writer, rec kv.Record) (int64, error) {
	var totalBytes int64

	mn, err := w.Write(MagicBytes)
	if err != nil {
		return int64(mn), fmt.Errorf("failed to write magic bytes: %w", err)
	}
	totalBytes += int64(mn)

	bw := NewBinaryWriter(w)

	n, err := bw.WriteString(rec.Key)
	if err != nil {
		return totalBytes, fmt.Errorf("error writing key: %w", err)
	}
	totalBytes += n

	n, err = bw.WriteInt64(rec.Value)
	if err != nil {
		return totalBytes, fmt.Errorf("error writing value: %w", err)
	}
	totalBytes += n

	return totalBytes, nil
}

// ReadRecord reads a single record. A reader with nothing left returns an
// error matching io.EOF.
func ReadRecord(r io.Reader) (kv.Record, error) {
	magicBytes := make([]byte, len(MagicBytes))
	if _, err := io.ReadFull(r, magicBytes); err != nil {
		return kv.Record{}, fmt.Errorf("failed to read magic bytes: %w", err)
	}
	if !bytes.Equal(magicBytes, MagicBytes) {
		return kv.Record{}, ErrInvalidMagicBytes
	}

	br := NewBinaryReader(r)

	key, err := br.ReadString()
	if err != nil {
		return kv.Record{}, fmt.Errorf("error reading key: %w", noEOF(err))
	}

	value, err := br.ReadInt64()
	if err != nil {
		return kv.Record{}, fmt.Errorf("error reading value: %w", noEOF(err))
	}

	return kv.Record{Key: key, Value: value}, nil
}

// noEOF turns an EOF inside a record into io.ErrUnexpectedEOF so that only a
// clean record boundary reads as the end of the stream.
func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Read is ReadRecord for any concrete reader type, so that it can serve as a
// read function for a stream of that type.
func Read[R io.Reader](r R) (kv.Record, error) {
	return ReadRecord(r)
}

// WriteRecord is Write without the byte count.
func WriteRecord[W io.Writer](w W, rec kv.Record) error {
	_, err := Write(w, rec)
	return err
}

// Seq creates an iterator over records. It stops at the first error.
func Seq(r io.Reader) iter.Seq[kv.Record] {
	return func(yield func(kv.Record) bool) {
		for {
			rec, err := ReadRecord(r)
			if err != nil {
				return
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// ReadRecords reads all records into a slice.
func ReadRecords(r io.Reader) []kv.Record {
	records := make([]kv.Record, 0, 1)
	for rec := range Seq(r) {
		records = append(records, rec)
	}
	return records
}

// Size calculates the number of bytes Write uses for rec.
func Size(rec kv.Record) int64 {
	return int64(len(MagicBytes)) + Uint64Size + int64(len(rec.Key)) + Int64Size
}
