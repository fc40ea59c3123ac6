// Package kv defines the key/value record merged by the kway tool together
// with its text line format:
//
//	<key> <integer-value>
//
// Key and value are separated by a single space. Two records with the same key
// combine by summing their values and keeping the first key.
package kv

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var ErrMalformedLine = errors.New("kv: malformed line")

// Record is a key and its integer value.
type Record struct {
	Key   string
	Value int64
}

func (r Record) String() string {
	return r.Key + " " + strconv.FormatInt(r.Value, 10)
}

// Compare orders records by key.
func Compare(a, b Record) int {
	return strings.Compare(a.Key, b.Key)
}

// Sum combines two records sharing a key.
func Sum(a, b Record) Record {
	return Record{
		Key:   a.Key,
		Value: a.Value + b.Value,
	}
}

// ParseLine parses a single "key value" line without its line terminator.
func ParseLine(line string) (Record, error) {
	key, value, ok := strings.Cut(line, " ")
	if !ok || key == "" {
		return Record{}, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}

	// Anything after the value is ignored, as long as it is separated by a space.
	value, _, _ = strings.Cut(value, " ")

	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %q: %w", ErrMalformedLine, line, err)
	}

	return Record{Key: key, Value: v}, nil
}

// ReadLine reads the next record from r. It returns io.EOF once r is
// drained. A final line without a trailing newline is still returned.
func ReadLine(r *bufio.Reader) (Record, error) {
	line, err := r.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return Record{}, err
	}

	line = strings.TrimRight(line, "\r\n")
	return ParseLine(line)
}

// WriteLine writes rec as a single "key value" line.
func WriteLine[W io.Writer](w W, rec Record) error {
	if _, err := io.WriteString(w, rec.String()+"\n"); err != nil {
		return fmt.Errorf("kv: failed to write record %q: %w", rec.Key, err)
	}
	return nil
}
