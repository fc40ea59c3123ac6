package kway

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownFormat is returned for a format name or value MergeDir does
// not support.
var ErrUnknownFormat = errors.New("kway: unknown format")

// Format selects how records are encoded on disk.
type Format int

const (
	// FormatText is one "<key> <value>" line per record.
	FormatText Format = iota
	// FormatBinary is the recordio binary encoding.
	FormatBinary
	// FormatSSTable is a sorted string table with a sparse index. Output only.
	FormatSSTable
	// FormatPebble is a Pebble database directory. Output only.
	FormatPebble
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatBinary:
		return "binary"
	case FormatSSTable:
		return "sstable"
	case FormatPebble:
		return "pebble"
	default:
		return "unknown"
	}
}

// ParseFormat maps a format name to a Format. Names are case insensitive.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "txt":
		return FormatText, nil
	case "binary", "bin":
		return FormatBinary, nil
	case "sstable", "sst":
		return FormatSSTable, nil
	case "pebble":
		return FormatPebble, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}
