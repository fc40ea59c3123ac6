// Package sstable implements a Sorted String Table (SSTable) of kv.Record.
// A table is an immutable file of records in strictly increasing key order,
// followed by a sparse index that makes point lookups cheap.
//
// It is the natural sink for a merge: merged output is already sorted and
// carries one record per key, and the index is only written once the writer
// is closed.
//
// Basic usage:
//
//	w, err := sstable.OpenWriterFile("merged.sst", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := w.Add(kv.Record{Key: "apple", Value: 3}); err != nil {
//	    log.Fatal(err)
//	}
//	if err := w.Close(); err != nil {
//	    log.Fatal(err)
//	}
//
//	r, err := sstable.OpenReaderFile("merged.sst", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	rec, err := r.Get("apple")
//
//	for rec := range r.All() {
//	    // Process record
//	}
//
// File Format:
//   - Header (16 bytes): magic number ("SSTB") and format version
//   - Records: recordio encoded, in key order
//   - Index: record count, entry count, then (key, offset) pairs for every
//     IndexInterval-th record
//   - Footer (16 bytes): index offset and magic number ("ENDB")
package sstable
