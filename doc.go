// Package kway merges directories of sorted key/value files.
//
// The engine lives in package merger and works on any record type. This
// package wires it to the filesystem for the common case: every file in a
// directory holds "<key> <value>" lines sorted by key, and the result is one
// sorted file in which each key appears once with its values summed.
//
//	stats, err := kway.MergeDir(ctx, "data", "output_merged.txt")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(stats.Emitted, "records written")
//
// The output can also be written in the recordio binary encoding, as an
// sstable, or into a Pebble database; see WithFormat. Pebble databases and
// memtables can join a merge next to the files; see WithPebbleInput and
// WithTables. CompactDir folds a directory of sstables into one.
package kway
