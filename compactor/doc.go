// Package compactor merges sorted sequences with a loser tree and folds
// records that compare equal, either lazily as an iter.Seq or straight into
// an sstable.
//
// Merge is the pull based counterpart of the merger package: given the same
// inputs, ordering and combine function it produces the same output, but as
// an iterator the caller ranges over instead of a writer it hands records to.
//
// Basic usage:
//
//	seq1 := loser.Slice[kv.Record]{{Key: "a", Value: 1}, {Key: "b", Value: 2}}
//	seq2 := loser.Slice[kv.Record]{{Key: "a", Value: 3}, {Key: "c", Value: 4}}
//
//	for rec := range compactor.Merge(kv.Compare, kv.Sum, seq1, seq2) {
//	    fmt.Println(rec) // a 4, b 2, c 4
//	}
//
// Compact writes the same stream into an sstable:
//
//	file, err := os.Create("output.sst")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer file.Close()
//
//	if err := compactor.Compact(file, seq1, seq2); err != nil {
//	    log.Fatal(err)
//	}
//
// Memory use is one buffered value per sequence regardless of input size.
package compactor
