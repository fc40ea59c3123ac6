// Package merger implements a streaming k-way merge that combines records
// sharing a key instead of emitting them twice. It is the merge step of a
// log-structured compaction: every input is already sorted, the output is
// sorted and holds one record per key.
//
// The merger keeps at most one buffered record per input stream in an indexed
// min-heap. Each step pops the smallest record, refills from the stream it
// came from and looks at the new minimum. When the two compare equal the popped
// record is folded into the one still in the heap; otherwise it is written.
// Records sharing a key across any number of streams, or repeated within one
// stream, are therefore folded into a single output record.
//
// The merger is generic over the stream handle S, the output W and the record
// T. Reading, writing and combining are plain functions:
//
//	// readers is a []*bufio.Reader, out an *os.File.
//	m, err := merger.New(readers, out, kv.Compare)
//	if err != nil {
//	    return err
//	}
//	m.SetReader(kv.ReadLine)
//	m.SetWriter(kv.WriteLine[*os.File])
//	m.SetCombiner(kv.Sum)
//	if err := m.Run(); err != nil {
//	    return err
//	}
//
// A ReadFunc reports the end of a stream with ErrNoRecord or io.EOF. Any other
// read error is logged and ends that stream only. A failed write is logged and
// skipped unless AbortOnWriteFailure is set. The output is closed exactly
// once by Run, and a failure to close it is returned as ErrOutputClose.
//
// When more than two records share a key they are folded in the order they
// leave the heap, with ties broken by stream index. A combine function that
// is not associative yields a result that depends on that order.
//
// A Merger is single use and not safe for concurrent use.
package merger
