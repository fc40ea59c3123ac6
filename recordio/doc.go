// Package recordio implements a binary record format for kv.Record. Each
// record starts with magic bytes for format validation, followed by a
// length-prefixed key and a little-endian int64 value.
//
// Basic usage:
//
//	var buf bytes.Buffer
//	n, err := recordio.Write(&buf, kv.Record{Key: "apple", Value: 3})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for rec := range recordio.Seq(&buf) {
//	    fmt.Printf("Read record: %s\n", rec)
//	}
//
//	size := recordio.Size(kv.Record{Key: "apple", Value: 3})
//
// Read and WriteRecord have the shape of merger read and write functions, so
// binary files can be merged directly:
//
//	m.SetReader(recordio.Read[*bufio.Reader])
//	m.SetWriter(recordio.WriteRecord[*os.File])
package recordio
