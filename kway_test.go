package kway_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davidvella/kway"
	"github.com/davidvella/kway/kv"
	"github.com/davidvella/kway/memtable"
	"github.com/davidvella/kway/merger"
	"github.com/davidvella/kway/monitoring"
	"github.com/davidvella/kway/recordio"
	"github.com/davidvella/kway/sstable"
	"github.com/davidvella/kway/storage/pebble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInputs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

func readOutput(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func TestMergeDir(t *testing.T) {
	tests := []struct {
		name      string
		files     map[string]string
		want      string
		wantStats merger.Stats
	}{
		{
			name: "overlapping keys",
			files: map[string]string{
				"1.txt": "a 1\nb 2\n",
				"2.txt": "a 3\nc 4\n",
			},
			want:      "a 4\nb 2\nc 4\n",
			wantStats: merger.Stats{Streams: 2, Read: 4, Emitted: 3, Combined: 1},
		},
		{
			name: "same key everywhere",
			files: map[string]string{
				"1.txt": "x 1\n",
				"2.txt": "x 1\n",
				"3.txt": "x 1\n",
			},
			want:      "x 3\n",
			wantStats: merger.Stats{Streams: 3, Read: 3, Emitted: 1, Combined: 2},
		},
		{
			name: "empty file and missing trailing newline",
			files: map[string]string{
				"1.txt": "",
				"2.txt": "k 5\r\nm 6",
			},
			want:      "k 5\nm 6\n",
			wantStats: merger.Stats{Streams: 2, Read: 2, Emitted: 2},
		},
		{
			name: "malformed line ends its stream",
			files: map[string]string{
				"1.txt": "a 1\nnot-a-record\nz 9\n",
				"2.txt": "b 2\n",
			},
			want:      "a 1\nb 2\n",
			wantStats: merger.Stats{Streams: 2, Read: 2, Emitted: 2, ReadFailures: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeInputs(t, tt.files)
			output := filepath.Join(t.TempDir(), "output_merged.txt")

			stats, err := kway.MergeDir(context.Background(), dir, output)
			require.NoError(t, err)

			assert.Equal(t, tt.want, readOutput(t, output))
			assert.Equal(t, tt.wantStats, stats)
		})
	}
}

func TestMergeDirOutputInsideInputDir(t *testing.T) {
	dir := writeInputs(t, map[string]string{
		"1.txt": "a 1\n",
		"2.txt": "a 2\n",
	})
	output := filepath.Join(dir, "output_merged.txt")

	for run := 0; run < 2; run++ {
		stats, err := kway.MergeDir(context.Background(), dir, output)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Streams)
		assert.Equal(t, "a 3\n", readOutput(t, output))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestMergeDirErrors(t *testing.T) {
	ctx := context.Background()

	_, err := kway.MergeDir(ctx, t.TempDir(), filepath.Join(t.TempDir(), "out.txt"))
	assert.ErrorIs(t, err, kway.ErrNoInputs)
	assert.ErrorIs(t, err, merger.ErrInvalidConfiguration)

	_, err = kway.MergeDir(ctx, filepath.Join(t.TempDir(), "missing"), filepath.Join(t.TempDir(), "out.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	dir := writeInputs(t, map[string]string{"1.txt": "a 1\n"})

	_, err = kway.MergeDir(ctx, dir, filepath.Join(t.TempDir(), "out.txt"), kway.WithInputFormat(kway.FormatSSTable))
	assert.ErrorIs(t, err, kway.ErrUnknownFormat)

	_, err = kway.MergeDir(ctx, dir, filepath.Join(t.TempDir(), "out.txt"), kway.WithFormat(kway.Format(42)))
	assert.ErrorIs(t, err, kway.ErrUnknownFormat)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	outDir := t.TempDir()
	_, err = kway.MergeDir(cancelled, dir, filepath.Join(outDir, "out.txt"))
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMergeDirBinary(t *testing.T) {
	dir := t.TempDir()
	inputs := [][]kv.Record{
		{{Key: "a", Value: 1}, {Key: "c", Value: -3}},
		{{Key: "a", Value: 10}, {Key: "b", Value: 2}},
	}
	for i, recs := range inputs {
		var buf bytes.Buffer
		for _, rec := range recs {
			_, err := recordio.Write(&buf, rec)
			require.NoError(t, err)
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, string(rune('0'+i))+".rec"), buf.Bytes(), 0o600))
	}

	output := filepath.Join(t.TempDir(), "out.rec")
	_, err := kway.MergeDir(context.Background(), dir, output,
		kway.WithInputFormat(kway.FormatBinary),
		kway.WithFormat(kway.FormatBinary),
	)
	require.NoError(t, err)

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []kv.Record{
		{Key: "a", Value: 11},
		{Key: "b", Value: 2},
		{Key: "c", Value: -3},
	}, recordio.ReadRecords(f))
}

func TestMergeDirBinaryCorruptInput(t *testing.T) {
	dir := t.TempDir()

	var good bytes.Buffer
	for _, rec := range []kv.Record{{Key: "a", Value: 1}, {Key: "c", Value: -3}} {
		_, err := recordio.Write(&good, rec)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0.rec"), good.Bytes(), 0o600))

	// One valid record followed by a key whose length prefix claims 4 EiB.
	var bad bytes.Buffer
	_, err := recordio.Write(&bad, kv.Record{Key: "b", Value: 2})
	require.NoError(t, err)
	bad.Write(recordio.MagicBytes)
	bad.Write(binary.LittleEndian.AppendUint64(nil, 1<<62))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.rec"), bad.Bytes(), 0o600))

	output := filepath.Join(t.TempDir(), "out.rec")
	stats, err := kway.MergeDir(context.Background(), dir, output,
		kway.WithInputFormat(kway.FormatBinary),
		kway.WithFormat(kway.FormatBinary),
	)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ReadFailures)
	assert.Equal(t, 3, stats.Emitted)

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []kv.Record{
		{Key: "a", Value: 1},
		{Key: "b", Value: 2},
		{Key: "c", Value: -3},
	}, recordio.ReadRecords(f))
}

func TestMergeDirSSTable(t *testing.T) {
	dir := writeInputs(t, map[string]string{
		"1.txt": "apple 1\ncherry 3\n",
		"2.txt": "apple 2\nbanana 5\n",
	})
	output := filepath.Join(t.TempDir(), "out.sst")

	_, err := kway.MergeDir(context.Background(), dir, output, kway.WithFormat(kway.FormatSSTable))
	require.NoError(t, err)

	r, err := sstable.OpenReaderFile(output, nil)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, int64(3), r.Len())
	got, err := r.Get("apple")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Value)
}

func TestMergeDirPebble(t *testing.T) {
	dir := writeInputs(t, map[string]string{
		"1.txt": "a 1\nb 2\n",
		"2.txt": "a 3\nc 4\n",
	})
	output := filepath.Join(t.TempDir(), "merged.db")

	_, err := kway.MergeDir(context.Background(), dir, output,
		kway.WithFormat(kway.FormatPebble),
		kway.WithPebbleOptions(pebble.StorageOptions{BatchSize: 2}),
	)
	require.NoError(t, err)

	src, err := pebble.OpenSource(pebble.StorageOptions{Path: output})
	require.NoError(t, err)
	defer src.Close()

	var got []kv.Record
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, rec)
	}
	assert.Equal(t, []kv.Record{{Key: "a", Value: 4}, {Key: "b", Value: 2}, {Key: "c", Value: 4}}, got)
}

func TestMergeDirPebbleCommitFailure(t *testing.T) {
	dir := writeInputs(t, map[string]string{
		"1.txt": "a 1\nb 2\n",
		"2.txt": "c 4\n",
	})
	output := filepath.Join(t.TempDir(), "merged.db")

	sink, err := pebble.OpenSink(pebble.StorageOptions{Path: output})
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	// "a" is staged in a batch that never commits, so it must not pass for
	// a successful merge.
	stats, err := kway.MergeDir(context.Background(), dir, output,
		kway.WithFormat(kway.FormatPebble),
		kway.WithPebbleOptions(pebble.StorageOptions{BatchSize: 2, ReadOnly: true}),
	)
	require.ErrorIs(t, err, pebble.ErrCommit)
	assert.ErrorIs(t, err, merger.ErrOutputClose)
	assert.Equal(t, 1, stats.Emitted)
	assert.Equal(t, 2, stats.WriteFailures)
}

// writePebble stores recs in a new database and returns its path.
func writePebble(t *testing.T, recs ...kv.Record) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.db")
	sink, err := pebble.OpenSink(pebble.StorageOptions{Path: path})
	require.NoError(t, err)
	for _, rec := range recs {
		require.NoError(t, sink.Write(rec))
	}
	require.NoError(t, sink.Close())
	return path
}

func TestMergeDirExtraInputs(t *testing.T) {
	dir := writeInputs(t, map[string]string{
		"1.txt": "a 1\nc 1\n",
	})
	db := writePebble(t, kv.Record{Key: "a", Value: 10}, kv.Record{Key: "b", Value: 20})

	table := memtable.New(kv.Sum)
	table.Put(kv.Record{Key: "d", Value: 4})
	table.Put(kv.Record{Key: "a", Value: 100})

	output := filepath.Join(t.TempDir(), "out.txt")
	stats, err := kway.MergeDir(context.Background(), dir, output,
		kway.WithPebbleInput(db),
		kway.WithTables(table, nil),
	)
	require.NoError(t, err)

	assert.Equal(t, "a 111\nb 20\nc 1\nd 4\n", readOutput(t, output))
	assert.Equal(t, merger.Stats{Streams: 3, Read: 6, Emitted: 4, Combined: 2}, stats)

	// The database was only read and can be merged again.
	_, err = kway.MergeDir(context.Background(), dir, output, kway.WithPebbleInput(db))
	require.NoError(t, err)
	assert.Equal(t, "a 11\nb 20\nc 1\n", readOutput(t, output))
}

func TestMergeDirOnlyExtraInputs(t *testing.T) {
	table := memtable.New(kv.Sum)
	table.Put(kv.Record{Key: "k", Value: 7})

	output := filepath.Join(t.TempDir(), "out.txt")
	stats, err := kway.MergeDir(context.Background(), t.TempDir(), output, kway.WithTables(table))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Streams)
	assert.Equal(t, "k 7\n", readOutput(t, output))
}

func TestMergeDirPebbleInputErrors(t *testing.T) {
	ctx := context.Background()
	dir := writeInputs(t, map[string]string{"1.txt": "a 1\n"})

	_, err := kway.MergeDir(ctx, dir, filepath.Join(t.TempDir(), "out.txt"),
		kway.WithPebbleInput(filepath.Join(t.TempDir(), "missing.db")))
	assert.Error(t, err)

	db := writePebble(t, kv.Record{Key: "a", Value: 1})
	_, err = kway.MergeDir(ctx, dir, db,
		kway.WithFormat(kway.FormatPebble),
		kway.WithPebbleInput(db))
	assert.ErrorIs(t, err, merger.ErrInvalidConfiguration)
}

func TestMergeDirObservability(t *testing.T) {
	dir := writeInputs(t, map[string]string{
		"1.txt": "a 1\n",
		"2.txt": "a 2\nb 1\n",
	})

	var logs bytes.Buffer
	stats := monitoring.NewStats()

	_, err := kway.MergeDir(context.Background(), dir, filepath.Join(t.TempDir(), "out.txt"),
		kway.WithLogger(monitoring.NewLogger("kway", &logs)),
		kway.WithStats(stats),
		kway.WithWriteFailurePolicy(merger.AbortOnWriteFailure),
	)
	require.NoError(t, err)

	for _, event := range []string{"inputs_opened", "merge_started", "merge_finished", "output_published"} {
		assert.Contains(t, logs.String(), `"event_type":"`+event+`"`)
	}
	assert.Equal(t, int64(3), stats.Counter(monitoring.RecordsRead))
	assert.Equal(t, int64(2), stats.Counter(monitoring.RecordsEmitted))
	assert.Equal(t, int64(1), stats.Counter(monitoring.RecordsCombined))
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    kway.Format
		wantErr bool
	}{
		{in: "text", want: kway.FormatText},
		{in: "TXT", want: kway.FormatText},
		{in: "binary", want: kway.FormatBinary},
		{in: " sst ", want: kway.FormatSSTable},
		{in: "pebble", want: kway.FormatPebble},
		{in: "csv", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := kway.ParseFormat(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, kway.ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, must(kway.ParseFormat(got.String())))
		})
	}
	assert.True(t, strings.HasPrefix(kway.Format(9).String(), "unknown"))
}

func must(f kway.Format, err error) kway.Format {
	if err != nil {
		panic(err)
	}
	return f
}
