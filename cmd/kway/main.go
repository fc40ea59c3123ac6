// Command kway merges the sorted "<key> <value>" files of a directory into a
// single sorted file, summing the values of keys that appear more than once.
// With -compact it instead folds a directory of sstables into one sstable.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/davidvella/kway"
	"github.com/davidvella/kway/merger"
	"github.com/davidvella/kway/monitoring"
	"github.com/google/uuid"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("kway", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// Parse flags
	dir := fs.String("dir", "data", "Directory of sorted input files")
	out := fs.String("out", "output_merged.txt", "Merged output path")
	format := fs.String("format", "text", "Output format: text, binary, sstable or pebble")
	inputFormat := fs.String("input-format", "text", "Input format: text or binary")
	strict := fs.Bool("strict", false, "Abort on the first record write failure")
	logLevel := fs.String("log-level", "info", "Minimum log level: debug, info, warn or error")
	compact := fs.Bool("compact", false, "Fold the sstables in -dir into an sstable at -out")
	var pebbleInputs []string
	fs.Func("pebble-input", "Pebble database to merge after the input files (repeatable)", func(path string) error {
		pebbleInputs = append(pebbleInputs, path)
		return nil
	})
	if err := fs.Parse(args); err != nil {
		return 2
	}

	outFormat, err := kway.ParseFormat(*format)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid -format: %v\n", err)
		return 2
	}
	inFormat, err := kway.ParseFormat(*inputFormat)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid -input-format: %v\n", err)
		return 2
	}

	policy := merger.ContinueOnWriteFailure
	if *strict {
		policy = merger.AbortOnWriteFailure
	}

	logger := monitoring.NewLogger("kway", stderr).
		WithLevel(monitoring.ParseLevel(*logLevel)).
		With("run_id", uuid.NewString())

	if *compact {
		if err := kway.CompactDir(ctx, *dir, *out, kway.WithLogger(logger)); err != nil {
			fmt.Fprintf(stderr, "Compaction failed: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Compacted the tables in %s into %s\n", *dir, *out)
		return 0
	}

	stats, err := kway.MergeDir(ctx, *dir, *out,
		kway.WithFormat(outFormat),
		kway.WithInputFormat(inFormat),
		kway.WithPebbleInput(pebbleInputs...),
		kway.WithLogger(logger),
		kway.WithWriteFailurePolicy(policy),
	)
	if err != nil {
		fmt.Fprintf(stderr, "Merge failed: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Merged %d streams into %s: read %d, wrote %d, combined %d, read failures %d, write failures %d\n",
		stats.Streams, *out, stats.Read, stats.Emitted, stats.Combined, stats.ReadFailures, stats.WriteFailures)
	return 0
}
