// Command feat-count counts per-feature occurrences over a feature index
// within a date window, excluding a sorted list of documents.
//
// Usage:
//
//	feat-count <fi> <numdocs> <numfeats> <mindate> <maxdate> <numexcluded> < excluded > counts
//
// Standard input carries numexcluded little-endian uint32 identifiers,
// sorted ascending. The output is the document count followed by numfeats
// little-endian uint32 occurrence counts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/mscanner/mscanner/internal/counter"
	"github.com/mscanner/mscanner/internal/wire"
	"github.com/mscanner/mscanner/pkg/errors"
	"github.com/mscanner/mscanner/pkg/logger"
)

func main() {
	logLevel := flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	flag.Usage = usage
	flag.Parse()
	logger.Setup(*logLevel, "text")

	if err := run(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "feat-count: %v\n", err)
		os.Exit(errors.ExitCode(err))
	}
}

func usage() {
	fmt.Fprintln(os.Stderr,
		"usage: feat-count [flags] <fi> <numdocs> <numfeats> <mindate> <maxdate> <numexcluded> < excluded > counts")
	flag.PrintDefaults()
}

func run(args []string) error {
	if len(args) != 6 {
		return fmt.Errorf("%w: expected 6 arguments, got %d", errors.ErrArgument, len(args))
	}
	numdocs, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || numdocs < 0 {
		return fmt.Errorf("%w: numdocs %q", errors.ErrArgument, args[1])
	}
	numfeats, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil || numfeats == 0 {
		return fmt.Errorf("%w: numfeats %q", errors.ErrArgument, args[2])
	}
	mindate, err := strconv.ParseUint(args[3], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: mindate %q", errors.ErrArgument, args[3])
	}
	maxdate, err := strconv.ParseUint(args[4], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: maxdate %q", errors.ErrArgument, args[4])
	}
	numexcluded, err := strconv.ParseUint(args[5], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: numexcluded %q", errors.ErrArgument, args[5])
	}

	excluded, err := wire.ReadExcluded(os.Stdin, uint32(numexcluded))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := counter.Count(ctx, counter.Params{
		IndexPath: args[0],
		NumDocs:   numdocs,
		NumFeats:  uint32(numfeats),
		MinDate:   uint32(mindate),
		MaxDate:   uint32(maxdate),
		Excluded:  excluded,
	})
	if err != nil {
		return err
	}
	return wire.WriteCounts(os.Stdout, res.NDocs, res.Counts)
}
