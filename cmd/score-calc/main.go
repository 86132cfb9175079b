// Command score-calc scores every document in a feature index against a
// trained feature-score vector and writes the top results.
//
// Usage:
//
//	score-calc <fi> <numdocs> <numfeats> <offset> <limit> <threshold> <mindate> <maxdate> < feat_scores > results
//
// The feature scores on standard input are numfeats little-endian float64
// values. The output is a stream of (score float32, pmid uint32) pairs in
// decreasing score order.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/mscanner/mscanner/internal/scanner"
	"github.com/mscanner/mscanner/internal/wire"
	"github.com/mscanner/mscanner/pkg/errors"
	"github.com/mscanner/mscanner/pkg/logger"
)

func main() {
	workers := flag.Int("workers", 1, "number of parallel scan chunks")
	logLevel := flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	flag.Usage = usage
	flag.Parse()
	logger.Setup(*logLevel, "text")

	if err := run(flag.Args(), *workers); err != nil {
		fmt.Fprintf(os.Stderr, "score-calc: %v\n", err)
		os.Exit(errors.ExitCode(err))
	}
}

func usage() {
	fmt.Fprintln(os.Stderr,
		"usage: score-calc [flags] <fi> <numdocs> <numfeats> <offset> <limit> <threshold> <mindate> <maxdate> < feat_scores > results")
	flag.PrintDefaults()
}

func run(args []string, workers int) error {
	if len(args) != 8 {
		return fmt.Errorf("%w: expected 8 arguments, got %d", errors.ErrArgument, len(args))
	}
	numdocs, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || numdocs < 0 {
		return fmt.Errorf("%w: numdocs %q", errors.ErrArgument, args[1])
	}
	numfeats, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil || numfeats == 0 {
		return fmt.Errorf("%w: numfeats %q", errors.ErrArgument, args[2])
	}
	offset, err := strconv.ParseFloat(args[3], 64)
	if err != nil {
		return fmt.Errorf("%w: offset %q", errors.ErrArgument, args[3])
	}
	limit, err := strconv.Atoi(args[4])
	if err != nil || limit < 1 {
		return fmt.Errorf("%w: limit %q", errors.ErrArgument, args[4])
	}
	threshold, err := strconv.ParseFloat(args[5], 64)
	if err != nil {
		return fmt.Errorf("%w: threshold %q", errors.ErrArgument, args[5])
	}
	mindate, err := strconv.ParseUint(args[6], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: mindate %q", errors.ErrArgument, args[6])
	}
	maxdate, err := strconv.ParseUint(args[7], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: maxdate %q", errors.ErrArgument, args[7])
	}

	featScores, err := wire.ReadScores(os.Stdin, uint32(numfeats))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := scanner.Scan(ctx, scanner.Params{
		IndexPath: args[0],
		NumDocs:   numdocs,
		Scores:    featScores,
		Offset:    offset,
		Threshold: threshold,
		Limit:     limit,
		MinDate:   uint32(mindate),
		MaxDate:   uint32(maxdate),
		Workers:   workers,
	})
	if err != nil {
		return err
	}
	return wire.WriteResults(os.Stdout, results)
}
