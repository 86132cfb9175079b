// Command query runs the full retrieval pipeline: read positive example
// PMIDs, count the background corpus with the examples excluded, train
// feature scores, scan the index, and write ranked results.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/mscanner/mscanner/internal/counter"
	"github.com/mscanner/mscanner/internal/index"
	"github.com/mscanner/mscanner/internal/scanner"
	"github.com/mscanner/mscanner/internal/scores"
	"github.com/mscanner/mscanner/internal/wire"
	"github.com/mscanner/mscanner/pkg/config"
	"github.com/mscanner/mscanner/pkg/errors"
	"github.com/mscanner/mscanner/pkg/logger"
	"github.com/mscanner/mscanner/pkg/metrics"
)

type options struct {
	cfg       *config.Config
	positives string
	method    string
	maxCSV    int

	pseudocount float64
	hasPseudo   bool
	prior       float64
	hasPrior    bool
	minCount    uint
	minInfoGain float64
}

func main() {
	var opt options
	configPath := flag.String("config", "", "path to YAML config file")
	flag.StringVar(&opt.positives, "positives", "", "file of positive example PMIDs, one per line")
	flag.StringVar(&opt.method, "method", "bgfreq", "score method (bgfreq, laplace, laplace_split, rubin)")
	flag.IntVar(&opt.maxCSV, "max-csv-features", 1000, "max features in the term-score CSV")
	indexPath := flag.String("index", "", "feature index path (overrides config)")
	numdocs := flag.Int64("numdocs", 0, "record count of the index (0 = scan to EOF)")
	numfeats := flag.Uint("numfeats", 0, "feature universe size (overrides config)")
	limit := flag.Int("limit", 0, "result limit (overrides config)")
	threshold := flag.Float64("threshold", 0, "score threshold for results")
	workers := flag.Int("workers", 0, "parallel scan chunks (overrides config)")
	flag.Float64Var(&opt.pseudocount, "pseudocount", 0, "fixed smoothing pseudocount (default: background frequency)")
	flag.Float64Var(&opt.prior, "prior", 0, "prior log odds override (default: ln(P/N))")
	flag.UintVar(&opt.minCount, "min-count", 0, "drop features with fewer total occurrences")
	flag.Float64Var(&opt.minInfoGain, "min-infogain", 0, "drop features below this relative information gain")
	flag.Parse()
	opt.hasPseudo = flagSet("pseudocount")
	opt.hasPrior = flagSet("prior")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query: %v\n", err)
		os.Exit(errors.ExitCode(fmt.Errorf("%w: %v", errors.ErrArgument, err)))
	}
	if *indexPath != "" {
		cfg.Data.FeatureIndex = *indexPath
	}
	if *numdocs != 0 {
		cfg.Data.NumDocs = *numdocs
	}
	if *numfeats != 0 {
		cfg.Data.NumFeats = uint32(*numfeats)
	}
	if *limit != 0 {
		cfg.Query.Limit = *limit
	}
	if flagSet("threshold") {
		cfg.Query.Threshold = *threshold
	}
	if *workers != 0 {
		cfg.Scan.Workers = *workers
	}
	opt.cfg = cfg

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &opt); err != nil {
		slog.Error("query failed", "error", err)
		os.Exit(errors.ExitCode(err))
	}
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func parseMethod(name string) (scores.Method, error) {
	switch name {
	case "bgfreq":
		return scores.MethodBgFreq, nil
	case "laplace":
		return scores.MethodLaplace, nil
	case "laplace_split":
		return scores.MethodLaplaceSplit, nil
	case "rubin":
		return scores.MethodRubin, nil
	default:
		return 0, fmt.Errorf("%w: unknown score method %q", errors.ErrArgument, name)
	}
}

func run(ctx context.Context, opt *options) error {
	cfg := opt.cfg
	log := logger.WithComponent("query")
	m := metrics.New()

	if opt.positives == "" {
		return fmt.Errorf("%w: -positives is required", errors.ErrArgument)
	}
	if cfg.Data.FeatureIndex == "" || cfg.Data.NumFeats == 0 {
		return fmt.Errorf("%w: feature index path and numfeats are required", errors.ErrArgument)
	}
	method, err := parseMethod(opt.method)
	if err != nil {
		return err
	}

	pmids, err := wire.ReadPMIDList(opt.positives)
	if err != nil {
		return err
	}
	if len(pmids) == 0 {
		return fmt.Errorf("%w: no PMIDs in %s", errors.ErrEmptyLabelled, opt.positives)
	}
	pmids = sortUnique(pmids)
	log.Info("query starting", "positives", len(pmids), "method", method.String())

	// One index pass pre-loads the example vectors; inputs missing from
	// the index are dropped the way unknown PMIDs are in the front end.
	vectors, err := index.CollectVectors(cfg.Data.FeatureIndex, pmids)
	if err != nil {
		return err
	}
	found := make([]uint32, 0, len(vectors))
	for _, id := range pmids {
		if _, ok := vectors[id]; ok {
			found = append(found, id)
		} else {
			log.Warn("input PMID not in index", "pmid", id)
		}
	}
	pmids = found
	if len(pmids) == 0 {
		return fmt.Errorf("%w: no input PMIDs found in index", errors.ErrEmptyLabelled)
	}

	posCounts := make([]uint32, cfg.Data.NumFeats)
	for _, id := range pmids {
		for _, f := range vectors[id] {
			posCounts[f]++
		}
	}

	tmin, tmax := cfg.Query.TrainMinDate, cfg.Query.TrainMaxDate
	if tmin == 0 {
		tmin = cfg.Query.MinDate
	}
	if tmax == 0 {
		tmax = cfg.Query.MaxDate
	}
	countStart := time.Now()
	bg, err := counter.Count(ctx, counter.Params{
		IndexPath: cfg.Data.FeatureIndex,
		NumDocs:   cfg.Data.NumDocs,
		NumFeats:  cfg.Data.NumFeats,
		MinDate:   tmin,
		MaxDate:   tmax,
		Excluded:  pmids,
	})
	if err != nil {
		m.ScansTotal.WithLabelValues("count", "error").Inc()
		return err
	}
	m.ScansTotal.WithLabelValues("count", "ok").Inc()
	m.ScanDuration.WithLabelValues("count").Observe(time.Since(countStart).Seconds())
	m.DocsScannedTotal.WithLabelValues("count").Add(float64(bg.NDocs))
	log.Info("background counted", "ndocs", bg.NDocs, "mindate", tmin, "maxdate", tmax)

	opts := scores.Options{
		Method:      method,
		MinCount:    uint32(opt.minCount),
		MinInfoGain: opt.minInfoGain,
	}
	if opt.hasPseudo {
		opts.Pseudocount = &opt.pseudocount
	}
	if opt.hasPrior {
		opts.PriorOverride = &opt.prior
	}
	fs := scores.New(opts)
	if err := fs.Update(posCounts, bg.Counts, len(pmids), int(bg.NDocs)); err != nil {
		return err
	}
	st := fs.Stats()
	log.Info("feature scores trained",
		"feats_total", st.FeatsTotal,
		"feats_used", st.FeatsUsed,
		"base", fs.Base,
		"prior", fs.Prior,
	)

	// Input PMIDs are filtered from the scan output, so ask for enough
	// extra results to fill the limit afterwards.
	scanStart := time.Now()
	raw, err := scanner.Scan(ctx, scanner.Params{
		IndexPath: cfg.Data.FeatureIndex,
		NumDocs:   cfg.Data.NumDocs,
		Scores:    fs.Scores,
		Offset:    fs.Offset(),
		Threshold: cfg.Query.Threshold,
		Limit:     cfg.Query.Limit + len(pmids),
		MinDate:   cfg.Query.MinDate,
		MaxDate:   cfg.Query.MaxDate,
		Workers:   cfg.Scan.Workers,
	})
	if err != nil {
		m.ScansTotal.WithLabelValues("score", "error").Inc()
		return err
	}
	m.ScansTotal.WithLabelValues("score", "ok").Inc()
	m.ScanDuration.WithLabelValues("score").Observe(time.Since(scanStart).Seconds())

	inputSet := make(map[uint32]struct{}, len(pmids))
	for _, id := range pmids {
		inputSet[id] = struct{}{}
	}
	results := make([]scanner.Result, 0, cfg.Query.Limit)
	for _, r := range raw {
		if _, ok := inputSet[r.PMID]; ok {
			continue
		}
		results = append(results, r)
		if len(results) == cfg.Query.Limit {
			break
		}
	}
	m.ResultsReturned.Observe(float64(len(results)))
	log.Info("scan complete", "results", len(results), "duration", time.Since(scanStart))

	return writeArtifacts(cfg, opt, fs, pmids, vectors, results)
}

// writeArtifacts saves the ranked results (binary and text), the scored
// inputs, and the term-score CSV under the output directory.
func writeArtifacts(cfg *config.Config, opt *options, fs *scores.FeatureScores,
	pmids []uint32, vectors map[uint32][]uint32, results []scanner.Result) error {

	outdir := cfg.Query.OutDir
	if err := os.MkdirAll(outdir, 0755); err != nil {
		return fmt.Errorf("%w: creating output directory: %v", errors.ErrIO, err)
	}

	bin, err := os.Create(filepath.Join(outdir, "results.bin"))
	if err != nil {
		return fmt.Errorf("%w: creating results file: %v", errors.ErrIO, err)
	}
	if err := wire.WriteResults(bin, results); err != nil {
		bin.Close()
		return err
	}
	if err := bin.Close(); err != nil {
		return fmt.Errorf("%w: closing results file: %v", errors.ErrIO, err)
	}

	if err := wire.WriteScoredPMIDs(filepath.Join(outdir, "results.txt"),
		func(i int) (float64, uint32) { return float64(results[i].Score), results[i].PMID },
		len(results)); err != nil {
		return err
	}

	// Inputs are reported with their own scores, best first.
	inputs := make([]scanner.Result, len(pmids))
	for i, id := range pmids {
		inputs[i] = scanner.Result{Score: float32(fs.ScoreOf(vectors[id])), PMID: id}
	}
	sort.Slice(inputs, func(i, j int) bool {
		if inputs[i].Score != inputs[j].Score {
			return inputs[i].Score > inputs[j].Score
		}
		return inputs[i].PMID < inputs[j].PMID
	})
	if err := wire.WriteScoredPMIDs(filepath.Join(outdir, "input_scores.txt"),
		func(i int) (float64, uint32) { return float64(inputs[i].Score), inputs[i].PMID },
		len(inputs)); err != nil {
		return err
	}

	csv, err := os.Create(filepath.Join(outdir, "term_scores.csv"))
	if err != nil {
		return fmt.Errorf("%w: creating term-score file: %v", errors.ErrIO, err)
	}
	if err := fs.WriteCSV(csv, opt.maxCSV); err != nil {
		csv.Close()
		return fmt.Errorf("%w: writing term scores: %v", errors.ErrIO, err)
	}
	return csv.Close()
}

func sortUnique(ids []uint32) []uint32 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := ids[:0]
	for i, id := range ids {
		if i == 0 || id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
