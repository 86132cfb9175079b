// Command validate estimates retrieval performance by stratified k-fold
// cross-validation over a positive PMID set and a sampled (or supplied)
// negative set, writing a JSON performance report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/mscanner/mscanner/internal/index"
	"github.com/mscanner/mscanner/internal/scores"
	"github.com/mscanner/mscanner/internal/validate"
	"github.com/mscanner/mscanner/internal/wire"
	"github.com/mscanner/mscanner/pkg/config"
	"github.com/mscanner/mscanner/pkg/errors"
	"github.com/mscanner/mscanner/pkg/logger"
	"github.com/mscanner/mscanner/pkg/metrics"
)

// report is the JSON document written after validation.
type report struct {
	Positives int     `json:"positives"`
	Negatives int     `json:"negatives"`
	NFolds    int     `json:"nfolds"`
	Alpha     float64 `json:"alpha"`
	Seed      int64   `json:"seed"`

	ROCArea   float64 `json:"roc_area"`
	W         float64 `json:"roc_area_wilcoxon"`
	WStdErr   float64 `json:"roc_area_stderr"`
	PRArea    float64 `json:"pr_area"`
	AvPrec    float64 `json:"averaged_precision"`
	Breakeven float64 `json:"breakeven"`
	Threshold float64 `json:"threshold"`

	Tuned validate.TunedStats        `json:"tuned"`
	Range *validate.PerformanceRange `json:"range"`

	Curves struct {
		Scores    []float32 `json:"scores"`
		TPR       []float64 `json:"tpr"`
		FPR       []float64 `json:"fpr"`
		Precision []float64 `json:"precision"`
		FMa       []float64 `json:"fmeasure_alpha"`
	} `json:"curves"`

	TrainStats scores.Stats `json:"train_stats"`

	PosHistogram []validate.Bin `json:"pos_histogram"`
	NegHistogram []validate.Bin `json:"neg_histogram"`
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	positives := flag.String("positives", "", "file of positive PMIDs, one per line")
	negatives := flag.String("negatives", "", "file of negative PMIDs (default: sample from the index)")
	numNegs := flag.Int("num-negatives", 0, "number of negatives to sample (overrides config)")
	nfolds := flag.Int("nfolds", 0, "number of folds (overrides config)")
	alpha := flag.Float64("alpha", 0, "precision weight of the F measure (overrides config)")
	utilityR := flag.Float64("utility-r", 0, "relative utility of a true positive (default N/P)")
	seed := flag.Int64("seed", 0, "random seed for sampling and shuffling (overrides config)")
	method := flag.String("method", "bgfreq", "score method (bgfreq, laplace, laplace_split, rubin)")
	indexPath := flag.String("index", "", "feature index path (overrides config)")
	numfeats := flag.Uint("numfeats", 0, "feature universe size (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "validate: %v\n", err)
			os.Exit(errors.ExitArgument)
		}
	}
	if *indexPath != "" {
		cfg.Data.FeatureIndex = *indexPath
	}
	if *numfeats != 0 {
		cfg.Data.NumFeats = uint32(*numfeats)
	}
	if *numNegs != 0 {
		cfg.Validation.NumNegatives = *numNegs
	}
	if *nfolds != 0 {
		cfg.Validation.NFolds = *nfolds
	}
	if *alpha != 0 {
		cfg.Validation.Alpha = *alpha
	}
	if *seed != 0 {
		cfg.Validation.Seed = *seed
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *positives, *negatives, *method, *utilityR); err != nil {
		slog.Error("validation failed", "error", err)
		os.Exit(errors.ExitCode(err))
	}
}

func run(ctx context.Context, cfg *config.Config, posPath, negPath, methodName string, utilityR float64) error {
	log := logger.WithComponent("validate")
	m := metrics.New()

	if posPath == "" {
		return fmt.Errorf("%w: -positives is required", errors.ErrArgument)
	}
	if cfg.Data.FeatureIndex == "" || cfg.Data.NumFeats == 0 {
		return fmt.Errorf("%w: feature index path and numfeats are required", errors.ErrArgument)
	}
	var method scores.Method
	switch methodName {
	case "bgfreq":
		method = scores.MethodBgFreq
	case "laplace":
		method = scores.MethodLaplace
	case "laplace_split":
		method = scores.MethodLaplaceSplit
	case "rubin":
		method = scores.MethodRubin
	default:
		return fmt.Errorf("%w: unknown score method %q", errors.ErrArgument, methodName)
	}

	pos, err := wire.ReadPMIDList(posPath)
	if err != nil {
		return err
	}
	pos = sortUnique(pos)
	if len(pos) < cfg.Validation.NFolds {
		return fmt.Errorf("%w: %d positives for %d folds",
			errors.ErrEmptyLabelled, len(pos), cfg.Validation.NFolds)
	}

	var neg []uint32
	if negPath != "" {
		neg, err = wire.ReadPMIDList(negPath)
		if err != nil {
			return err
		}
		neg = sortUnique(neg)
	} else {
		log.Info("sampling negatives from corpus",
			"count", cfg.Validation.NumNegatives, "seed", cfg.Validation.Seed)
		pool, err := index.DocIDs(cfg.Data.FeatureIndex)
		if err != nil {
			return err
		}
		exclude := make(map[uint32]struct{}, len(pos))
		for _, id := range pos {
			exclude[id] = struct{}{}
		}
		rng := rand.New(rand.NewSource(cfg.Validation.Seed))
		neg, err = validate.SampleSubset(cfg.Validation.NumNegatives, pool, exclude, rng)
		if err != nil {
			return err
		}
	}
	log.Info("validating", "positives", len(pos), "negatives", len(neg),
		"folds", cfg.Validation.NFolds)

	all := make([]uint32, 0, len(pos)+len(neg))
	all = append(all, pos...)
	all = append(all, neg...)
	vectors, err := index.CollectVectors(cfg.Data.FeatureIndex, all)
	if err != nil {
		return err
	}

	v := &validate.Validator{
		Vectors:   vectors,
		FeatInfo:  scores.New(scores.Options{Method: method}),
		NumFeats:  cfg.Data.NumFeats,
		Positives: pos,
		Negatives: neg,
		NFolds:    cfg.Validation.NFolds,
		Seed:      cfg.Validation.Seed,
	}
	start := time.Now()
	pscores, nscores, err := v.Validate(ctx)
	if err != nil {
		return err
	}
	m.ValidationFoldsTotal.Add(float64(cfg.Validation.NFolds))
	log.Info("cross-validation complete", "duration", time.Since(start))

	perf, err := validate.NewPerformance(pscores, nscores, cfg.Validation.Alpha, utilityR)
	if err != nil {
		return err
	}
	prange := validate.NewPerformanceRange(pscores, nscores, cfg.Validation.NFolds, perf.Threshold)

	log.Info("performance",
		"roc_area", perf.W,
		"roc_stderr", perf.WStdErr,
		"pr_area", perf.PRArea,
		"averaged_precision", perf.AvPrec,
		"breakeven", perf.Breakeven,
		"threshold", perf.Threshold,
		"fmeasure_alpha", perf.Tuned.FMeasureAlpha,
	)

	rep := &report{
		Positives:    len(pos),
		Negatives:    len(neg),
		NFolds:       cfg.Validation.NFolds,
		Alpha:        cfg.Validation.Alpha,
		Seed:         cfg.Validation.Seed,
		ROCArea:      perf.ROCArea,
		W:            perf.W,
		WStdErr:      perf.WStdErr,
		PRArea:       perf.PRArea,
		AvPrec:       perf.AvPrec,
		Breakeven:    perf.Breakeven,
		Threshold:    perf.Threshold,
		Tuned:        perf.Tuned,
		Range:        prange,
		TrainStats:   v.FeatInfo.Stats(),
		PosHistogram: validate.Histogram(pscores, 50),
		NegHistogram: validate.Histogram(nscores, 50),
	}
	rep.Curves.Scores = perf.UScores
	rep.Curves.TPR = perf.TPR
	rep.Curves.FPR = perf.FPR
	rep.Curves.Precision = perf.PPV
	rep.Curves.FMa = perf.FMa

	return writeReport(cfg.Validation.OutDir, rep, pscores, nscores, pos, neg)
}

func writeReport(outdir string, rep *report, pscores, nscores []float32, pos, neg []uint32) error {
	if err := os.MkdirAll(outdir, 0755); err != nil {
		return fmt.Errorf("%w: creating output directory: %v", errors.ErrIO, err)
	}
	f, err := os.Create(filepath.Join(outdir, "performance.json"))
	if err != nil {
		return fmt.Errorf("%w: creating report: %v", errors.ErrIO, err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		f.Close()
		return fmt.Errorf("%w: writing report: %v", errors.ErrIO, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing report: %v", errors.ErrIO, err)
	}

	// Per-document scores, aligned with the shuffled fold order, so runs
	// can be compared without re-validating.
	if err := wire.WriteScoredPMIDs(filepath.Join(outdir, "positive_scores.txt"),
		func(i int) (float64, uint32) { return float64(pscores[i]), pos[i] },
		len(pos)); err != nil {
		return err
	}
	return wire.WriteScoredPMIDs(filepath.Join(outdir, "negative_scores.txt"),
		func(i int) (float64, uint32) { return float64(nscores[i]), neg[i] },
		len(neg))
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
