// Package validate implements stratified k-fold cross-validation over a
// labelled positive set and a sampled negative set, and derives the
// performance curves and tuned threshold from the combined fold scores.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/mscanner/mscanner/internal/scores"
	mserrors "github.com/mscanner/mscanner/pkg/errors"
)

// Validator drives cross-validated scoring. Feature vectors for every
// labelled document are collected up front (one index scan) so fold
// training reduces to count subtraction.
type Validator struct {
	// Vectors maps each labelled document to its feature vector.
	Vectors map[uint32][]uint32
	// FeatInfo performs fold training. Its prior is overridden with the
	// global ln(P/N) so folds differ only in their training counts.
	FeatInfo *scores.FeatureScores
	// NumFeats is the feature universe size F.
	NumFeats  uint32
	Positives []uint32
	Negatives []uint32
	NFolds    int
	Seed      int64
}

// partitions computes the start index and length of each stratified
// contiguous slice. Remainder items go to the leading folds.
func partitions(nitems, nparts int) (starts, sizes []int) {
	base, rem := nitems/nparts, nitems%nparts
	starts = make([]int, nparts)
	sizes = make([]int, nparts)
	for i := 0; i < nparts; i++ {
		sizes[i] = base
		if i < rem {
			sizes[i]++
		}
		if i > 0 {
			starts[i] = starts[i-1] + sizes[i-1]
		}
	}
	return starts, sizes
}

// countFeatures accumulates per-feature occurrence counts over a slice of
// labelled documents.
func (v *Validator) countFeatures(ids []uint32) []uint32 {
	counts := make([]uint32, v.NumFeats)
	for _, id := range ids {
		for _, f := range v.Vectors[id] {
			counts[f]++
		}
	}
	return counts
}

func (v *Validator) preflight() error {
	if v.NFolds < 2 {
		return fmt.Errorf("%w: %d folds", mserrors.ErrArgument, v.NFolds)
	}
	if len(v.Positives) < v.NFolds {
		return fmt.Errorf("%w: %d positives for %d folds",
			mserrors.ErrEmptyLabelled, len(v.Positives), v.NFolds)
	}
	if len(v.Negatives) < v.NFolds {
		return fmt.Errorf("%w: %d negatives for %d folds",
			mserrors.ErrArgument, len(v.Negatives), v.NFolds)
	}
	for _, id := range v.Positives {
		if _, ok := v.Vectors[id]; !ok {
			return fmt.Errorf("%w: positive %d missing from index", mserrors.ErrArgument, id)
		}
	}
	for _, id := range v.Negatives {
		if _, ok := v.Vectors[id]; !ok {
			return fmt.Errorf("%w: negative %d missing from index", mserrors.ErrArgument, id)
		}
	}
	return nil
}

// Validate shuffles both corpora with the seeded generator, partitions
// them into NFolds stratified slices, and for each fold trains on the
// remainder and scores the held-out documents. It returns the positive and
// negative test scores aligned with the shuffled orders.
func (v *Validator) Validate(ctx context.Context) (pscores, nscores []float32, err error) {
	if err := v.preflight(); err != nil {
		return nil, nil, err
	}
	log := slog.Default().With("component", "cross-validator")
	pdocs := len(v.Positives)
	ndocs := len(v.Negatives)
	log.Debug("cross-validating", "positives", pdocs, "negatives", ndocs,
		"folds", v.NFolds, "seed", v.Seed)

	rng := rand.New(rand.NewSource(v.Seed))
	rng.Shuffle(pdocs, func(i, j int) {
		v.Positives[i], v.Positives[j] = v.Positives[j], v.Positives[i]
	})
	rng.Shuffle(ndocs, func(i, j int) {
		v.Negatives[i], v.Negatives[j] = v.Negatives[j], v.Negatives[i]
	})

	pstarts, psizes := partitions(pdocs, v.NFolds)
	nstarts, nsizes := partitions(ndocs, v.NFolds)
	pscores = make([]float32, pdocs)
	nscores = make([]float32, ndocs)

	pcounts := v.countFeatures(v.Positives)
	ncounts := v.countFeatures(v.Negatives)

	// Each fold re-derives its base from its own training counts; the
	// prior stays the global class log odds.
	prior := math.Log(float64(pdocs) / float64(ndocs))
	v.FeatInfo.Opts.PriorOverride = &prior

	for fold := 0; fold < v.NFolds; fold++ {
		if ctx.Err() != nil {
			return nil, nil, mserrors.ErrCancelled
		}
		pstart, psize := pstarts[fold], psizes[fold]
		nstart, nsize := nstarts[fold], nsizes[fold]
		log.Debug("fold", "n", fold, "pstart", pstart, "psize", psize,
			"nstart", nstart, "nsize", nsize)

		ptest := v.Positives[pstart : pstart+psize]
		ntest := v.Negatives[nstart : nstart+nsize]
		trainPos := subtractCounts(pcounts, v.countFeatures(ptest))
		trainNeg := subtractCounts(ncounts, v.countFeatures(ntest))
		if err := v.FeatInfo.Update(trainPos, trainNeg, pdocs-psize, ndocs-nsize); err != nil {
			return nil, nil, err
		}
		for i, id := range ptest {
			pscores[pstart+i] = float32(v.FeatInfo.ScoreOf(v.Vectors[id]))
		}
		for i, id := range ntest {
			nscores[nstart+i] = float32(v.FeatInfo.ScoreOf(v.Vectors[id]))
		}
	}
	return pscores, nscores, nil
}

func subtractCounts(total, part []uint32) []uint32 {
	out := make([]uint32, len(total))
	for i := range total {
		out[i] = total[i] - part[i]
	}
	return out
}
