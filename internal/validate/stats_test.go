package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mserrors "github.com/mscanner/mscanner/pkg/errors"
)

func TestPerformanceSeparable(t *testing.T) {
	// Positives score {2,3}, negatives {0,1}: perfectly separable.
	perf, err := NewPerformance([]float32{2, 3}, []float32{0, 1}, 0.5, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, perf.P)
	assert.Equal(t, 2, perf.N)
	assert.Equal(t, []float32{0, 1, 2, 3}, perf.UScores)

	// Confusion counts at each distinct threshold.
	assert.Equal(t, []float64{2, 2, 2, 1}, perf.TP)
	assert.Equal(t, []float64{0, 1, 2, 2}, perf.TN)
	assert.Equal(t, []float64{2, 1, 0, 0}, perf.FP)
	assert.Equal(t, []float64{0, 0, 0, 1}, perf.FN)

	assert.InDelta(t, 1.0, perf.ROCArea, 1e-12)
	assert.InDelta(t, 1.0, perf.W, 1e-12)
	assert.InDelta(t, 0.0, perf.WStdErr, 1e-12)
	assert.InDelta(t, 0.5, perf.PRArea, 1e-12)
	assert.InDelta(t, 1.0, perf.AvPrec, 1e-12)
	assert.InDelta(t, 1.0, perf.Breakeven, 1e-12)

	// The tuned threshold separates the classes exactly.
	assert.InDelta(t, 2.0, perf.Threshold, 1e-12)
	assert.Equal(t, 2, perf.Tuned.TP)
	assert.Equal(t, 2, perf.Tuned.TN)
	assert.Equal(t, 0, perf.Tuned.FP)
	assert.Equal(t, 0, perf.Tuned.FN)
	assert.InDelta(t, 1.0, perf.Tuned.FMeasure, 1e-12)
	assert.InDelta(t, 1.0, perf.Tuned.FMeasureAlpha, 1e-12)
	assert.InDelta(t, 1.0, perf.Tuned.Accuracy, 1e-12)
	assert.InDelta(t, 0.5, perf.Tuned.Prevalence, 1e-12)
	assert.InDelta(t, 2.0, perf.Tuned.Enrichment, 1e-12)
	// Default utility ratio is N/P = 1: (1*2 - 0)/(1*2).
	assert.InDelta(t, 1.0, perf.Tuned.Utility, 1e-12)
}

func TestThresholdTieBreaksLarger(t *testing.T) {
	// FMa is 2/3 at both threshold 1 and threshold 4; the larger wins.
	perf, err := NewPerformance([]float32{1, 4}, []float32{2, 3}, 0.5, 0)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, perf.Threshold, 1e-12)
	assert.Equal(t, 1, perf.Tuned.TP)
	assert.Equal(t, 0, perf.Tuned.FP)
}

func TestUtilityOverride(t *testing.T) {
	perf, err := NewPerformance([]float32{2, 3}, []float32{0, 1}, 0.5, 10)
	require.NoError(t, err)
	// (10*2 - 0) / (10*2)
	assert.InDelta(t, 1.0, perf.Tuned.Utility, 1e-12)

	// An imperfect threshold pays for false positives.
	perf, err = NewPerformance([]float32{1, 3}, []float32{2, 2}, 0.9, 1)
	require.NoError(t, err)
	require.InDelta(t, 3.0, perf.Threshold, 1e-12)
	// TP=1, FP=0 at threshold 3: (1*1-0)/(1*2) = 0.5.
	assert.InDelta(t, 0.5, perf.Tuned.Utility, 1e-12)
}

func TestPerformanceArgumentChecks(t *testing.T) {
	_, err := NewPerformance(nil, []float32{1}, 0.5, 0)
	assert.ErrorIs(t, err, mserrors.ErrEmptyLabelled)

	_, err = NewPerformance([]float32{1}, []float32{1}, 1.5, 0)
	assert.ErrorIs(t, err, mserrors.ErrArgument)
}

func TestHistogram(t *testing.T) {
	bins := Histogram([]float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, 5)
	require.Len(t, bins, 5)
	total := 0
	for _, b := range bins {
		total += b.Count
	}
	assert.Equal(t, 10, total)
	assert.Equal(t, 2, bins[0].Count)

	// Degenerate distribution collapses into the first bin.
	bins = Histogram([]float32{2, 2, 2}, 4)
	require.Len(t, bins, 4)
	assert.Equal(t, 3, bins[0].Count)
}

func TestPerformanceRange(t *testing.T) {
	// Two folds: the first predicts perfectly at threshold 2, the second
	// has one false positive.
	pscores := []float32{3, 4, 2, 5}
	nscores := []float32{0, 1, 3, 1}
	pr := NewPerformanceRange(pscores, nscores, 2, 2)

	assert.InDelta(t, 1.0, pr.Recall.Min, 1e-12)
	assert.InDelta(t, 1.0, pr.Recall.Max, 1e-12)
	assert.InDelta(t, 2.0/3.0, pr.Precision.Min, 1e-12)
	assert.InDelta(t, 1.0, pr.Precision.Max, 1e-12)
	assert.InDelta(t, 0.8, pr.FMeasure.Min, 1e-12)
	assert.InDelta(t, 1.0, pr.FMeasure.Max, 1e-12)
}
