package scores

import (
	"math"

	"github.com/bits-and-blooms/bitset"
)

// selectionMask builds the excluded-feature mask from the document
// frequency cutoff, the positives-only rule, and the information-gain
// cutoff.
func (fs *FeatureScores) selectionMask() *bitset.BitSet {
	n := uint(len(fs.PosCounts))
	mask := bitset.New(n)
	if fs.Opts.MinCount > 0 {
		for i := range fs.PosCounts {
			if fs.PosCounts[i]+fs.NegCounts[i] < fs.Opts.MinCount {
				mask.Set(uint(i))
			}
		}
	}
	if fs.Opts.PositivesOnly {
		for i := range fs.PosCounts {
			if fs.PosCounts[i] == 0 {
				mask.Set(uint(i))
			}
		}
	}
	if fs.Opts.MinInfoGain > 0 {
		ig := fs.RelativeInfoGain()
		for i, g := range ig {
			if g < fs.Opts.MinInfoGain {
				mask.Set(uint(i))
			}
		}
	}
	return mask
}

// SelectedCount returns the number of features that survived selection.
func (fs *FeatureScores) SelectedCount() int {
	return len(fs.PosCounts) - int(fs.Masked.Count())
}

// entropy in bits of a probability component.
func info(p float64) float64 {
	if p <= 0 {
		return 0
	}
	return -p * math.Log2(p)
}

// RelativeInfoGain computes, for each feature, the information gain of the
// class label given the feature's presence, normalised by the entropy of
// the class label. Probabilities on the 2x2 contingency are smoothed with
// one pseudo-observation per cell.
func (fs *FeatureScores) RelativeInfoGain() []float64 {
	nfeats := len(fs.PosCounts)
	out := make([]float64, nfeats)

	N := float64(fs.PDocs + fs.NDocs)
	pR := float64(fs.PDocs) / N
	pI := float64(fs.NDocs) / N
	classEntropy := info(pR) + info(pI)
	if classEntropy == 0 {
		return out
	}
	for i := 0; i < nfeats; i++ {
		T := float64(fs.PosCounts[i] + fs.NegCounts[i])
		pT := T / N
		pRgT := (float64(fs.PosCounts[i]) + 1) / (T + 2)
		pRgNT := (float64(fs.PDocs-int(fs.PosCounts[i])) + 1) / (N - T + 2)
		pIgT := (float64(fs.NegCounts[i]) + 1) / (T + 2)
		pIgNT := (float64(fs.NDocs-int(fs.NegCounts[i])) + 1) / (N - T + 2)

		condEntropy := pT*(info(pRgT)+info(pIgT)) + (1-pT)*(info(pRgNT)+info(pIgNT))
		out[i] = (classEntropy - condEntropy) / classEntropy
	}
	return out
}
