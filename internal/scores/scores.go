// Package scores trains the Naive Bayes feature-score vector from positive
// and negative occurrence counts. A document's score is
// base + prior + sum of scores[f] over its present features: the per-feature
// score is the full log-likelihood switch term for presence (success ratio
// minus failure ratio), so absence stays implicit in the base.
package scores

import (
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"
	mserrors "github.com/mscanner/mscanner/pkg/errors"
)

// Method selects the smoothing scheme used for feature probabilities.
type Method int

const (
	// MethodBgFreq smooths each feature by its background frequency in the
	// combined corpus. The default.
	MethodBgFreq Method = iota
	// MethodLaplace uses a Laplace prior of 1 success out of 2 trials.
	MethodLaplace
	// MethodLaplaceSplit splits one success and one failure between the
	// classes according to class prevalence, avoiding class-skew artifacts.
	MethodLaplaceSplit
	// MethodRubin is the maximum-likelihood classifier with zero
	// probabilities floored at 1e-8. Base and prior are zero and feature
	// selection does not apply.
	MethodRubin
)

func (m Method) String() string {
	switch m {
	case MethodBgFreq:
		return "bgfreq"
	case MethodLaplace:
		return "laplace"
	case MethodLaplaceSplit:
		return "laplace_split"
	case MethodRubin:
		return "rubin"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

// Options control training.
type Options struct {
	Method Method
	// Pseudocount, when non-nil, is a fixed additive smoothing constant for
	// every feature, replacing the background-frequency pseudocount of
	// MethodBgFreq. The other methods ignore it.
	Pseudocount *float64
	// PriorOverride, when non-nil, replaces the ln(P/N) class prior.
	PriorOverride *float64
	// MinCount drops features with fewer total occurrences.
	MinCount uint32
	// MinInfoGain drops features whose relative information gain about the
	// class is below the cutoff.
	MinInfoGain float64
	// PositivesOnly drops features absent from every positive document.
	PositivesOnly bool
}

// FeatureScores holds the trained score vector and its inputs.
type FeatureScores struct {
	Opts Options

	PosCounts []uint32
	NegCounts []uint32
	PDocs     int
	NDocs     int

	// PFreqs and NFreqs are the smoothed per-class occurrence
	// probabilities of each feature.
	PFreqs []float64
	NFreqs []float64
	// Scores[i] is the log-likelihood-ratio delta when feature i occurs.
	Scores []float64
	// Base is the log likelihood ratio of a document with no features: the
	// sum of absence log ratios over selected features.
	Base float64
	// Prior is the class log odds added once per document.
	Prior float64
	// Masked marks features excluded by selection; their score is zero,
	// except under MethodRubin, which ignores selection.
	Masked *bitset.BitSet
}

// New creates an untrained FeatureScores with the given options.
func New(opts Options) *FeatureScores {
	return &FeatureScores{Opts: opts}
}

// Len returns the feature universe size after training.
func (fs *FeatureScores) Len() int {
	return len(fs.Scores)
}

// Update recalculates the feature scores from new occurrence counts.
func (fs *FeatureScores) Update(posCounts, negCounts []uint32, pdocs, ndocs int) error {
	if len(posCounts) != len(negCounts) {
		return fmt.Errorf("%w: count vectors of length %d and %d",
			mserrors.ErrArgument, len(posCounts), len(negCounts))
	}
	if pdocs < 1 {
		return fmt.Errorf("%w: no positive documents", mserrors.ErrEmptyLabelled)
	}
	if ndocs < 1 {
		return fmt.Errorf("%w: no negative documents", mserrors.ErrEmptyLabelled)
	}
	fs.PosCounts = posCounts
	fs.NegCounts = negCounts
	fs.PDocs = pdocs
	fs.NDocs = ndocs

	if fs.Opts.PriorOverride != nil {
		fs.Prior = *fs.Opts.PriorOverride
	} else {
		fs.Prior = math.Log(float64(pdocs) / float64(ndocs))
	}

	fs.Masked = fs.selectionMask()
	switch fs.Opts.Method {
	case MethodRubin:
		fs.trainRubin()
	case MethodLaplace:
		fs.trainBayes(func(i int) (float64, float64, float64, float64) {
			return 1, 2, 1, 2
		})
	case MethodLaplaceSplit:
		p := float64(pdocs) / float64(pdocs+ndocs)
		fs.trainBayes(func(i int) (float64, float64, float64, float64) {
			return p, 2 * p, 1 - p, 2 * (1 - p)
		})
	default: // MethodBgFreq
		if fs.Opts.Pseudocount != nil {
			a := *fs.Opts.Pseudocount
			fs.trainBayes(func(i int) (float64, float64, float64, float64) {
				return a, 1, a, 1
			})
		} else {
			total := float64(pdocs + ndocs)
			fs.trainBayes(func(i int) (float64, float64, float64, float64) {
				bg := float64(fs.PosCounts[i]+fs.NegCounts[i]) / total
				return bg, 1, bg, 1
			})
		}
	}
	return nil
}

// trainBayes estimates Bernoulli success probabilities under a beta prior
// and converts success/failure log ratios into occurrence scores plus a
// base score. The prior callback yields (posA, posAB, negA, negAB) for
// feature i: A successes out of AB total pseudo-observations.
func (fs *FeatureScores) trainBayes(prior func(i int) (float64, float64, float64, float64)) {
	n := len(fs.PosCounts)
	fs.PFreqs = make([]float64, n)
	fs.NFreqs = make([]float64, n)
	fs.Scores = make([]float64, n)
	fs.Base = 0
	for i := 0; i < n; i++ {
		posA, posAB, negA, negAB := prior(i)
		pf := clamp((posA + float64(fs.PosCounts[i])) / (posAB + float64(fs.PDocs)))
		nf := clamp((negA + float64(fs.NegCounts[i])) / (negAB + float64(fs.NDocs)))
		fs.PFreqs[i] = pf
		fs.NFreqs[i] = nf
		if fs.Masked.Test(uint(i)) {
			continue
		}
		success := math.Log(pf / nf)
		failure := math.Log((1 - pf) / (1 - nf))
		fs.Base += failure
		fs.Scores[i] = success - failure
	}
}

// probFloor keeps smoothed frequencies strictly inside (0,1) so every log
// ratio stays finite. A labelled set of one document can otherwise saturate
// a frequency at exactly 1.
const probFloor = 1e-8

func clamp(p float64) float64 {
	if p < probFloor {
		return probFloor
	}
	if p > 1-probFloor {
		return 1 - probFloor
	}
	return p
}

// trainRubin is the maximum-likelihood scorer: zero base and prior, with
// zero probabilities replaced by 1e-8. Feature selection is ignored.
func (fs *FeatureScores) trainRubin() {
	n := len(fs.PosCounts)
	fs.PFreqs = make([]float64, n)
	fs.NFreqs = make([]float64, n)
	fs.Scores = make([]float64, n)
	fs.Base = 0
	fs.Prior = 0
	for i := 0; i < n; i++ {
		pf := float64(fs.PosCounts[i]) / float64(fs.PDocs)
		nf := float64(fs.NegCounts[i]) / float64(fs.NDocs)
		if pf == 0 {
			pf = probFloor
		}
		if nf == 0 {
			nf = probFloor
		}
		fs.PFreqs[i] = pf
		fs.NFreqs[i] = nf
		fs.Scores[i] = math.Log(pf) - math.Log(nf)
	}
}

// Offset returns base + prior, the constant added to every document score.
func (fs *FeatureScores) Offset() float64 {
	return fs.Base + fs.Prior
}

// ScoreOf evaluates one document's score from its feature vector.
func (fs *FeatureScores) ScoreOf(features []uint32) float64 {
	s := fs.Base + fs.Prior
	for _, f := range features {
		s += fs.Scores[f]
	}
	return s
}
