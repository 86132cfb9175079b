package validate

import (
	"fmt"
	"math"
	"sort"

	mserrors "github.com/mscanner/mscanner/pkg/errors"
)

// Performance derives classification statistics from cross-validated
// positive and negative document scores. Vectors are indexed by the
// distinct score thresholds in increasing order.
type Performance struct {
	Alpha    float64
	UtilityR float64

	// P, N and A = P+N summarise the input.
	P int
	N int
	A int

	pscores []float32 // sorted ascending
	nscores []float32 // sorted ascending

	// UScores are the distinct scores in increasing order; every other
	// vector is aligned with it.
	UScores []float32
	// PE and NE count positives/negatives carrying each distinct score.
	PE []float64
	NE []float64
	// Confusion counts at each threshold: documents scoring below the
	// threshold are classified negative.
	TP []float64
	TN []float64
	FP []float64
	FN []float64
	// Ratio vectors: recall, fallout, precision, F and alpha-weighted F.
	TPR []float64
	FPR []float64
	PPV []float64
	FM  []float64
	FMa []float64

	ROCArea float64
	PRArea  float64
	// W is the Wilcoxon ROC area with the Hanley-McNeil standard error.
	W       float64
	WStdErr float64
	AvPrec  float64

	BreakevenIndex int
	Breakeven      float64

	ThresholdIndex int
	Threshold      float64

	Tuned TunedStats
}

// TunedStats is the performance at the tuned threshold.
type TunedStats struct {
	TP int `json:"tp"`
	TN int `json:"tn"`
	FP int `json:"fp"`
	FN int `json:"fn"`

	TPR float64 `json:"tpr"`
	FNR float64 `json:"fnr"`
	TNR float64 `json:"tnr"`
	FPR float64 `json:"fpr"`
	PPV float64 `json:"ppv"`
	NPV float64 `json:"npv"`
	FDR float64 `json:"fdr"`

	Accuracy      float64 `json:"accuracy"`
	Prevalence    float64 `json:"prevalence"`
	Error         float64 `json:"error"`
	Enrichment    float64 `json:"enrichment"`
	FMeasure      float64 `json:"fmeasure"`
	FMeasureAlpha float64 `json:"fmeasure_alpha"`
	FMeasureMax   float64 `json:"fmeasure_max"`
	Utility       float64 `json:"utility"`
	FPTPRatio     float64 `json:"fp_tp_ratio"`
}

// NewPerformance computes all statistics from the fold scores. utilityR of
// zero selects the default N/P ratio.
func NewPerformance(pscores, nscores []float32, alpha float64, utilityR float64) (*Performance, error) {
	if len(pscores) == 0 || len(nscores) == 0 {
		return nil, fmt.Errorf("%w: empty score vectors", mserrors.ErrEmptyLabelled)
	}
	if alpha <= 0 || alpha >= 1 {
		return nil, fmt.Errorf("%w: alpha %g outside (0,1)", mserrors.ErrArgument, alpha)
	}
	p := &Performance{
		Alpha:    alpha,
		UtilityR: utilityR,
		P:        len(pscores),
		N:        len(nscores),
		A:        len(pscores) + len(nscores),
		pscores:  append([]float32(nil), pscores...),
		nscores:  append([]float32(nil), nscores...),
	}
	sort.Slice(p.pscores, func(i, j int) bool { return p.pscores[i] < p.pscores[j] })
	sort.Slice(p.nscores, func(i, j int) bool { return p.nscores[i] < p.nscores[j] })
	if p.UtilityR == 0 {
		p.UtilityR = float64(p.N) / float64(p.P)
	}
	p.makeConfusionMatrix()
	p.makeRatioVectors()
	p.makeCurveAreas()
	p.rocError()
	p.averagedPrecision()
	p.maximiseFMeasure()
	p.findBreakeven()
	p.makeTunedStats()
	return p, nil
}

// makeConfusionMatrix walks the distinct scores in increasing order and
// accumulates the confusion counts at each threshold.
func (p *Performance) makeConfusionMatrix() {
	merged := make([]float32, 0, p.A)
	merged = append(merged, p.pscores...)
	merged = append(merged, p.nscores...)
	sort.Slice(merged, func(i, j int) bool { return merged[i] < merged[j] })
	p.UScores = merged[:0]
	for i, s := range merged {
		if i == 0 || s != p.UScores[len(p.UScores)-1] {
			p.UScores = append(p.UScores, s)
		}
	}

	vlen := len(p.UScores)
	p.PE = make([]float64, vlen)
	p.NE = make([]float64, vlen)
	p.TP = make([]float64, vlen)
	p.TN = make([]float64, vlen)
	p.FP = make([]float64, vlen)
	p.FN = make([]float64, vlen)
	fn := 0
	tn := 0
	for idx, threshold := range p.UScores {
		for fn < p.P && p.pscores[fn] < threshold {
			fn++
		}
		pcount := fn
		for pcount < p.P && p.pscores[pcount] == threshold {
			pcount++
		}
		p.PE[idx] = float64(pcount - fn)

		for tn < p.N && p.nscores[tn] < threshold {
			tn++
		}
		ncount := tn
		for ncount < p.N && p.nscores[ncount] == threshold {
			ncount++
		}
		p.NE[idx] = float64(ncount - tn)

		p.TP[idx] = float64(p.P - fn)
		p.FN[idx] = float64(fn)
		p.TN[idx] = float64(tn)
		p.FP[idx] = float64(p.N - tn)
	}
}

func (p *Performance) makeRatioVectors() {
	vlen := len(p.UScores)
	p.TPR = make([]float64, vlen)
	p.FPR = make([]float64, vlen)
	p.PPV = make([]float64, vlen)
	p.FM = make([]float64, vlen)
	p.FMa = make([]float64, vlen)
	for i := 0; i < vlen; i++ {
		p.TPR[i] = p.TP[i] / float64(p.P)
		p.FPR[i] = p.FP[i] / float64(p.N)
		if p.TP[i]+p.FP[i] == 0 {
			p.PPV[i] = 1.0
		} else {
			p.PPV[i] = p.TP[i] / (p.TP[i] + p.FP[i])
		}
		if p.TPR[i]+p.PPV[i] > 0 {
			p.FM[i] = 2 * p.TPR[i] * p.PPV[i] / (p.TPR[i] + p.PPV[i])
		}
		if p.TPR[i] > 0 && p.PPV[i] > 0 {
			p.FMa[i] = 1 / (p.Alpha/p.PPV[i] + (1-p.Alpha)/p.TPR[i])
		}
	}
}

// trapz integrates y over x by the trapezoid rule.
func trapz(y, x []float64) float64 {
	var area float64
	for i := 1; i < len(x); i++ {
		area += (x[i] - x[i-1]) * (y[i] + y[i-1]) / 2
	}
	return area
}

// makeCurveAreas integrates the ROC and precision-recall curves. TPR and
// FPR decrease as the threshold climbs, so the vectors are reversed to get
// increasing abscissae.
func (p *Performance) makeCurveAreas() {
	vlen := len(p.UScores)
	revTPR := make([]float64, vlen)
	revFPR := make([]float64, vlen)
	revPPV := make([]float64, vlen)
	for i := 0; i < vlen; i++ {
		revTPR[i] = p.TPR[vlen-1-i]
		revFPR[i] = p.FPR[vlen-1-i]
		revPPV[i] = p.PPV[vlen-1-i]
	}
	p.ROCArea = trapz(revTPR, revFPR)
	p.PRArea = trapz(revPPV, revTPR)
}

// rocError computes the Wilcoxon ROC area W and its standard error by the
// Hanley-McNeil method. The r vectors follow Table II of Hanley (1982).
func (p *Performance) rocError() {
	var sum5, sum6, sum7 float64
	for i := range p.UScores {
		r1 := p.NE[i]
		r2 := p.TP[i] - p.PE[i]
		r3 := p.PE[i]
		r4 := p.TN[i]
		sum5 += r1*r2 + 0.5*r1*r3
		sum6 += r3 * (r4*r4 + r4*r1 + r1*r1/3)
		sum7 += r1 * (r2*r2 + r2*r3 + r3*r3/3)
	}
	N := float64(p.N)
	P := float64(p.P)
	W := sum5 / (N * P)
	Q2 := sum6 / (P * N * N)
	Q1 := sum7 / (N * P * P)
	p.W = W
	p.WStdErr = math.Sqrt((W*(1-W) + (P-1)*(Q1-W*W) + (N-1)*(Q2-W*W)) / (P * N))
}

// averagedPrecision averages precision over each rank where a positive is
// retrieved, merging the two sorted score lists in decreasing order.
// Positives win ties so a tied positive is retrieved before the negative.
func (p *Performance) averagedPrecision() {
	pi := p.P - 1
	ni := p.N - 1
	var avprec float64
	tp, fp := 0, 0
	for pi >= 0 || ni >= 0 {
		if pi >= 0 && (ni < 0 || p.pscores[pi] >= p.nscores[ni]) {
			tp++
			avprec += float64(tp) / float64(tp+fp)
			pi--
		} else {
			fp++
			ni--
		}
	}
	p.AvPrec = avprec / float64(tp)
}

// maximiseFMeasure tunes the threshold to the maximum alpha-weighted F
// measure, breaking ties toward the larger threshold.
func (p *Performance) maximiseFMeasure() {
	best := math.Inf(-1)
	for i, fma := range p.FMa {
		if fma >= best {
			best = fma
			p.ThresholdIndex = i
		}
	}
	p.Threshold = float64(p.UScores[p.ThresholdIndex])
}

// findBreakeven locates the interpolated point where recall equals
// precision.
func (p *Performance) findBreakeven() {
	bestDiff := math.Inf(1)
	for i := range p.UScores {
		diff := math.Abs(p.TPR[i] - p.PPV[i])
		if diff < bestDiff {
			bestDiff = diff
			p.BreakevenIndex = i
		}
	}
	p.Breakeven = 0.5 * (p.TPR[p.BreakevenIndex] + p.PPV[p.BreakevenIndex])
}

func (p *Performance) makeTunedStats() {
	i := p.ThresholdIndex
	t := TunedStats{
		TP: int(p.TP[i]),
		TN: int(p.TN[i]),
		FP: int(p.FP[i]),
		FN: int(p.FN[i]),
	}
	if t.TP+t.FN != 0 {
		t.TPR = float64(t.TP) / float64(t.TP+t.FN)
		t.FNR = float64(t.FN) / float64(t.TP+t.FN)
	}
	if t.TN+t.FP != 0 {
		t.TNR = float64(t.TN) / float64(t.TN+t.FP)
		t.FPR = float64(t.FP) / float64(t.TN+t.FP)
	}
	if t.TP+t.FP != 0 {
		t.PPV = float64(t.TP) / float64(t.TP+t.FP)
		t.FDR = float64(t.FP) / float64(t.TP+t.FP)
	}
	if t.TN+t.FN != 0 {
		t.NPV = float64(t.TN) / float64(t.TN+t.FN)
	}
	if p.A != 0 {
		t.Accuracy = float64(t.TP+t.TN) / float64(p.A)
		t.Prevalence = float64(p.P) / float64(p.A)
	}
	t.Error = 1 - t.Accuracy
	if t.TPR > 0 && t.PPV > 0 {
		t.FMeasure = 2 * t.TPR * t.PPV / (t.TPR + t.PPV)
		t.FMeasureAlpha = 1 / (p.Alpha/t.PPV + (1-p.Alpha)/t.TPR)
		for _, fm := range p.FM {
			if fm > t.FMeasureMax {
				t.FMeasureMax = fm
			}
		}
	}
	if t.Prevalence > 0 {
		t.Enrichment = t.PPV / t.Prevalence
	}
	if t.TP != 0 {
		t.FPTPRatio = float64(t.FP) / float64(t.TP)
	}
	t.Utility = (p.UtilityR*float64(t.TP) - float64(t.FP)) / (p.UtilityR * float64(p.P))
	p.Tuned = t
}

// Bin is one histogram bucket of a score distribution.
type Bin struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Count int     `json:"count"`
}

// Histogram buckets a score distribution into nbins equal-width bins.
func Histogram(scores []float32, nbins int) []Bin {
	if len(scores) == 0 || nbins < 1 {
		return nil
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	width := float64(hi-lo) / float64(nbins)
	bins := make([]Bin, nbins)
	for i := range bins {
		bins[i].Low = float64(lo) + float64(i)*width
		bins[i].High = bins[i].Low + width
	}
	if width == 0 {
		bins[0].Count = len(scores)
		return bins
	}
	for _, s := range scores {
		i := int(float64(s-lo) / width)
		if i >= nbins {
			i = nbins - 1
		}
		bins[i].Count++
	}
	return bins
}
