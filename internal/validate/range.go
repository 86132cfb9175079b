package validate

import "sort"

// Range holds the per-fold minimum and maximum of a statistic at a fixed
// threshold.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r *Range) extend(v float64) {
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
}

// PerformanceRange spreads precision, recall and F measure across the
// validation folds at the tuned threshold, showing how stable the tuned
// point is.
type PerformanceRange struct {
	Threshold float64 `json:"threshold"`
	Precision Range   `json:"precision"`
	Recall    Range   `json:"recall"`
	FMeasure  Range   `json:"fmeasure"`
}

// NewPerformanceRange recomputes the confusion matrix at threshold inside
// each fold's slice of the (unshuffled-by-fold) score vectors and tracks
// the extremes of the derived ratios.
func NewPerformanceRange(pscores, nscores []float32, nfolds int, threshold float64) *PerformanceRange {
	pr := &PerformanceRange{
		Threshold: threshold,
		Precision: Range{Min: 1, Max: 0},
		Recall:    Range{Min: 1, Max: 0},
		FMeasure:  Range{Min: 1, Max: 0},
	}
	pstarts, psizes := partitions(len(pscores), nfolds)
	nstarts, nsizes := partitions(len(nscores), nfolds)
	for fold := 0; fold < nfolds; fold++ {
		tp, fn := countSplit(pscores[pstarts[fold]:pstarts[fold]+psizes[fold]], threshold)
		fp, _ := countSplit(nscores[nstarts[fold]:nstarts[fold]+nsizes[fold]], threshold)

		var prec, rec, fmeas float64
		if tp+fp > 0 {
			prec = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			rec = float64(tp) / float64(tp+fn)
		}
		if prec+rec > 0 {
			fmeas = 2 * prec * rec / (prec + rec)
		}
		pr.Precision.extend(prec)
		pr.Recall.extend(rec)
		pr.FMeasure.extend(fmeas)
	}
	return pr
}

// countSplit returns how many scores lie at-or-above and below the
// threshold.
func countSplit(scores []float32, threshold float64) (above, below int) {
	sorted := append([]float32(nil), scores...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for below < len(sorted) && float64(sorted[below]) < threshold {
		below++
	}
	return len(sorted) - below, below
}
