package scores

import (
	"fmt"
	"io"
	"math"
	"sort"
)

// Stats summarises a trained score vector for reporting.
type Stats struct {
	FeatsTotal  int `json:"feats_total"`
	FeatsMasked int `json:"feats_masked"`
	FeatsUsed   int `json:"feats_used"`

	PosDocs int `json:"pos_docs"`
	NegDocs int `json:"neg_docs"`

	PosOccurrences int `json:"pos_occurrences"`
	NegOccurrences int `json:"neg_occurrences"`

	PosAverage float64 `json:"pos_average"`
	NegAverage float64 `json:"neg_average"`

	PosDistinct int `json:"pos_distinct"`
	NegDistinct int `json:"neg_distinct"`
}

// Stats computes summary statistics over the unmasked features.
func (fs *FeatureScores) Stats() Stats {
	s := Stats{
		FeatsTotal:  len(fs.Scores),
		FeatsMasked: int(fs.Masked.Count()),
		PosDocs:     fs.PDocs,
		NegDocs:     fs.NDocs,
	}
	s.FeatsUsed = s.FeatsTotal - s.FeatsMasked
	for i := range fs.PosCounts {
		if fs.Masked.Test(uint(i)) {
			continue
		}
		s.PosOccurrences += int(fs.PosCounts[i])
		s.NegOccurrences += int(fs.NegCounts[i])
		if fs.PosCounts[i] != 0 {
			s.PosDistinct++
		}
		if fs.NegCounts[i] != 0 {
			s.NegDistinct++
		}
	}
	if fs.PDocs > 0 {
		s.PosAverage = float64(s.PosOccurrences) / float64(fs.PDocs)
	}
	if fs.NDocs > 0 {
		s.NegAverage = float64(s.NegOccurrences) / float64(fs.NDocs)
	}
	return s
}

// TFIDF returns per-feature TF-IDF where term frequency treats the positive
// corpus as one large document and document frequency counts both classes.
func (fs *FeatureScores) TFIDF() []float64 {
	out := make([]float64, len(fs.PosCounts))
	var posTotal float64
	for _, c := range fs.PosCounts {
		posTotal += float64(c)
	}
	if posTotal == 0 {
		return out
	}
	N := float64(fs.PDocs + fs.NDocs)
	for i := range fs.PosCounts {
		df := float64(fs.PosCounts[i] + fs.NegCounts[i])
		if df == 0 {
			continue
		}
		tf := float64(fs.PosCounts[i]) / posTotal
		out[i] = tf * math.Log(N/df)
	}
	return out
}

// FeatureTFIDF pairs a feature with its TF-IDF and trained score.
type FeatureTFIDF struct {
	Feature  uint32  `json:"feature"`
	TFIDF    float64 `json:"tfidf"`
	Score    float64 `json:"score"`
	PosCount uint32  `json:"pos_count"`
	NegCount uint32  `json:"neg_count"`
}

// BestTFIDF returns the top count features by TF-IDF, descending.
func (fs *FeatureScores) BestTFIDF(count int) []FeatureTFIDF {
	tfidf := fs.TFIDF()
	rows := make([]FeatureTFIDF, 0, len(tfidf))
	for i, t := range tfidf {
		rows = append(rows, FeatureTFIDF{
			Feature:  uint32(i),
			TFIDF:    t,
			Score:    fs.Scores[i],
			PosCount: fs.PosCounts[i],
			NegCount: fs.NegCounts[i],
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TFIDF != rows[j].TFIDF {
			return rows[i].TFIDF > rows[j].TFIDF
		}
		return rows[i].Feature < rows[j].Feature
	})
	if count < len(rows) {
		rows = rows[:count]
	}
	return rows
}

// WriteCSV dumps unmasked feature scores in decreasing score order.
// maxfeats <= 0 writes all of them.
func (fs *FeatureScores) WriteCSV(w io.Writer, maxfeats int) error {
	if _, err := fmt.Fprintln(w, "score,positives,negatives,pfreq,nfreq,feature"); err != nil {
		return err
	}
	order := make([]int, len(fs.Scores))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if fs.Scores[i] != fs.Scores[j] {
			return fs.Scores[i] > fs.Scores[j]
		}
		return i < j
	})
	written := 0
	for _, i := range order {
		if fs.Masked.Test(uint(i)) {
			continue
		}
		if maxfeats > 0 && written >= maxfeats {
			break
		}
		if _, err := fmt.Fprintf(w, "%.3f,%d,%d,%.2e,%.2e,%d\n",
			fs.Scores[i], fs.PosCounts[i], fs.NegCounts[i],
			fs.PFreqs[i], fs.NFreqs[i], i); err != nil {
			return err
		}
		written++
	}
	return nil
}
