// Package counter produces per-feature occurrence counts over the feature
// index, restricted to a date window and excluding a sorted document set.
// It supplies the background (negative-class) statistics for training.
package counter

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mscanner/mscanner/internal/index"
	mserrors "github.com/mscanner/mscanner/pkg/errors"
)

// cancelStride is how many records are processed between cancellation
// checks.
const cancelStride = 1024

// Params are the inputs of a counting scan.
type Params struct {
	IndexPath string
	// NumDocs is the externally stored record count; 0 scans to EOF.
	NumDocs int64
	// NumFeats is the feature universe size F.
	NumFeats uint32
	MinDate  uint32
	MaxDate  uint32
	// Excluded documents are skipped. Must be sorted ascending and unique.
	Excluded []uint32
}

// Result is the document count and dense per-feature occurrence vector.
type Result struct {
	NDocs  uint32
	Counts []uint32
}

// ValidateExcluded checks the binary-search precondition on an exclusion
// list: sorted ascending with no duplicates.
func ValidateExcluded(excluded []uint32) error {
	for i := 1; i < len(excluded); i++ {
		if excluded[i] <= excluded[i-1] {
			return fmt.Errorf("%w: %d follows %d at position %d",
				mserrors.ErrInvalidExclusion, excluded[i], excluded[i-1], i)
		}
	}
	return nil
}

// Count streams the feature index once and counts feature occurrences over
// documents inside the date window and outside the exclusion set.
func Count(ctx context.Context, p Params) (*Result, error) {
	if p.NumFeats == 0 {
		return nil, fmt.Errorf("%w: feature universe size is zero", mserrors.ErrArgument)
	}
	if p.MinDate > p.MaxDate {
		return nil, fmt.Errorf("%w: mindate %d exceeds maxdate %d",
			mserrors.ErrArgument, p.MinDate, p.MaxDate)
	}
	if err := ValidateExcluded(p.Excluded); err != nil {
		return nil, err
	}

	r, err := index.OpenReader(p.IndexPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	log := slog.Default().With("component", "feature-counter")
	start := time.Now()
	res := &Result{Counts: make([]uint32, p.NumFeats)}
	for p.NumDocs == 0 || r.Records() < p.NumDocs {
		if r.Records()%cancelStride == 0 && ctx.Err() != nil {
			return nil, mserrors.ErrCancelled
		}
		rec, err := r.ReadNext()
		if err != nil {
			return nil, err
		}
		if rec == nil {
			if p.NumDocs != 0 {
				return nil, fmt.Errorf("%w: expected %d records, index ends after %d",
					mserrors.ErrTruncatedIndex, p.NumDocs, r.Records())
			}
			break
		}
		if !rec.InWindow(p.MinDate, p.MaxDate) {
			continue
		}
		if contains(p.Excluded, rec.PMID) {
			continue
		}
		for _, f := range rec.Features {
			if f >= p.NumFeats {
				return nil, fmt.Errorf("%w: feature %d outside universe of %d",
					mserrors.ErrArgument, f, p.NumFeats)
			}
			res.Counts[f]++
		}
		res.NDocs++
	}
	log.Debug("counting scan complete",
		"records", r.Records(),
		"counted", res.NDocs,
		"excluded", len(p.Excluded),
		"duration", time.Since(start),
	)
	return res, nil
}

// contains binary-searches a sorted exclusion list.
func contains(sorted []uint32, id uint32) bool {
	i := sort.Search(len(sorted), func(j int) bool { return sorted[j] >= id })
	return i < len(sorted) && sorted[i] == id
}
