package index

import (
	"fmt"

	mserrors "github.com/mscanner/mscanner/pkg/errors"
)

// DocIDs scans the index and returns every document identifier in file
// order. Used as the sampling pool for cross-validation negatives.
func DocIDs(path string) ([]uint32, error) {
	r, err := OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	ids := make([]uint32, 0, 1<<20)
	for {
		rec, err := r.ReadNext()
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return ids, nil
		}
		ids = append(ids, rec.PMID)
	}
}

// CollectVectors scans the index and returns the feature vector of every
// requested document. Duplicate index records keep the last vector seen.
// Requested documents missing from the index are absent from the result.
func CollectVectors(path string, ids []uint32) (map[uint32][]uint32, error) {
	want := make(map[uint32]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	r, err := OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	vectors := make(map[uint32][]uint32, len(ids))
	for {
		rec, err := r.ReadNext()
		if err != nil {
			return nil, err
		}
		if rec == nil {
			break
		}
		if _, ok := want[rec.PMID]; !ok {
			continue
		}
		v := make([]uint32, len(rec.Features))
		copy(v, rec.Features)
		vectors[rec.PMID] = v
	}
	if len(vectors) == 0 && len(ids) > 0 {
		return nil, fmt.Errorf("%w: none of %d documents found in index",
			mserrors.ErrArgument, len(ids))
	}
	return vectors, nil
}
