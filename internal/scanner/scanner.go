// Package scanner streams the feature index once and returns the top-K
// documents by Naive Bayes score. The single-threaded path is the
// reference; parallelism over record-aligned byte ranges is opt-in.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mscanner/mscanner/internal/index"
	mserrors "github.com/mscanner/mscanner/pkg/errors"
)

// cancelStride is how many records are processed between cancellation
// checks.
const cancelStride = 1024

// Params are the inputs of a scoring scan.
type Params struct {
	IndexPath string
	// NumDocs is the externally stored record count; 0 scans to EOF.
	NumDocs int64
	// Scores is the trained feature-score vector, float64 as stored;
	// the scan accumulates in float32.
	Scores []float64
	// Offset (base + prior) is added to every document score.
	Offset float64
	// Threshold drops results scoring below it regardless of Limit.
	Threshold float64
	// Limit caps the number of results.
	Limit   int
	MinDate uint32
	MaxDate uint32
	// Workers selects the number of parallel chunks; values below 2 use
	// the single-threaded reference path.
	Workers int
}

func (p *Params) validate() error {
	if len(p.Scores) == 0 {
		return fmt.Errorf("%w: empty feature-score vector", mserrors.ErrArgument)
	}
	if p.Limit < 1 {
		return fmt.Errorf("%w: result limit %d", mserrors.ErrArgument, p.Limit)
	}
	if p.MinDate > p.MaxDate {
		return fmt.Errorf("%w: mindate %d exceeds maxdate %d",
			mserrors.ErrArgument, p.MinDate, p.MaxDate)
	}
	return nil
}

// Scan scores every indexed document and returns the top results sorted by
// descending score, ties broken by ascending PMID. The output is a pure
// function of the inputs, independent of Workers.
func Scan(ctx context.Context, p Params) ([]Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	// Accumulation is float32, as is each feature-score term.
	scores32 := make([]float32, len(p.Scores))
	for i, s := range p.Scores {
		scores32[i] = float32(s)
	}

	log := slog.Default().With("component", "score-scanner")
	start := time.Now()
	var top *topK
	var scanned int64
	var err error
	if p.Workers > 1 {
		top, scanned, err = scanParallel(ctx, &p, scores32)
	} else {
		top, scanned, err = scanSerial(ctx, &p, scores32)
	}
	if err != nil {
		return nil, err
	}
	results := top.Drain()
	log.Debug("scoring scan complete",
		"records", scanned,
		"results", len(results),
		"workers", max(1, p.Workers),
		"duration", time.Since(start),
	)
	return results, nil
}

func scanSerial(ctx context.Context, p *Params, scores32 []float32) (*topK, int64, error) {
	r, err := index.OpenReader(p.IndexPath)
	if err != nil {
		return nil, 0, err
	}
	defer r.Close()

	top := newTopK(p.Limit)
	for p.NumDocs == 0 || r.Records() < p.NumDocs {
		if r.Records()%cancelStride == 0 && ctx.Err() != nil {
			return nil, 0, mserrors.ErrCancelled
		}
		rec, err := r.ReadNext()
		if err != nil {
			return nil, 0, err
		}
		if rec == nil {
			if p.NumDocs != 0 {
				return nil, 0, fmt.Errorf("%w: expected %d records, index ends after %d",
					mserrors.ErrTruncatedIndex, p.NumDocs, r.Records())
			}
			break
		}
		if err := scoreRecord(rec, p, scores32, top); err != nil {
			return nil, 0, err
		}
	}
	return top, r.Records(), nil
}

func scanParallel(ctx context.Context, p *Params, scores32 []float32) (*topK, int64, error) {
	offsets, err := index.Offsets(p.IndexPath)
	if err != nil {
		return nil, 0, err
	}
	records := int64(len(offsets) - 1)
	if p.NumDocs != 0 {
		if records < p.NumDocs {
			return nil, 0, fmt.Errorf("%w: expected %d records, index holds %d",
				mserrors.ErrTruncatedIndex, p.NumDocs, records)
		}
		offsets = offsets[:p.NumDocs+1]
		records = p.NumDocs
	}
	bounds := index.ChunkBounds(offsets, p.Workers)

	var mu sync.Mutex
	top := newTopK(p.Limit)
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range bounds {
		start, end := b[0], b[1]
		g.Go(func() error {
			local, err := scanChunk(gctx, p, scores32, start, end)
			if err != nil {
				return err
			}
			mu.Lock()
			top.Merge(local)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return top, records, nil
}

func scanChunk(ctx context.Context, p *Params, scores32 []float32, start, end int64) (*topK, error) {
	r, err := index.OpenReaderAt(p.IndexPath, start)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	top := newTopK(p.Limit)
	for r.Offset() < end {
		if r.Records()%cancelStride == 0 && ctx.Err() != nil {
			return nil, mserrors.ErrCancelled
		}
		rec, err := r.ReadNext()
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("%w: chunk ends at %d before %d",
				mserrors.ErrTruncatedIndex, r.Offset(), end)
		}
		if err := scoreRecord(rec, p, scores32, top); err != nil {
			return nil, err
		}
	}
	return top, nil
}

// scoreRecord accumulates one document's score and offers it to the heap.
// Documents outside the date window never enter the heap.
func scoreRecord(rec *index.Record, p *Params, scores32 []float32, top *topK) error {
	if !rec.InWindow(p.MinDate, p.MaxDate) {
		return nil
	}
	s := float32(p.Offset)
	for _, f := range rec.Features {
		if int(f) >= len(scores32) {
			return fmt.Errorf("%w: feature %d outside universe of %d",
				mserrors.ErrArgument, f, len(scores32))
		}
		s += scores32[f]
	}
	if float64(s) < p.Threshold {
		return nil
	}
	top.Offer(Result{Score: s, PMID: rec.PMID})
	return nil
}
