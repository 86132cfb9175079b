package scanner

import (
	"context"
	"math"
	"math/rand"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscanner/mscanner/internal/counter"
	"github.com/mscanner/mscanner/internal/index"
	"github.com/mscanner/mscanner/internal/scores"
	mserrors "github.com/mscanner/mscanner/pkg/errors"
)

type testDoc struct {
	pmid     uint32
	date     uint32
	features []uint32
}

func writeIndex(t *testing.T, docs []testDoc) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "features.stream")
	w, err := index.OpenWriter(path)
	require.NoError(t, err)
	for _, d := range docs {
		require.NoError(t, w.Append(d.pmid, d.date, d.features))
	}
	require.NoError(t, w.Close())
	return path
}

func TestScanBasic(t *testing.T) {
	path := writeIndex(t, []testDoc{
		{1, 20050101, []uint32{0, 2}},
		{2, 20050102, []uint32{1}},
		{3, 20050103, []uint32{2}},
	})
	featScores := []float64{1.0, -1.0, 2.0}

	results, err := Scan(context.Background(), Params{
		IndexPath: path,
		NumDocs:   3,
		Scores:    featScores,
		Offset:    0.5,
		Threshold: math.Inf(-1),
		Limit:     10,
		MinDate:   0,
		MaxDate:   99999999,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, uint32(1), results[0].PMID)
	assert.InDelta(t, 3.5, float64(results[0].Score), 1e-6)
	assert.Equal(t, uint32(3), results[1].PMID)
	assert.InDelta(t, 2.5, float64(results[1].Score), 1e-6)
	assert.Equal(t, uint32(2), results[2].PMID)
	assert.InDelta(t, -0.5, float64(results[2].Score), 1e-6)
}

func TestScanDateWindowExcludes(t *testing.T) {
	path := writeIndex(t, []testDoc{
		{1, 20050101, []uint32{0}},
		{2, 19990101, []uint32{0}},
	})
	results, err := Scan(context.Background(), Params{
		IndexPath: path,
		Scores:    []float64{10},
		Threshold: math.Inf(-1),
		Limit:     10,
		MinDate:   20000101,
		MaxDate:   21000101,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint32(1), results[0].PMID)
}

func TestScanThreshold(t *testing.T) {
	path := writeIndex(t, []testDoc{
		{1, 20050101, []uint32{0}},
		{2, 20050101, []uint32{1}},
	})
	results, err := Scan(context.Background(), Params{
		IndexPath: path,
		Scores:    []float64{5, -5},
		Threshold: 0,
		Limit:     10,
		MaxDate:   99999999,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint32(1), results[0].PMID)
}

func TestTopKTieBreak(t *testing.T) {
	// Two documents with identical scores: the smaller PMID wins the
	// single slot regardless of file order.
	path := writeIndex(t, []testDoc{
		{20, 20050101, []uint32{0}},
		{10, 20050101, []uint32{0}},
	})
	results, err := Scan(context.Background(), Params{
		IndexPath: path,
		Scores:    []float64{1},
		Threshold: math.Inf(-1),
		Limit:     1,
		MaxDate:   99999999,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint32(10), results[0].PMID)

	// Same result when the smaller PMID comes first.
	path = writeIndex(t, []testDoc{
		{10, 20050101, []uint32{0}},
		{20, 20050101, []uint32{0}},
	})
	results, err = Scan(context.Background(), Params{
		IndexPath: path,
		Scores:    []float64{1},
		Threshold: math.Inf(-1),
		Limit:     1,
		MaxDate:   99999999,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint32(10), results[0].PMID)
}

func randomIndex(t *testing.T, ndocs int, nfeats uint32, seed int64) (string, []testDoc) {
	rng := rand.New(rand.NewSource(seed))
	docs := make([]testDoc, ndocs)
	for i := range docs {
		n := rng.Intn(20)
		if n > int(nfeats) {
			n = int(nfeats)
		}
		seen := make(map[uint32]struct{})
		var feats []uint32
		for len(feats) < n {
			f := uint32(rng.Intn(int(nfeats)))
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			feats = append(feats, f)
		}
		sort.Slice(feats, func(a, b int) bool { return feats[a] < feats[b] })
		docs[i] = testDoc{
			pmid:     uint32(i + 1),
			date:     20000101 + uint32(rng.Intn(90000)),
			features: feats,
		}
	}
	return writeIndex(t, docs), docs
}

func TestParallelMatchesSerial(t *testing.T) {
	nfeats := uint32(200)
	path, _ := randomIndex(t, 500, nfeats, 7)
	rng := rand.New(rand.NewSource(11))
	featScores := make([]float64, nfeats)
	for i := range featScores {
		featScores[i] = rng.NormFloat64()
	}
	base := Params{
		IndexPath: path,
		Scores:    featScores,
		Offset:    -1.25,
		Threshold: math.Inf(-1),
		Limit:     50,
		MinDate:   20010101,
		MaxDate:   20080101,
	}

	serial, err := Scan(context.Background(), base)
	require.NoError(t, err)
	for _, workers := range []int{2, 3, 8} {
		p := base
		p.Workers = workers
		parallel, err := Scan(context.Background(), p)
		require.NoError(t, err)
		require.Equal(t, len(serial), len(parallel), "workers=%d", workers)
		for i := range serial {
			assert.Equal(t, serial[i].PMID, parallel[i].PMID, "workers=%d rank=%d", workers, i)
			assert.Equal(t, serial[i].Score, parallel[i].Score, "workers=%d rank=%d", workers, i)
		}
	}
}

// TestScoreIdentity checks the scanner against an independent float64
// evaluation of base + prior + sum of feature scores.
func TestScoreIdentity(t *testing.T) {
	nfeats := uint32(64)
	path, docs := randomIndex(t, 200, nfeats, 3)

	fs := scores.New(scores.Options{})
	posCounts := make([]uint32, nfeats)
	for _, f := range docs[0].features {
		posCounts[f]++
	}
	bg, err := counter.Count(context.Background(), counter.Params{
		IndexPath: path,
		NumFeats:  nfeats,
		MaxDate:   99999999,
		Excluded:  []uint32{docs[0].pmid},
	})
	require.NoError(t, err)
	require.NoError(t, fs.Update(posCounts, bg.Counts, 1, int(bg.NDocs)))

	results, err := Scan(context.Background(), Params{
		IndexPath: path,
		Scores:    fs.Scores,
		Offset:    fs.Offset(),
		Threshold: math.Inf(-1),
		Limit:     len(docs),
		MaxDate:   99999999,
	})
	require.NoError(t, err)
	require.Len(t, results, len(docs))

	byPMID := make(map[uint32]float32, len(results))
	for _, r := range results {
		byPMID[r.PMID] = r.Score
	}
	for _, d := range docs {
		want := fs.ScoreOf(d.features)
		got := float64(byPMID[d.pmid])
		tol := 1e-4 * math.Max(1, math.Abs(want))
		assert.InDelta(t, want, got, tol, "pmid %d", d.pmid)
	}
}

func TestScanCancelled(t *testing.T) {
	path, _ := randomIndex(t, 10, 16, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Scan(ctx, Params{
		IndexPath: path,
		Scores:    []float64{1},
		Threshold: 0,
		Limit:     1,
		MaxDate:   99999999,
	})
	assert.ErrorIs(t, err, mserrors.ErrCancelled)
}

func TestScanArgumentChecks(t *testing.T) {
	_, err := Scan(context.Background(), Params{Scores: nil, Limit: 1, MaxDate: 1})
	assert.ErrorIs(t, err, mserrors.ErrArgument)

	_, err = Scan(context.Background(), Params{Scores: []float64{1}, Limit: 0, MaxDate: 1})
	assert.ErrorIs(t, err, mserrors.ErrArgument)

	_, err = Scan(context.Background(), Params{
		Scores: []float64{1}, Limit: 1, MinDate: 5, MaxDate: 1,
	})
	assert.ErrorIs(t, err, mserrors.ErrArgument)
}

func TestScanNumDocsBeyondEOF(t *testing.T) {
	path := writeIndex(t, []testDoc{{1, 20050101, []uint32{0}}})
	_, err := Scan(context.Background(), Params{
		IndexPath: path,
		NumDocs:   2,
		Scores:    []float64{1},
		Threshold: 0,
		Limit:     1,
		MaxDate:   99999999,
	})
	assert.ErrorIs(t, err, mserrors.ErrTruncatedIndex)
}
