// Package benchmark contains Go benchmarks for the feature-index codec,
// the counting scan, and the scoring scan, measuring throughput and
// allocation behaviour.
package benchmark

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"sort"
	"testing"

	"github.com/mscanner/mscanner/internal/counter"
	"github.com/mscanner/mscanner/internal/index"
	"github.com/mscanner/mscanner/internal/scanner"
)

const benchFeats = 50000

// buildIndex writes ndocs synthetic records with ~15 features each, the
// typical density of the production corpus.
func buildIndex(b *testing.B, ndocs int) string {
	b.Helper()
	path := filepath.Join(b.TempDir(), "features.stream")
	w, err := index.OpenWriter(path)
	if err != nil {
		b.Fatal(err)
	}
	rng := rand.New(rand.NewSource(1))
	feats := make([]uint32, 0, 32)
	for i := 0; i < ndocs; i++ {
		n := 5 + rng.Intn(20)
		feats = feats[:0]
		seen := make(map[uint32]struct{}, n)
		for len(feats) < n {
			f := uint32(rng.Intn(benchFeats))
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			feats = append(feats, f)
		}
		sort.Slice(feats, func(a, c int) bool { return feats[a] < feats[c] })
		if err := w.Append(uint32(i+1), 20000101+uint32(rng.Intn(90000)), feats); err != nil {
			b.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		b.Fatal(err)
	}
	return path
}

func benchScores() []float64 {
	rng := rand.New(rand.NewSource(2))
	scores := make([]float64, benchFeats)
	for i := range scores {
		scores[i] = rng.NormFloat64()
	}
	return scores
}

// BenchmarkDecode measures raw payload decode throughput with a reused
// output buffer.
func BenchmarkDecode(b *testing.B) {
	features := make([]uint32, 15)
	for i := range features {
		features[i] = uint32(i * 3000)
	}
	payload, err := index.Encode(nil, features)
	if err != nil {
		b.Fatal(err)
	}
	dst := make([]uint32, 0, index.MaxFeatures)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		out, err := index.Decode(dst[:0], payload)
		if err != nil {
			b.Fatal(err)
		}
		_ = out
	}
}

// BenchmarkScanSerial measures single-threaded scoring throughput at
// various corpus sizes.
func BenchmarkScanSerial(b *testing.B) {
	for _, ndocs := range []int{1000, 10000, 50000} {
		b.Run(fmt.Sprintf("docs_%d", ndocs), func(b *testing.B) {
			path := buildIndex(b, ndocs)
			params := scanner.Params{
				IndexPath: path,
				Scores:    benchScores(),
				Offset:    -5,
				Threshold: math.Inf(-1),
				Limit:     100,
				MaxDate:   99999999,
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := scanner.Scan(context.Background(), params); err != nil {
					b.Fatal(err)
				}
			}
			b.ReportMetric(float64(ndocs)*float64(b.N)/b.Elapsed().Seconds(), "docs/s")
		})
	}
}

// BenchmarkScanParallel measures chunked scan throughput.
func BenchmarkScanParallel(b *testing.B) {
	path := buildIndex(b, 50000)
	for _, workers := range []int{2, 4, 8} {
		b.Run(fmt.Sprintf("workers_%d", workers), func(b *testing.B) {
			params := scanner.Params{
				IndexPath: path,
				Scores:    benchScores(),
				Offset:    -5,
				Threshold: math.Inf(-1),
				Limit:     100,
				MaxDate:   99999999,
				Workers:   workers,
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := scanner.Scan(context.Background(), params); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkCount measures counting-scan throughput with a large exclusion
// list exercising the per-record binary search.
func BenchmarkCount(b *testing.B) {
	path := buildIndex(b, 50000)
	excluded := make([]uint32, 0, 10000)
	for i := uint32(1); i <= 50000; i += 5 {
		excluded = append(excluded, i)
	}
	params := counter.Params{
		IndexPath: path,
		NumFeats:  benchFeats,
		MaxDate:   99999999,
		Excluded:  excluded,
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := counter.Count(context.Background(), params); err != nil {
			b.Fatal(err)
		}
	}
}
