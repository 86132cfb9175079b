// Package wire reads and writes the little-endian binary interfaces shared
// with external collaborators: feature-score vectors, exclusion lists,
// count vectors, and ranked results.
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/mscanner/mscanner/internal/scanner"
	mserrors "github.com/mscanner/mscanner/pkg/errors"
)

// ReadScores reads numfeats float64 feature scores.
func ReadScores(r io.Reader, numfeats uint32) ([]float64, error) {
	buf := make([]byte, 8*int(numfeats))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: reading %d feature scores: %v", mserrors.ErrIO, numfeats, err)
	}
	scores := make([]float64, numfeats)
	for i := range scores {
		scores[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return scores, nil
}

// WriteScores writes a feature-score vector as float64.
func WriteScores(w io.Writer, scores []float64) error {
	bw := bufio.NewWriter(w)
	var buf [8]byte
	for _, s := range scores {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(s))
		if _, err := bw.Write(buf[:]); err != nil {
			return fmt.Errorf("%w: writing feature scores: %v", mserrors.ErrIO, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: writing feature scores: %v", mserrors.ErrIO, err)
	}
	return nil
}

// ReadExcluded reads n uint32 document identifiers.
func ReadExcluded(r io.Reader, n uint32) ([]uint32, error) {
	buf := make([]byte, 4*int(n))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: reading %d excluded ids: %v", mserrors.ErrIO, n, err)
	}
	ids := make([]uint32, n)
	for i := range ids {
		ids[i] = binary.LittleEndian.Uint32(buf[4*i:])
	}
	return ids, nil
}

// WriteCounts writes the document count followed by the dense count vector.
func WriteCounts(w io.Writer, ndocs uint32, counts []uint32) error {
	bw := bufio.NewWriter(w)
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], ndocs)
	if _, err := bw.Write(buf[:]); err != nil {
		return fmt.Errorf("%w: writing count vector: %v", mserrors.ErrIO, err)
	}
	for _, c := range counts {
		binary.LittleEndian.PutUint32(buf[:], c)
		if _, err := bw.Write(buf[:]); err != nil {
			return fmt.Errorf("%w: writing count vector: %v", mserrors.ErrIO, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: writing count vector: %v", mserrors.ErrIO, err)
	}
	return nil
}

// WriteResults writes ranked results as (score float32, pmid uint32) pairs
// in the given order.
func WriteResults(w io.Writer, results []scanner.Result) error {
	bw := bufio.NewWriter(w)
	var buf [8]byte
	for _, r := range results {
		binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(r.Score))
		binary.LittleEndian.PutUint32(buf[4:8], r.PMID)
		if _, err := bw.Write(buf[:]); err != nil {
			return fmt.Errorf("%w: writing results: %v", mserrors.ErrIO, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: writing results: %v", mserrors.ErrIO, err)
	}
	return nil
}

// ReadResults reads (score float32, pmid uint32) pairs until EOF.
func ReadResults(r io.Reader) ([]scanner.Result, error) {
	var out []scanner.Result
	var buf [8]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, fmt.Errorf("%w: reading results: %v", mserrors.ErrIO, err)
		}
		out = append(out, scanner.Result{
			Score: math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4])),
			PMID:  binary.LittleEndian.Uint32(buf[4:8]),
		})
	}
}
