package index

import (
	"fmt"
	"math"

	mserrors "github.com/mscanner/mscanner/pkg/errors"
)

// Encode appends the variable-byte gap encoding of a strictly increasing
// feature vector to dst and returns the extended slice. Each gap between
// successive features is split into 7-bit groups emitted most-significant
// group first; the final byte of each gap carries the high terminator bit.
func Encode(dst []byte, features []uint32) ([]byte, error) {
	if len(features) > MaxFeatures {
		return nil, fmt.Errorf("%w: %d features exceeds cap %d",
			mserrors.ErrArgument, len(features), MaxFeatures)
	}
	var last uint32
	for i, f := range features {
		if i > 0 && f <= last {
			return nil, fmt.Errorf("%w: features not strictly increasing (%d after %d)",
				mserrors.ErrArgument, f, last)
		}
		gap := f - last
		last = f

		// Terminator byte holds the least significant 7 bits.
		var buf [5]byte
		n := 1
		buf[4] = 0x80 | byte(gap&0x7f)
		gap >>= 7
		for gap > 0 {
			buf[4-n] = byte(gap & 0x7f)
			gap >>= 7
			n++
		}
		dst = append(dst, buf[5-n:]...)
	}
	return dst, nil
}

// Decode reconstructs a feature vector from its variable-byte gap encoding,
// appending to dst (pass a reused slice with len 0 to avoid allocation).
// It fails with ErrMalformedRecord if the payload ends mid-number, decodes
// more than MaxFeatures values, or yields a non-increasing sequence.
func Decode(dst []uint32, payload []byte) ([]uint32, error) {
	var gap uint64
	var last uint64
	first := true
	pending := false
	for _, b := range payload {
		gap = (gap << 7) | uint64(b&0x7f)
		if gap > math.MaxUint32 {
			return nil, fmt.Errorf("%w: feature gap overflows 32 bits", mserrors.ErrMalformedRecord)
		}
		if b&0x80 == 0 {
			pending = true
			continue
		}
		if !first && gap == 0 {
			return nil, fmt.Errorf("%w: non-increasing feature sequence", mserrors.ErrMalformedRecord)
		}
		last += gap
		if last > math.MaxUint32 {
			return nil, fmt.Errorf("%w: feature id overflows 32 bits", mserrors.ErrMalformedRecord)
		}
		if len(dst) >= MaxFeatures {
			return nil, fmt.Errorf("%w: more than %d features", mserrors.ErrMalformedRecord, MaxFeatures)
		}
		dst = append(dst, uint32(last))
		gap = 0
		first = false
		pending = false
	}
	if pending || gap != 0 {
		return nil, fmt.Errorf("%w: payload ends without terminator", mserrors.ErrMalformedRecord)
	}
	return dst, nil
}
