package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	mserrors "github.com/mscanner/mscanner/pkg/errors"
)

// Offsets walks the record headers of a feature-index file and returns the
// byte offset of every record, plus the file's total length as a final
// element. The result partitions the file into record-aligned chunks for
// parallel scanning.
func Offsets(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening feature index: %v", mserrors.ErrIO, err)
	}
	defer f.Close()
	br := bufio.NewReaderSize(f, 1<<16)

	offsets := make([]int64, 0, 1<<20)
	var pos int64
	var head [HeaderSize]byte
	for {
		if _, err := io.ReadFull(br, head[:]); err != nil {
			if err == io.EOF {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: offset walk at %d", mserrors.ErrTruncatedIndex, pos)
			}
			return nil, fmt.Errorf("%w: offset walk: %v", mserrors.ErrIO, err)
		}
		nbytes := binary.LittleEndian.Uint16(head[8:10])
		if int(nbytes) > MaxPayload {
			return nil, fmt.Errorf("%w: payload of %d bytes exceeds cap %d at offset %d",
				mserrors.ErrMalformedRecord, nbytes, MaxPayload, pos)
		}
		if _, err := br.Discard(int(nbytes)); err != nil {
			return nil, fmt.Errorf("%w: offset walk at %d", mserrors.ErrTruncatedIndex, pos)
		}
		offsets = append(offsets, pos)
		pos += int64(HeaderSize) + int64(nbytes)
	}
	offsets = append(offsets, pos)
	return offsets, nil
}

// ChunkBounds splits a record-offset index into n byte ranges of roughly
// equal record count. Each bound pair [start, end) is record-aligned.
func ChunkBounds(offsets []int64, n int) [][2]int64 {
	records := len(offsets) - 1
	if records <= 0 || n < 1 {
		return nil
	}
	if n > records {
		n = records
	}
	bounds := make([][2]int64, 0, n)
	base, rem := records/n, records%n
	start := 0
	for i := 0; i < n; i++ {
		size := base
		if i < rem {
			size++
		}
		bounds = append(bounds, [2]int64{offsets[start], offsets[start+size]})
		start += size
	}
	return bounds
}
