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

// Reader iterates sequentially over the records of a feature-index file.
// The decode buffers are reused: a Record returned by ReadNext is only
// valid until the following call.
type Reader struct {
	file     *os.File
	br       *bufio.Reader
	payload  []byte
	features []uint32
	record   Record
	nread    int64
	offset   int64
}

// OpenReader opens a feature-index file for sequential scanning.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening feature index: %v", mserrors.ErrIO, err)
	}
	return newReader(f), nil
}

// OpenReaderAt opens a feature-index file and positions the scan at a byte
// offset, which must be a record boundary.
func OpenReaderAt(path string, offset int64) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening feature index: %v", mserrors.ErrIO, err)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: seeking feature index: %v", mserrors.ErrIO, err)
	}
	r := newReader(f)
	r.offset = offset
	return r, nil
}

func newReader(f *os.File) *Reader {
	return &Reader{
		file:     f,
		br:       bufio.NewReaderSize(f, 1<<16),
		payload:  make([]byte, MaxPayload),
		features: make([]uint32, 0, MaxFeatures),
	}
}

// ReadNext decodes the next record into the Reader's reusable buffers.
// It returns (nil, nil) at a clean end of file. A partial trailing record
// yields ErrTruncatedIndex; a bad payload yields ErrMalformedRecord.
func (r *Reader) ReadNext() (*Record, error) {
	var head [HeaderSize]byte
	if _, err := io.ReadFull(r.br, head[:]); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, r.scanErr(mserrors.ErrTruncatedIndex)
		}
		return nil, r.scanErr(fmt.Errorf("%w: reading record header: %v", mserrors.ErrIO, err))
	}
	r.record.PMID = binary.LittleEndian.Uint32(head[0:4])
	r.record.Date = binary.LittleEndian.Uint32(head[4:8])
	nbytes := binary.LittleEndian.Uint16(head[8:10])
	if int(nbytes) > MaxPayload {
		return nil, r.scanErr(fmt.Errorf("%w: payload of %d bytes exceeds cap %d",
			mserrors.ErrMalformedRecord, nbytes, MaxPayload))
	}
	buf := r.payload[:nbytes]
	if _, err := io.ReadFull(r.br, buf); err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, r.scanErr(mserrors.ErrTruncatedIndex)
		}
		return nil, r.scanErr(fmt.Errorf("%w: reading record payload: %v", mserrors.ErrIO, err))
	}
	feats, err := Decode(r.features[:0], buf)
	if err != nil {
		return nil, r.scanErr(err)
	}
	r.record.Features = feats
	r.nread++
	r.offset += int64(HeaderSize) + int64(nbytes)
	return &r.record, nil
}

// Records returns the number of records read so far.
func (r *Reader) Records() int64 {
	return r.nread
}

// Offset returns the byte offset just past the last record read.
func (r *Reader) Offset() int64 {
	return r.offset
}

func (r *Reader) scanErr(err error) error {
	return &mserrors.ScanError{Err: err, Record: r.nread, Offset: r.offset}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
