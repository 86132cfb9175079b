package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	mserrors "github.com/mscanner/mscanner/pkg/errors"
)

// Writer appends records to a feature-index file. The index is append-only:
// rebuilding, not rewriting, is the update path.
type Writer struct {
	file    *os.File
	bw      *bufio.Writer
	scratch []byte
}

// OpenWriter opens a feature-index file for appending, creating it if
// missing.
func OpenWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening feature index for append: %v", mserrors.ErrIO, err)
	}
	return &Writer{
		file:    f,
		bw:      bufio.NewWriterSize(f, 1<<16),
		scratch: make([]byte, 0, MaxPayload),
	}, nil
}

// Append writes one record. Features must be strictly increasing.
func (w *Writer) Append(pmid uint32, date uint32, features []uint32) error {
	payload, err := Encode(w.scratch[:0], features)
	if err != nil {
		return err
	}
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: encoded payload of %d bytes exceeds cap %d",
			mserrors.ErrArgument, len(payload), MaxPayload)
	}
	var head [HeaderSize]byte
	binary.LittleEndian.PutUint32(head[0:4], pmid)
	binary.LittleEndian.PutUint32(head[4:8], date)
	binary.LittleEndian.PutUint16(head[8:10], uint16(len(payload)))
	if _, err := w.bw.Write(head[:]); err != nil {
		return fmt.Errorf("%w: writing record header: %v", mserrors.ErrIO, err)
	}
	if _, err := w.bw.Write(payload); err != nil {
		return fmt.Errorf("%w: writing record payload: %v", mserrors.ErrIO, err)
	}
	return nil
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("%w: flushing feature index: %v", mserrors.ErrIO, err)
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return fmt.Errorf("%w: syncing feature index: %v", mserrors.ErrIO, err)
	}
	return w.file.Close()
}
