package wire

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	mserrors "github.com/mscanner/mscanner/pkg/errors"
)

// ReadPMIDList reads document identifiers from a text file, one per line.
// Blank lines and lines starting with '#' are skipped; only the first
// whitespace-separated field of each line is parsed.
func ReadPMIDList(path string) ([]uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening pmid list: %v", mserrors.ErrIO, err)
	}
	defer f.Close()

	var ids []uint32
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		field := strings.Fields(line)[0]
		id, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: bad pmid %q in %s", mserrors.ErrArgument, field, path)
		}
		ids = append(ids, uint32(id))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading pmid list: %v", mserrors.ErrIO, err)
	}
	return ids, nil
}

// WriteScoredPMIDs writes score/pmid pairs as tab-separated text, one per
// line, in the given order.
func WriteScoredPMIDs(path string, scoreOf func(i int) (float64, uint32), n int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: creating score file: %v", mserrors.ErrIO, err)
	}
	bw := bufio.NewWriter(f)
	for i := 0; i < n; i++ {
		s, id := scoreOf(i)
		fmt.Fprintf(bw, "%.5f\t%d\n", s, id)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("%w: writing score file: %v", mserrors.ErrIO, err)
	}
	return f.Close()
}
