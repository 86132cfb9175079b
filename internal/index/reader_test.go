package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
	w, err := OpenWriter(path)
	require.NoError(t, err)
	for _, d := range docs {
		require.NoError(t, w.Append(d.pmid, d.date, d.features))
	}
	require.NoError(t, w.Close())
	return path
}

func TestReadBack(t *testing.T) {
	docs := []testDoc{
		{1, 20050101, []uint32{7, 42}},
		{2, 20050102, []uint32{7}},
		{3, 19990101, nil},
		{4, 20070630, []uint32{0, 1, 2, 63}},
	}
	path := writeIndex(t, docs)

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	for _, want := range docs {
		rec, err := r.ReadNext()
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, want.pmid, rec.PMID)
		assert.Equal(t, want.date, rec.Date)
		assert.Equal(t, len(want.features), len(rec.Features))
		for i := range want.features {
			assert.Equal(t, want.features[i], rec.Features[i])
		}
	}
	rec, err := r.ReadNext()
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, int64(len(docs)), r.Records())
}

func TestEmptyFeatureVector(t *testing.T) {
	path := writeIndex(t, []testDoc{{9, 20010101, nil}})
	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.ReadNext()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Empty(t, rec.Features)
}

func TestTruncatedTrailingRecord(t *testing.T) {
	path := writeIndex(t, []testDoc{
		{1, 20050101, []uint32{7, 42}},
		{2, 20050102, []uint32{7}},
	})
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Chop one byte off the final record's payload.
	require.NoError(t, os.WriteFile(path, data[:len(data)-1], 0644))

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.ReadNext()
	require.NoError(t, err)
	require.NotNil(t, rec)

	_, err = r.ReadNext()
	assert.ErrorIs(t, err, mserrors.ErrTruncatedIndex)
}

func TestOpenMissingIndex(t *testing.T) {
	_, err := OpenReader(filepath.Join(t.TempDir(), "missing.stream"))
	assert.ErrorIs(t, err, mserrors.ErrIO)
}

func TestOffsetsAndChunks(t *testing.T) {
	docs := []testDoc{
		{1, 20050101, []uint32{7, 42}},
		{2, 20050102, []uint32{7}},
		{3, 19990101, nil},
		{4, 20070630, []uint32{0, 1000000}},
		{5, 20070701, []uint32{5}},
	}
	path := writeIndex(t, docs)

	offsets, err := Offsets(path)
	require.NoError(t, err)
	require.Len(t, offsets, len(docs)+1)
	assert.Equal(t, int64(0), offsets[0])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), offsets[len(offsets)-1])

	// Each offset must be a valid record boundary.
	for i := 0; i < len(docs); i++ {
		r, err := OpenReaderAt(path, offsets[i])
		require.NoError(t, err)
		rec, err := r.ReadNext()
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, docs[i].pmid, rec.PMID)
		r.Close()
	}

	bounds := ChunkBounds(offsets, 2)
	require.Len(t, bounds, 2)
	assert.Equal(t, offsets[0], bounds[0][0])
	assert.Equal(t, bounds[0][1], bounds[1][0])
	assert.Equal(t, offsets[len(offsets)-1], bounds[1][1])

	// More chunks than records collapses to one chunk per record.
	bounds = ChunkBounds(offsets, 50)
	assert.Len(t, bounds, len(docs))
}

func TestDocIDsAndCollectVectors(t *testing.T) {
	docs := []testDoc{
		{1, 20050101, []uint32{7, 42}},
		{2, 20050102, []uint32{7}},
		{3, 19990101, []uint32{42}},
	}
	path := writeIndex(t, docs)

	ids, err := DocIDs(path)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3}, ids)

	vectors, err := CollectVectors(path, []uint32{1, 3, 999})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []uint32{7, 42}, vectors[1])
	assert.Equal(t, []uint32{42}, vectors[3])
}
