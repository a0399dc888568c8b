package flat

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaintrag/internal/domain"
	"complaintrag/internal/vectorstore"
)

func sample() [][]float32 {
	return [][]float32{
		{0, 0, 0},
		{1, 0, 0},
		{0, 2, 0},
		{1, 0, 0}, // duplicate of position 1
		{0, 0, 3},
	}
}

func TestBuildRejectsWrongDimension(t *testing.T) {
	_, err := Build(3, [][]float32{{1, 2, 3}, {1, 2}})
	assert.ErrorIs(t, err, domain.ErrConsistency)
	_, err = New(0)
	assert.ErrorIs(t, err, domain.ErrConsistency)
}

func TestSearchOrdersByDistanceThenPosition(t *testing.T) {
	idx, err := Build(3, sample())
	require.NoError(t, err)
	require.Equal(t, 5, idx.Len())

	got, err := idx.Search(context.Background(), []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []vectorstore.Neighbor{
		{Position: 1, Distance: 0},
		{Position: 3, Distance: 0},
		{Position: 0, Distance: 1},
	}, got)
}

func TestSearchEveryVectorFindsItself(t *testing.T) {
	vecs := [][]float32{{0.1, 0.2}, {0.3, -0.4}, {-1, 1}, {5, 5}}
	idx, err := Build(2, vecs)
	require.NoError(t, err)
	for i, v := range vecs {
		got, err := idx.Search(context.Background(), v, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, i, got[0].Position)
		assert.Zero(t, got[0].Distance)
	}
}

func TestSearchLimitsAndArguments(t *testing.T) {
	idx, err := Build(3, sample())
	require.NoError(t, err)
	ctx := context.Background()

	got, err := idx.Search(ctx, []float32{0, 0, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.InDelta(t, 3.0, got[4].Distance, 1e-6)

	_, err = idx.Search(ctx, []float32{0, 0, 0}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = idx.Search(ctx, []float32{0, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrConsistency)

	empty, err := New(3)
	require.NoError(t, err)
	got, err = empty.Search(ctx, []float32{0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPersistLoadRoundTrip(t *testing.T) {
	idx, err := Build(3, sample())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "nested", "index.bin")
	require.NoError(t, idx.Persist(path, "hashing-v1"))

	loaded, model, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hashing-v1", model)
	assert.Equal(t, 3, loaded.Dimension())
	require.Equal(t, idx.Len(), loaded.Len())

	q := []float32{0.5, 1, 0}
	want, err := idx.Search(context.Background(), q, 5)
	require.NoError(t, err)
	got, err := loaded.Search(context.Background(), q, 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeDetectsCorruption(t *testing.T) {
	idx, err := Build(3, sample())
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, idx.Encode(&buf, "m"))
	raw := buf.Bytes()

	flipped := bytes.Clone(raw)
	flipped[len(flipped)-10] ^= 0xff
	_, _, err = Decode(bytes.NewReader(flipped))
	assert.ErrorIs(t, err, ErrCorrupt)

	_, _, err = Decode(bytes.NewReader(raw[:len(raw)-7]))
	assert.ErrorIs(t, err, ErrCorrupt)

	_, _, err = Decode(bytes.NewReader(append(bytes.Clone(raw), 0)))
	assert.ErrorIs(t, err, ErrCorrupt)

	badMagic := bytes.Clone(raw)
	badMagic[0] = 'X'
	_, _, err = Decode(bytes.NewReader(badMagic))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestLoadMissingAndGarbage(t *testing.T) {
	dir := t.TempDir()
	_, _, err := Load(filepath.Join(dir, "absent.bin"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	garbage := filepath.Join(dir, "garbage.bin")
	require.NoError(t, os.WriteFile(garbage, []byte("not an index"), 0o644))
	_, _, err = Load(garbage)
	assert.ErrorIs(t, err, domain.ErrConsistency)
}
