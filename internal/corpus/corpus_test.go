package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaintrag/internal/domain"
	"complaintrag/internal/metadata"
	"complaintrag/internal/vectorstore/flat"
)

type model struct {
	id  string
	dim int
}

func (m model) ModelID() string { return m.id }
func (m model) Dimension() int  { return m.dim }

func build(t *testing.T, n int) (*flat.Index, *metadata.Store) {
	t.Helper()
	vecs := make([][]float32, n)
	recs := make([]domain.MetadataRecord, n)
	for i := range vecs {
		vecs[i] = []float32{float32(i), 1}
		recs[i] = domain.MetadataRecord{ComplaintID: string(rune('a' + i)), Product: "Credit card", Text: "text"}
	}
	idx, err := flat.Build(2, vecs)
	require.NoError(t, err)
	meta := metadata.NewStore()
	meta.AppendAll(recs)
	return idx, meta
}

func paths(t *testing.T) (string, string) {
	dir := filepath.Join(t.TempDir(), "vector_store")
	return filepath.Join(dir, "index.bin"), filepath.Join(dir, "metadata.gob")
}

func TestWriteLoadRoundTrip(t *testing.T) {
	idx, meta := build(t, 3)
	ip, mp := paths(t)
	require.NoError(t, Write(ip, mp, idx, meta, "hashing-v1"))
	assert.True(t, Exists(ip, mp))

	c, err := Load(ip, mp, model{"hashing-v1", 2})
	require.NoError(t, err)
	assert.Equal(t, 3, c.Index.Len())
	assert.Equal(t, 3, c.Metadata.Len())
	assert.Equal(t, "hashing-v1", c.ModelID)

	entries, err := os.ReadDir(filepath.Dir(ip))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary files left behind")
}

func TestWriteRejectsMisalignedUnit(t *testing.T) {
	idx, _ := build(t, 3)
	_, meta := build(t, 2)
	ip, mp := paths(t)
	err := Write(ip, mp, idx, meta, "hashing-v1")
	assert.ErrorIs(t, err, domain.ErrConsistency)
	assert.False(t, Exists(ip, mp))
}

func TestLoadDetectsSizeMismatch(t *testing.T) {
	ip, mp := paths(t)
	idx, meta := build(t, 3)
	require.NoError(t, Write(ip, mp, idx, meta, "hashing-v1"))

	// replace metadata with a two-record file
	_, short := build(t, 2)
	require.NoError(t, short.Persist(mp))

	_, err := Load(ip, mp, model{"hashing-v1", 2})
	assert.ErrorIs(t, err, domain.ErrConsistency)
}

func TestLoadDetectsModelAndDimensionMismatch(t *testing.T) {
	ip, mp := paths(t)
	idx, meta := build(t, 3)
	require.NoError(t, Write(ip, mp, idx, meta, "hashing-v1"))

	_, err := Load(ip, mp, model{"text-embedding-3-small", 2})
	assert.ErrorIs(t, err, domain.ErrConsistency)
	_, err = Load(ip, mp, model{"hashing-v1", 384})
	assert.ErrorIs(t, err, domain.ErrConsistency)
}

func TestLoadMissingFiles(t *testing.T) {
	ip, mp := paths(t)
	_, err := Load(ip, mp, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	idx, meta := build(t, 1)
	require.NoError(t, Write(ip, mp, idx, meta, "m"))
	require.NoError(t, os.Remove(mp))
	_, err = Load(ip, mp, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
