package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaintrag/internal/config"
	"complaintrag/internal/domain"
	"complaintrag/internal/logger"
	"complaintrag/internal/service"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Parse([]byte(`
embedder:
  model: hashing-v1
  dimension: 64
index:
  index_path: ` + filepath.Join(dir, "index.bin") + `
  metadata_path: ` + filepath.Join(dir, "metadata.gob") + `
generator:
  model: test-model
  api_key_env: COMPLAINTRAG_APP_TEST_KEY
`))
	require.NoError(t, err)
	return cfg
}

func TestOpenRequiresGeneratorCredential(t *testing.T) {
	t.Setenv("COMPLAINTRAG_APP_TEST_KEY", "")
	_, err := Open(context.Background(), logger.NewNop(), testConfig(t))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestOpenRequiresBuiltIndex(t *testing.T) {
	t.Setenv("COMPLAINTRAG_APP_TEST_KEY", "k")
	_, err := Open(context.Background(), logger.NewNop(), testConfig(t))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.ErrorContains(t, err, "run build-index first")
}

func TestOpenAfterBuild(t *testing.T) {
	t.Setenv("COMPLAINTRAG_APP_TEST_KEY", "k")
	cfg := testConfig(t)
	ctx := context.Background()

	ch, err := NewChunker(cfg)
	require.NoError(t, err)
	emb, err := NewEmbedder(ctx, logger.NewNop(), cfg)
	require.NoError(t, err)
	_, err = service.NewIndexer(logger.NewNop(), ch, emb, cfg.Index.IndexPath, cfg.Index.MetadataPath).
		Build(ctx, []domain.Complaint{{ComplaintID: "1", Product: "Credit card", Narrative: "charged twice"}})
	require.NoError(t, err)

	comp, err := Open(ctx, logger.NewNop(), cfg)
	require.NoError(t, err)
	defer comp.Close()
	assert.Equal(t, "test-model", comp.Generator.ModelID())

	ev, err := comp.Pipeline.Evidence(ctx, "double charge")
	require.NoError(t, err)
	assert.Equal(t, []string{"charged twice"}, ev.Excerpts)
}

func TestOpenRejectsIndexFromAnotherModel(t *testing.T) {
	t.Setenv("COMPLAINTRAG_APP_TEST_KEY", "k")
	cfg := testConfig(t)
	ctx := context.Background()

	ch, err := NewChunker(cfg)
	require.NoError(t, err)
	emb, err := NewEmbedder(ctx, logger.NewNop(), cfg)
	require.NoError(t, err)
	_, err = service.NewIndexer(logger.NewNop(), ch, emb, cfg.Index.IndexPath, cfg.Index.MetadataPath).
		Build(ctx, []domain.Complaint{{ComplaintID: "1", Product: "Credit card", Narrative: "charged twice"}})
	require.NoError(t, err)

	cfg.Embedder.Dimension = 32
	_, err = Open(ctx, logger.NewNop(), cfg)
	assert.ErrorIs(t, err, domain.ErrConsistency)
}

func TestNewEmbedderUnknownModel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedder.Model = "all-MiniLM-L6-v2"
	_, err := NewEmbedder(context.Background(), logger.NewNop(), cfg)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
