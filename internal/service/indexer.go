package service

import (
	"context"
	"fmt"
	"time"

	"complaintrag/internal/corpus"
	"complaintrag/internal/domain"
	"complaintrag/internal/embedding"
	"complaintrag/internal/logger"
	"complaintrag/internal/metadata"
	"complaintrag/internal/vectorstore/flat"
)

const embedProgressStep = 512

// Mirror receives a copy of a freshly built index, e.g. a Qdrant collection.
type Mirror interface {
	Sync(ctx context.Context, vectors [][]float32, records []domain.MetadataRecord) error
}

// BuildReport summarises one index build.
type BuildReport struct {
	Complaints int
	Chunks     int
	Dimension  int
	ModelID    string
	Elapsed    time.Duration
}

// Indexer is the offline build phase: chunk, embed, then write index and
// metadata as one unit. It must finish before any query process loads the
// files.
type Indexer struct {
	log          *logger.Logger
	chunker      domain.Chunker
	embedder     domain.Embedder
	indexPath    string
	metadataPath string
	mirror       Mirror
}

func NewIndexer(log *logger.Logger, chunker domain.Chunker, embedder domain.Embedder, indexPath, metadataPath string) *Indexer {
	return &Indexer{
		log:          log.With("service", "Indexer"),
		chunker:      chunker,
		embedder:     embedder,
		indexPath:    indexPath,
		metadataPath: metadataPath,
	}
}

// WithMirror makes Build also sync the result to m after the files are written.
func (ix *Indexer) WithMirror(m Mirror) *Indexer {
	ix.mirror = m
	return ix
}

func (ix *Indexer) Build(ctx context.Context, rows []domain.Complaint) (BuildReport, error) {
	start := time.Now()
	texts, records := ix.chunker.Chunk(rows)
	if len(texts) != len(records) {
		return BuildReport{}, domain.ConsistencyErrorf("chunker returned %d texts and %d records", len(texts), len(records))
	}
	if len(texts) == 0 {
		ix.log.Warn("no chunks produced; writing an empty index", "complaints", len(rows))
	}
	ix.log.Info("chunked", "complaints", len(rows), "chunks", len(texts))

	vectors := make([][]float32, 0, len(texts))
	for from := 0; from < len(texts); from += embedProgressStep {
		to := min(from+embedProgressStep, len(texts))
		vecs, err := ix.embedder.Embed(ctx, texts[from:to])
		if err != nil {
			return BuildReport{}, fmt.Errorf("embed chunks [%d:%d]: %w", from, to, err)
		}
		if len(vecs) != to-from {
			return BuildReport{}, domain.ConsistencyErrorf("embedder returned %d vectors for %d texts", len(vecs), to-from)
		}
		vectors = append(vectors, vecs...)
		ix.log.Debug("embedded", "done", to, "total", len(texts))
	}

	dim := ix.embedder.Dimension()
	if err := embedding.CheckDimensions(vectors, dim); err != nil {
		return BuildReport{}, err
	}
	idx, err := flat.Build(dim, vectors)
	if err != nil {
		return BuildReport{}, err
	}
	meta := metadata.NewStore()
	meta.AppendAll(records)
	if err := corpus.Write(ix.indexPath, ix.metadataPath, idx, meta, ix.embedder.ModelID()); err != nil {
		return BuildReport{}, fmt.Errorf("write index: %w", err)
	}
	ix.log.Info("index written", "index", ix.indexPath, "metadata", ix.metadataPath, "vectors", idx.Len())

	if ix.mirror != nil && len(vectors) > 0 {
		if err := ix.mirror.Sync(ctx, vectors, records); err != nil {
			return BuildReport{}, fmt.Errorf("sync mirror: %w", err)
		}
	}
	return BuildReport{
		Complaints: len(rows),
		Chunks:     len(texts),
		Dimension:  dim,
		ModelID:    ix.embedder.ModelID(),
		Elapsed:    time.Since(start),
	}, nil
}
