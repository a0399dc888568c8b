// Package app assembles components from configuration for the commands.
package app

import (
	"context"
	"time"

	"complaintrag/internal/chunker"
	"complaintrag/internal/config"
	"complaintrag/internal/corpus"
	"complaintrag/internal/domain"
	"complaintrag/internal/embedding/hashing"
	embopenai "complaintrag/internal/embedding/openai"
	genopenai "complaintrag/internal/generator/openai"
	"complaintrag/internal/logger"
	"complaintrag/internal/retriever"
	"complaintrag/internal/service"
	"complaintrag/internal/vectorstore"
	"complaintrag/internal/vectorstore/qdrant"
)

func NewChunker(cfg *config.AppConfig) (*chunker.WindowChunker, error) {
	c, err := chunker.NewWindowChunker(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
	if err != nil {
		return nil, domain.ConfigurationErrorf("chunker: %v", err)
	}
	return c, nil
}

// NewEmbedder creates the single embedder instance of the process. Remote
// embedders are probed here so an unknown model fails at startup.
func NewEmbedder(ctx context.Context, log *logger.Logger, cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "hashing":
		e, err := hashing.New(cfg.Embedder.Model, cfg.Embedder.Dimension)
		if err != nil {
			return nil, err
		}
		return e, nil
	case "openai":
		o := cfg.Embedder.OpenAI
		c, err := embopenai.NewClient(ctx, log, embopenai.Config{
			BaseURL:     o.BaseURL,
			APIKeyEnv:   o.APIKeyEnv,
			Model:       cfg.Embedder.Model,
			Dimension:   cfg.Embedder.Dimension,
			Timeout:     time.Duration(o.TimeoutSecs) * time.Second,
			BatchSize:   o.BatchSize,
			Concurrency: o.Concurrency,
			MaxRetries:  o.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, domain.ConfigurationErrorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

// NewGenerator requires the credential named by generator.api_key_env.
func NewGenerator(log *logger.Logger, cfg *config.AppConfig) (domain.Generator, error) {
	switch cfg.Generator.Type {
	case "openai":
		g, err := genopenai.New(log, genopenai.Config{
			Model:       cfg.Generator.Model,
			BaseURL:     cfg.Generator.BaseURL,
			APIKeyEnv:   cfg.Generator.APIKeyEnv,
			Timeout:     cfg.GeneratorTimeout(),
			Temperature: cfg.Generator.Temperature,
			MaxTokens:   cfg.Generator.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, domain.ConfigurationErrorf("unknown generator: %s", cfg.Generator.Type)
	}
}

// QdrantConfig maps the vector_store.qdrant section; modelID is the embedder
// model of the index being mirrored.
func QdrantConfig(cfg *config.AppConfig, modelID string) qdrant.Config {
	q := cfg.VectorStore.Qdrant
	return qdrant.Config{
		Host:       q.Host,
		Port:       q.Port,
		APIKeyEnv:  q.APIKeyEnv,
		UseTLS:     q.UseTLS,
		Collection: q.Collection,
		Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		ModelID:    modelID,
	}
}

// Components is everything a query process holds open.
type Components struct {
	Embedder  domain.Embedder
	Generator domain.Generator
	Retriever *retriever.Retriever
	Pipeline  *service.Pipeline
	closers   []func() error
}

// Close releases the embedder and any remote index connection.
func (c *Components) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open loads the index unit, checks it against the configured embedder and
// builds the pipeline. Every failure here is a startup failure.
func Open(ctx context.Context, log *logger.Logger, cfg *config.AppConfig) (*Components, error) {
	if !corpus.Exists(cfg.Index.IndexPath, cfg.Index.MetadataPath) {
		return nil, domain.ConfigurationErrorf("no index at %s and %s; run build-index first",
			cfg.Index.IndexPath, cfg.Index.MetadataPath)
	}
	comp := &Components{}
	fail := func(err error) (*Components, error) {
		_ = comp.Close()
		return nil, err
	}

	gen, err := NewGenerator(log, cfg)
	if err != nil {
		return fail(err)
	}
	comp.Generator = gen

	emb, err := NewEmbedder(ctx, log, cfg)
	if err != nil {
		return fail(err)
	}
	comp.Embedder = emb
	comp.closers = append(comp.closers, emb.Close)

	c, err := corpus.Load(cfg.Index.IndexPath, cfg.Index.MetadataPath, emb)
	if err != nil {
		return fail(err)
	}
	log.Info("index loaded", "vectors", c.Index.Len(), "dimension", c.Index.Dimension(), "model", c.ModelID)

	var index vectorstore.Index = c.Index
	if cfg.VectorStore.Type == "qdrant" {
		q, err := qdrant.Open(ctx, log, QdrantConfig(cfg, c.ModelID), c.Index.Dimension(), c.Metadata.Len())
		if err != nil {
			return fail(err)
		}
		comp.closers = append(comp.closers, q.Close)
		index = q
	}

	r, err := retriever.New(log, emb, index, c.Metadata)
	if err != nil {
		return fail(err)
	}
	comp.Retriever = r

	p, err := service.NewPipeline(log, r, gen, service.PipelineOptions{
		TopK:           cfg.Retriever.TopK,
		PromptExcerpts: cfg.Pipeline.PromptExcerpts,
	})
	if err != nil {
		return fail(err)
	}
	comp.Pipeline = p
	return comp, nil
}
