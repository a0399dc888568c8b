package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"complaintrag/internal/domain"
	"complaintrag/internal/embedding"
	"complaintrag/internal/logger"
)

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Dimension   int
	Timeout     time.Duration
	BatchSize   int
	Concurrency int
	MaxRetries  int
}

// Client embeds text through any OpenAI-compatible /embeddings endpoint
// (OpenAI, Ollama, LM Studio, vLLM).
type Client struct {
	log         *logger.Logger
	client      *openai.Client
	model       string
	dimension   int
	timeout     time.Duration
	batchSize   int
	concurrency int
	maxRetries  int
}

// NewClient creates the client and probes the model once. A missing key, an
// unknown model or a dimension different from cfg.Dimension is a
// configuration error.
func NewClient(ctx context.Context, log *logger.Logger, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, domain.ConfigurationErrorf("embedding model is required")
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, domain.ConfigurationErrorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	oc := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: t}

	c := &Client{
		log:         log.With("service", "OpenAIEmbedder", "model", cfg.Model),
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		dimension:   cfg.Dimension,
		timeout:     t,
		batchSize:   max(cfg.BatchSize, 1),
		concurrency: max(cfg.Concurrency, 1),
		maxRetries:  cfg.MaxRetries,
	}
	if c.maxRetries == 0 {
		c.maxRetries = 3
	}

	probe, err := c.embedBatch(ctx, []string{"model probe"})
	if err != nil {
		return nil, domain.ConfigurationErrorf("embedding model %q unavailable: %v", cfg.Model, err)
	}
	got := len(probe[0])
	if c.dimension != 0 && got != c.dimension {
		return nil, domain.ConfigurationErrorf("embedding model %q returns dimension %d, configured %d", cfg.Model, got, c.dimension)
	}
	c.dimension = got
	c.log.Info("embedding model ready", "base_url", oc.BaseURL, "dimension", got)
	return c, nil
}

func (c *Client) ModelID() string { return c.model }

func (c *Client) Dimension() int { return c.dimension }

func (c *Client) Close() error { return nil }

// Embed splits texts into batches and embeds them with bounded parallelism.
// Output order matches input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := c.embedBatch(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := embedding.CheckDimensions(out, c.dimension); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return embedding.EmbedOne(ctx, c, text)
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay(attempt - 1)):
			}
		}
		vecs, err := c.embedOnce(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		c.log.Warn("embedding attempt failed", "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("embeddings failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.client.CreateEmbeddings(cctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.model),
		Input: texts,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings response has %d items for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || out[d.Index] != nil {
			return nil, fmt.Errorf("embeddings response has bad index %d", d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, errors.New("empty embedding")
		}
		v := make([]float32, len(d.Embedding))
		copy(v, d.Embedding)
		embedding.L2Normalize(v)
		out[d.Index] = v
	}
	return out, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
