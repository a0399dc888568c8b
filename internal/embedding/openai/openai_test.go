package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaintrag/internal/domain"
	"complaintrag/internal/logger"
)

type embedReq struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// fakeServer answers /embeddings with vectors of the given dimension whose
// first component encodes the input length. Items are returned in reverse
// order to exercise index placement.
func fakeServer(t *testing.T, dim int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(embeddingsHandler(t, dim, calls))
}

func embeddingsHandler(t *testing.T, dim int, calls *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req embedReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			v := make([]float32, dim)
			v[0] = float32(len(req.Input[i]))
			v[1] = 1
			data = append(data, item{Object: "embedding", Index: i, Embedding: v})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
		})
	}
}

func testConfig(url string) Config {
	return Config{
		BaseURL:     url,
		APIKeyEnv:   "COMPLAINTRAG_TEST_EMBED_KEY",
		Model:       "text-embedding-3-small",
		Timeout:     2 * time.Second,
		BatchSize:   2,
		Concurrency: 2,
		MaxRetries:  1,
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("COMPLAINTRAG_TEST_EMBED_KEY", "")
	_, err := NewClient(context.Background(), logger.NewNop(), testConfig("http://127.0.0.1:1"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestNewClientProbesDimension(t *testing.T) {
	t.Setenv("COMPLAINTRAG_TEST_EMBED_KEY", "test-key")
	srv := fakeServer(t, 8, nil)
	defer srv.Close()

	c, err := NewClient(context.Background(), logger.NewNop(), testConfig(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, 8, c.Dimension())
	assert.Equal(t, "text-embedding-3-small", c.ModelID())

	cfg := testConfig(srv.URL)
	cfg.Dimension = 16
	_, err = NewClient(context.Background(), logger.NewNop(), cfg)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestNewClientUnknownModelIsConfigurationError(t *testing.T) {
	t.Setenv("COMPLAINTRAG_TEST_EMBED_KEY", "test-key")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(context.Background(), logger.NewNop(), testConfig(srv.URL))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestEmbedKeepsInputOrderAcrossBatches(t *testing.T) {
	t.Setenv("COMPLAINTRAG_TEST_EMBED_KEY", "test-key")
	var calls atomic.Int32
	srv := fakeServer(t, 4, &calls)
	defer srv.Close()

	c, err := NewClient(context.Background(), logger.NewNop(), testConfig(srv.URL))
	require.NoError(t, err)
	calls.Store(0)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := c.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	assert.Equal(t, int32(3), calls.Load(), "5 texts in batches of 2")

	// normalized (len, 1, 0, 0): the ratio of the first two components is the length
	for i, v := range vecs {
		require.Len(t, v, 4)
		assert.InDelta(t, float64(len(texts[i])), float64(v[0]/v[1]), 1e-4)
	}
}

func TestEmbedRetriesServerErrors(t *testing.T) {
	t.Setenv("COMPLAINTRAG_TEST_EMBED_KEY", "test-key")
	ok := embeddingsHandler(t, 4, nil)

	var failures atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the probe succeeds, the next request fails once
		if failures.Add(1) == 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		ok(w, r)
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), logger.NewNop(), testConfig(srv.URL))
	require.NoError(t, err)
	v, err := c.EmbedOne(context.Background(), "late fee")
	require.NoError(t, err)
	assert.Len(t, v, 4)
	assert.Equal(t, int32(3), failures.Load())
}

func TestRetryDelayIsCapped(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, retryDelay(0))
	assert.Equal(t, 400*time.Millisecond, retryDelay(1))
	assert.Equal(t, 5*time.Second, retryDelay(10))
}
