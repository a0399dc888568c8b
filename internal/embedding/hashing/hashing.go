package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"sort"
	"strings"

	"complaintrag/internal/domain"
	"complaintrag/internal/embedding"
)

// ModelID is the only model this embedder implements. Bump it whenever the
// tokenizer, hashing or weighting changes so old indexes are rejected.
const ModelID = "hashing-v1"

// Embedder is a local feature-hashing embedder. Tokens (and adjacent token
// pairs) are hashed into a fixed number of signed buckets with sublinear
// term-frequency weights, then L2-normalized. It needs no corpus preparation
// and is fully deterministic.
type Embedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// New creates a hashing embedder for the given model id and dimension.
func New(model string, dimension int) (*Embedder, error) {
	if model != ModelID {
		return nil, domain.ConfigurationErrorf("unknown hashing embedder model %q (want %q)", model, ModelID)
	}
	if dimension <= 0 {
		return nil, domain.ConfigurationErrorf("hashing embedder dimension must be > 0, got %d", dimension)
	}
	return &Embedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}, nil
}

func (e *Embedder) ModelID() string { return ModelID }

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Close() error { return nil }

// Embed computes one vector per text. It honours ctx cancellation between texts.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return embedding.EmbedOne(ctx, e, text)
}

func (e *Embedder) embed(text string) []float32 {
	tokens := e.tokenize(text)
	tf := make(map[string]int, len(tokens)*2)
	for i, tok := range tokens {
		tf[tok]++
		if i > 0 {
			tf[tokens[i-1]+" "+tok]++
		}
	}
	// Sorted so bucket collisions always sum in the same order.
	features := make([]string, 0, len(tf))
	for feature := range tf {
		features = append(features, feature)
	}
	sort.Strings(features)
	vec := make([]float32, e.dimension)
	for _, feature := range features {
		idx, sign := e.bucket(feature)
		vec[idx] += sign * float32(1+math.Log(float64(tf[feature])))
	}
	embedding.L2Normalize(vec)
	return vec
}

// bucket maps a feature to an index (hash modulo dimension) and a sign (top
// bit of the same FNV-1a hash).
func (e *Embedder) bucket(feature string) (int, float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimension))
	if sum>>63 == 1 {
		return idx, -1
	}
	return idx, 1
}

func (e *Embedder) tokenize(text string) []string {
	lower := strings.ToLower(text)
	raw := e.tokenPattern.FindAllString(lower, -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
