package embedding

import (
	"context"
	"fmt"
	"math"

	"complaintrag/internal/domain"
)

// L2Normalize scales v to unit length in place. Zero vectors are left alone.
func L2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// EmbedOne embeds a single text through a batch Embed call.
func EmbedOne(ctx context.Context, e interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 input", len(vecs))
	}
	return vecs[0], nil
}

// CheckDimensions verifies every vector has the expected length.
func CheckDimensions(vectors [][]float32, dim int) error {
	for i, v := range vectors {
		if len(v) != dim {
			return domain.ConsistencyErrorf("vector %d has dimension %d, expected %d", i, len(v), dim)
		}
	}
	return nil
}
