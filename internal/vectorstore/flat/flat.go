package flat

import (
	"context"
	"math"
	"sync"

	"complaintrag/internal/domain"
	"complaintrag/internal/vectorstore"
)

// Index is an in-memory flat vector index using exact Euclidean distance.
// Vectors are addressed by insertion position.
type Index struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
}

// New returns an empty index for vectors of the given dimension.
func New(dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, domain.ConsistencyErrorf("invalid index dimension %d", dimension)
	}
	return &Index{dimension: dimension}, nil
}

// Build creates an index holding vectors in input order.
func Build(dimension int, vectors [][]float32) (*Index, error) {
	idx, err := New(dimension)
	if err != nil {
		return nil, err
	}
	if err := idx.Add(vectors); err != nil {
		return nil, err
	}
	return idx, nil
}

// Add appends vectors after the existing ones. Either all are added or none.
func (x *Index) Add(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != x.dimension {
			return domain.ConsistencyErrorf("vector %d has dimension %d, index has %d", i, len(v), x.dimension)
		}
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, v := range vectors {
		cp := make([]float32, len(v))
		copy(cp, v)
		x.vectors = append(x.vectors, cp)
	}
	return nil
}

func (x *Index) Dimension() int { return x.dimension }

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Search scans every vector and returns the k nearest.
func (x *Index) Search(ctx context.Context, query []float32, k int) ([]vectorstore.Neighbor, error) {
	if k <= 0 {
		return nil, domain.InvalidArgumentf("k must be positive, got %d", k)
	}
	if len(query) != x.dimension {
		return nil, domain.ConsistencyErrorf("query has dimension %d, index has %d", len(query), x.dimension)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	all := make([]vectorstore.Neighbor, len(x.vectors))
	for i, v := range x.vectors {
		all[i] = vectorstore.Neighbor{Position: i, Distance: euclidean(v, query)}
	}
	vectorstore.SortNeighbors(all)
	if k > len(all) {
		k = len(all)
	}
	return all[:k], nil
}

func euclidean(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}
