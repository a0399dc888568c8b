package vectorstore

import (
	"context"
	"slices"
)

// Neighbor is one search result: the vector's position in insertion order
// and its Euclidean distance to the query.
type Neighbor struct {
	Position int
	Distance float32
}

// Index answers nearest-neighbour queries over vectors addressed by position.
type Index interface {
	Dimension() int
	Len() int
	// Search returns at most k neighbours sorted by ascending distance, ties
	// broken by lower position. k <= 0 is an invalid argument.
	Search(ctx context.Context, query []float32, k int) ([]Neighbor, error)
}

// SortNeighbors orders ns by (distance, position).
func SortNeighbors(ns []Neighbor) {
	slices.SortFunc(ns, func(a, b Neighbor) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return a.Position - b.Position
	})
}
