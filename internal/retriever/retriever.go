package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"complaintrag/internal/domain"
	"complaintrag/internal/logger"
	"complaintrag/internal/vectorstore"
)

// Records resolves index positions to stored records.
type Records interface {
	Get(position int) (domain.MetadataRecord, error)
	Len() int
}

// Retriever embeds a question with the build-time model and maps the
// nearest index positions back to their records.
type Retriever struct {
	log      *logger.Logger
	embedder domain.Embedder
	index    vectorstore.Index
	records  Records
}

// New checks that index, records and embedder agree before any query runs.
func New(log *logger.Logger, embedder domain.Embedder, index vectorstore.Index, records Records) (*Retriever, error) {
	if index.Len() != records.Len() {
		return nil, domain.ConsistencyErrorf("index has %d vectors but metadata has %d records", index.Len(), records.Len())
	}
	if embedder.Dimension() != index.Dimension() {
		return nil, domain.ConsistencyErrorf("embedder dimension %d, index dimension %d", embedder.Dimension(), index.Dimension())
	}
	return &Retriever{
		log:      log.With("service", "Retriever"),
		embedder: embedder,
		index:    index,
		records:  records,
	}, nil
}

// Retrieve returns up to k records, nearest first.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.MetadataRecord, error) {
	hits, err := r.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]domain.MetadataRecord, len(hits))
	for i, h := range hits {
		out[i] = h.Record
	}
	return out, nil
}

// Search is Retrieve with positions and distances kept for display.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]domain.SearchHit, error) {
	if k <= 0 {
		return nil, domain.InvalidArgumentf("k must be positive, got %d", k)
	}
	if strings.TrimSpace(query) == "" {
		return nil, domain.InvalidArgumentf("query is empty")
	}
	if r.index.Len() == 0 {
		return []domain.SearchHit{}, nil
	}
	vec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", domain.ErrRetrieval, err)
	}
	neighbors, err := r.index.Search(ctx, vec, k)
	if err != nil {
		if errors.Is(err, domain.ErrConsistency) || errors.Is(err, domain.ErrInvalidArgument) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: search: %w", domain.ErrRetrieval, err)
	}
	hits := make([]domain.SearchHit, 0, len(neighbors))
	for _, n := range neighbors {
		rec, err := r.records.Get(n.Position)
		if err != nil {
			return nil, err
		}
		hits = append(hits, domain.SearchHit{Position: n.Position, Distance: n.Distance, Record: rec})
	}
	r.log.Debug("retrieved", "k", k, "hits", len(hits))
	return hits, nil
}
