package qdrant

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"complaintrag/internal/domain"
	"complaintrag/internal/logger"
	"complaintrag/internal/vectorstore"
)

const upsertBatchSize = 256

// Config contains connection details for the Qdrant mirror.
type Config struct {
	Host       string
	Port       int
	APIKeyEnv  string
	UseTLS     bool
	Collection string
	Timeout    time.Duration
	// ModelID is the embedder model the index was built with. It is stored
	// on every point and checked when the collection is opened.
	ModelID string
}

// Index mirrors the flat index in a Qdrant collection. Point ids are the
// vector positions and the collection uses Euclidean distance, so search
// results follow the same contract as the flat index.
type Index struct {
	log        *logger.Logger
	client     *qdrant.Client
	collection string
	modelID    string
	timeout    time.Duration
	dimension  int
	count      int
}

// Connect opens a gRPC connection to Qdrant. It does not touch the collection.
func Connect(log *logger.Logger, cfg Config) (*Index, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	qc := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
	}
	if cfg.APIKeyEnv != "" {
		qc.APIKey = os.Getenv(cfg.APIKeyEnv)
	}
	client, err := qdrant.NewClient(qc)
	if err != nil {
		return nil, domain.ConfigurationErrorf("qdrant client %s:%d: %v", cfg.Host, cfg.Port, err)
	}
	return &Index{
		log:        log.With("service", "QdrantIndex", "collection", cfg.Collection),
		client:     client,
		collection: cfg.Collection,
		modelID:    cfg.ModelID,
		timeout:    timeout,
	}, nil
}

// Open connects and checks the collection against the expected model,
// dimension and point count (the metadata size).
func Open(ctx context.Context, log *logger.Logger, cfg Config, dimension, count int) (*Index, error) {
	x, err := Connect(log, cfg)
	if err != nil {
		return nil, err
	}
	if err := x.attach(ctx, dimension, count); err != nil {
		_ = x.Close()
		return nil, err
	}
	return x, nil
}

func (x *Index) attach(ctx context.Context, dimension, count int) error {
	cctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	info, err := x.client.GetCollectionInfo(cctx, x.collection)
	if err != nil {
		return domain.ConfigurationErrorf("qdrant collection %q: %v; run build-index -sync-qdrant", x.collection, err)
	}
	size := int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
	if size != dimension {
		return domain.ConsistencyErrorf("qdrant collection %q has dimension %d, index has %d", x.collection, size, dimension)
	}
	exact := true
	n, err := x.client.Count(cctx, &qdrant.CountPoints{CollectionName: x.collection, Exact: &exact})
	if err != nil {
		return fmt.Errorf("qdrant count: %w", err)
	}
	if int(n) != count {
		return domain.ConsistencyErrorf("qdrant collection %q holds %d points, metadata has %d records", x.collection, n, count)
	}
	if count > 0 {
		pts, err := x.client.Get(cctx, &qdrant.GetPoints{
			CollectionName: x.collection,
			Ids:            []*qdrant.PointId{qdrant.NewIDNum(0)},
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return fmt.Errorf("qdrant get point 0: %w", err)
		}
		if len(pts) == 0 {
			return domain.ConsistencyErrorf("qdrant collection %q has no point 0", x.collection)
		}
		if err := x.checkModel(pts[0].GetPayload()); err != nil {
			return err
		}
	}
	x.dimension = dimension
	x.count = count
	return nil
}

func (x *Index) Dimension() int { return x.dimension }

func (x *Index) Len() int { return x.count }

func (x *Index) Close() error { return x.client.Close() }

// Sync replaces the collection with vectors and their records. Position i
// becomes point id i.
func (x *Index) Sync(ctx context.Context, vectors [][]float32, records []domain.MetadataRecord) error {
	if len(vectors) != len(records) {
		return domain.ConsistencyErrorf("%d vectors but %d records", len(vectors), len(records))
	}
	if len(vectors) == 0 {
		return domain.ConsistencyErrorf("nothing to sync")
	}
	dim := len(vectors[0])
	if err := x.recreate(ctx, dim); err != nil {
		return err
	}
	wait := true
	for start := 0; start < len(vectors); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(vectors))
		pts := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			if len(vectors[i]) != dim {
				return domain.ConsistencyErrorf("vector %d has dimension %d, expected %d", i, len(vectors[i]), dim)
			}
			pts = append(pts, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(i)),
				Vectors: qdrant.NewVectors(vectors[i]...),
				Payload: qdrant.NewValueMap(payloadOf(records[i], x.modelID)),
			})
		}
		cctx, cancel := context.WithTimeout(ctx, x.timeout)
		_, err := x.client.Upsert(cctx, &qdrant.UpsertPoints{
			CollectionName: x.collection,
			Wait:           &wait,
			Points:         pts,
		})
		cancel()
		if err != nil {
			return fmt.Errorf("qdrant upsert [%d:%d]: %w", start, end, err)
		}
		x.log.Debug("upserted points", "from", start, "to", end)
	}
	x.dimension = dim
	x.count = len(vectors)
	x.log.Info("qdrant collection synced", "points", x.count, "dimension", dim)
	return nil
}

func (x *Index) recreate(ctx context.Context, dim int) error {
	cctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	exists, err := x.client.CollectionExists(cctx, x.collection)
	if err != nil {
		return fmt.Errorf("qdrant collection exists: %w", err)
	}
	if exists {
		if err := x.client.DeleteCollection(cctx, x.collection); err != nil {
			return fmt.Errorf("qdrant delete collection: %w", err)
		}
	}
	err = x.client.CreateCollection(cctx, &qdrant.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dim),
					Distance: qdrant.Distance_Euclid,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	return nil
}

// Search queries the collection and re-sorts by (distance, position) so
// ties resolve the same way as the flat index.
func (x *Index) Search(ctx context.Context, query []float32, k int) ([]vectorstore.Neighbor, error) {
	if k <= 0 {
		return nil, domain.InvalidArgumentf("k must be positive, got %d", k)
	}
	if len(query) != x.dimension {
		return nil, domain.ConsistencyErrorf("query has dimension %d, index has %d", len(query), x.dimension)
	}
	if x.count == 0 {
		return []vectorstore.Neighbor{}, nil
	}
	limit := uint64(k)
	cctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	resp, err := x.client.Query(cctx, &qdrant.QueryPoints{
		CollectionName: x.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}
	out := make([]vectorstore.Neighbor, 0, len(resp))
	for _, p := range resp {
		pos, ok := positionOf(p.GetId())
		if !ok {
			return nil, domain.ConsistencyErrorf("qdrant point id %v is not a position", p.GetId())
		}
		// Euclid collections report the distance itself as the score.
		out = append(out, vectorstore.Neighbor{Position: pos, Distance: p.GetScore()})
	}
	vectorstore.SortNeighbors(out)
	return out, nil
}

func positionOf(id *qdrant.PointId) (int, bool) {
	if id == nil {
		return 0, false
	}
	num, ok := id.GetPointIdOptions().(*qdrant.PointId_Num)
	if !ok {
		return 0, false
	}
	return int(num.Num), true
}

func payloadOf(r domain.MetadataRecord, modelID string) map[string]any {
	return map[string]any{
		"complaint_id": r.ComplaintID,
		"product":      r.Product,
		"text":         r.Text,
		"model_id":     modelID,
	}
}

// checkModel rejects a collection synced from an index of another model.
func (x *Index) checkModel(payload map[string]*qdrant.Value) error {
	got := payload["model_id"].GetStringValue()
	if got != x.modelID {
		return domain.ConsistencyErrorf("qdrant collection %q was synced with model %q, index uses %q", x.collection, got, x.modelID)
	}
	return nil
}
