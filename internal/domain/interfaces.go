package domain

import "context"

// Complaint is a single row of the complaints dataset after the text column
// has been selected.
type Complaint struct {
	ComplaintID string
	Product     string
	Narrative   string
}

// MetadataRecord is the chunk a vector represents. Its position in the
// metadata store equals the position of its vector in the index.
type MetadataRecord struct {
	ComplaintID string `json:"complaint_id"`
	Product     string `json:"product"`
	Text        string `json:"text"`
}

// SearchHit is a retrieved record together with its distance to the query.
type SearchHit struct {
	Position int
	Distance float32
	Record   MetadataRecord
}

// Chunker splits complaint narratives into overlapping excerpts.
type Chunker interface {
	Chunk(rows []Complaint) ([]string, []MetadataRecord)
}

// Embedder converts free text into fixed-size dense vectors.
// The same model must be used at build and query time; ModelID is the value
// recorded in the index file and checked on load.
type Embedder interface {
	ModelID() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	Close() error
}

// Generator turns a prompt into text. Every call is independent.
type Generator interface {
	ModelID() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Retriever maps a question to the nearest stored records, closest first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]MetadataRecord, error)
	Search(ctx context.Context, query string, k int) ([]SearchHit, error)
}
