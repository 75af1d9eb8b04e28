package domain

import "context"

// Embedder maps text to fixed-dimension normalized vectors.
// Implementations must be safe for concurrent use.
type Embedder interface {
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunker splits raw document text into bounded, ordered passages
// suitable for embedding.
type Chunker interface {
	Chunk(text string) []string
	TokenCount(text string) int
}

// Index is a per-collection abstraction over a vector database.
type Index interface {
	// EnsureCollection creates the collection if absent. Idempotent;
	// concurrent callers racing to create the same collection must not
	// error or duplicate.
	EnsureCollection(ctx context.Context, name string, dim int) error
	// Upsert inserts or replaces points by id.
	Upsert(ctx context.Context, name string, points []Point) error
	// Search returns at most topK points ordered by descending
	// similarity, equal scores broken by id.
	Search(ctx context.Context, name string, vector []float32, topK int) ([]ScoredPoint, error)
	// Scroll pages through the collection. An empty cursor starts from
	// the beginning; an empty next cursor signals the end.
	Scroll(ctx context.Context, name string, limit int, cursor string) ([]ScoredPoint, string, error)
	// DeletePoints removes the given point ids.
	DeletePoints(ctx context.Context, name string, ids []string) error
	// DeleteCollection removes the collection and all its points.
	// Deleting an absent collection is not an error.
	DeleteCollection(ctx context.Context, name string) error
}

// Retriever answers "top passages for this query" over one owner's
// collection.
type Retriever interface {
	Retrieve(ctx context.Context, owner, query string, topK int) ([]RetrievedDoc, error)
	ListDocuments(ctx context.Context, owner string, limit int) ([]DocumentInfo, error)
	HasData(ctx context.Context, owner string) (bool, error)
	DeleteDocuments(ctx context.Context, owner string, fileNames []string) (int, error)
}

// SessionMemory is the per-session turn log plus its rolling summary.
type SessionMemory interface {
	AppendTurn(ctx context.Context, sessionID, role, text string) error
	History(ctx context.Context, sessionID string) ([]Turn, error)
	Summary(ctx context.Context, sessionID string) (string, error)
	MaybeCompact(ctx context.Context, sessionID string, thresholdTurns int) error
}

// Generator is the text-generation service boundary.
type Generator interface {
	Answer(ctx context.Context, question string, contexts []ContextEntry, shortAnswer bool) (string, error)
	Condense(ctx context.Context, conversation string) (string, error)
	Emotion(ctx context.Context, answer string) string
}

// Ingester runs the document ingestion pipeline for one owner.
type Ingester interface {
	IngestFile(ctx context.Context, owner, filename string, data []byte) (int, error)
}
