package domain

// Payload is the metadata stored alongside every vector in the index.
// Field names match the wire schema exactly.
type Payload struct {
	Source     string `json:"source"`
	FileName   string `json:"file_name"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
	Owner      string `json:"email"`
	UploadedAt string `json:"uploaded_at"`
}

// Point is a vector index entry: an id, its embedding and the payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// ScoredPoint is a stored point plus its similarity score for a query.
// Higher scores are better.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload Payload
}

// RetrievedDoc is the per-query retrieval result handed to the
// generation layer. Ephemeral, never persisted.
type RetrievedDoc struct {
	ID       string
	Score    float64
	Text     string
	Source   string
	Metadata map[string]any
}

// DocumentInfo describes one unique source document in a collection.
type DocumentInfo struct {
	Source  string `json:"source"`
	Snippet string `json:"snippet"`
}

// Turn is a single conversation entry.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ContextEntry is one grounding passage handed to the generator.
// A synthetic entry with ID and Source "session_summary" carries the
// rolling conversation summary when one exists.
type ContextEntry struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Source string `json:"source"`
}

// SessionSummaryID marks the synthetic context entry built from the
// rolling session summary.
const SessionSummaryID = "session_summary"
