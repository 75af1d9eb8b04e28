// Package ingest orchestrates chunking, embedding and index upserts
// for uploaded documents.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ragtutor/internal/domain"
	"ragtutor/internal/embedding"
	"ragtutor/internal/vectorstore"
)

// EmbedBatchSize bounds how many chunks go to the embedding service in
// one call. Batches are processed sequentially; progress already
// upserted is not rolled back when a later batch fails.
const EmbedBatchSize = 100

// Pipeline ingests one document into its owner's collection.
type Pipeline struct {
	chunker  domain.Chunker
	embedder domain.Embedder
	index    domain.Index
	prefix   string
	logger   *slog.Logger
}

func NewPipeline(chunker domain.Chunker, embedder domain.Embedder, index domain.Index, prefix string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{chunker: chunker, embedder: embedder, index: index, prefix: prefix, logger: logger}
}

// IngestFile extracts text, chunks it, embeds the chunks in batches and
// upserts them with full payloads. The returned count reflects only
// chunks actually persisted. An embedding failure degrades the affected
// batch to zero vectors and continues; an upsert failure aborts.
func (p *Pipeline) IngestFile(ctx context.Context, owner, filename string, data []byte) (int, error) {
	text, err := ExtractText(filename, data)
	if err != nil {
		return 0, fmt.Errorf("ingest %s: %w", filename, err)
	}
	chunks := p.chunker.Chunk(text)
	if len(chunks) == 0 {
		return 0, nil
	}

	name := vectorstore.CollectionName(p.prefix, owner)
	dim := p.embedder.Dimension()
	if err := p.index.EnsureCollection(ctx, name, dim); err != nil {
		return 0, fmt.Errorf("ingest %s: %w", filename, err)
	}

	uploadedAt := time.Now().UTC().Format(time.RFC3339)
	uploaded := 0
	for start := 0; start < len(chunks); start += EmbedBatchSize {
		end := start + EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		vectors, err := p.embedder.Embed(ctx, batch)
		if err != nil {
			// Degraded ingestion: keep the chunks reachable by scroll.
			p.logger.Error("embedding batch failed, storing zero vectors",
				"file", filename, "owner", owner, "batch_start", start, "error", err)
			vectors = make([][]float32, len(batch))
			for i := range vectors {
				vectors[i] = embedding.ZeroVector(dim)
			}
		}

		points := make([]domain.Point, len(batch))
		for i, chunkText := range batch {
			points[i] = domain.Point{
				ID:     uuid.NewString(),
				Vector: vectors[i],
				Payload: domain.Payload{
					Source:     filename,
					FileName:   filename,
					ChunkIndex: start + i,
					Text:       chunkText,
					Owner:      owner,
					UploadedAt: uploadedAt,
				},
			}
		}
		if err := p.index.Upsert(ctx, name, points); err != nil {
			return uploaded, fmt.Errorf("ingest %s: %w", filename, err)
		}
		uploaded += len(points)
	}
	p.logger.Info("document ingested", "file", filename, "owner", owner, "chunks", uploaded)
	return uploaded, nil
}
