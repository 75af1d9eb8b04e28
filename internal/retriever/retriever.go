package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"ragtutor/internal/domain"
	"ragtutor/internal/embedding"
	"ragtutor/internal/vectorstore"
)

const (
	// DefaultTopK is used when a caller leaves top_k unset.
	DefaultTopK = 6

	snippetLen     = 500
	scrollPageSize = 200
)

// Retriever composes the embedder and the vector index to answer
// queries over one owner's collection.
type Retriever struct {
	embedder domain.Embedder
	index    domain.Index
	prefix   string
	logger   *slog.Logger
}

func New(embedder domain.Embedder, index domain.Index, prefix string, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, index: index, prefix: prefix, logger: logger}
}

// Retrieve embeds the query and returns the owner's topK most similar
// passages. An unset (zero) topK defaults to 6; a negative one is a
// configuration error. An absent collection yields an empty result.
// A query-time embedding failure degrades to the zero vector, yielding
// a low-relevance result set instead of failing the request.
func (r *Retriever) Retrieve(ctx context.Context, owner, query string, topK int) ([]domain.RetrievedDoc, error) {
	if topK == 0 {
		topK = DefaultTopK
	}
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be at least 1, got %d", domain.ErrInvalidConfig, topK)
	}
	vector := r.embedQuery(ctx, query)
	name := vectorstore.CollectionName(r.prefix, owner)
	points, err := r.index.Search(ctx, name, vector, topK)
	if err != nil {
		if errors.Is(err, domain.ErrCollectionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	docs := make([]domain.RetrievedDoc, 0, len(points))
	for _, p := range points {
		docs = append(docs, domain.RetrievedDoc{
			ID:     p.ID,
			Score:  p.Score,
			Text:   p.Payload.Text,
			Source: p.Payload.Source,
			Metadata: map[string]any{
				"source":      p.Payload.Source,
				"file_name":   p.Payload.FileName,
				"chunk_index": p.Payload.ChunkIndex,
				"email":       p.Payload.Owner,
				"uploaded_at": p.Payload.UploadedAt,
			},
		})
	}
	return docs, nil
}

// ListDocuments pages the owner's collection and returns unique source
// documents with a short snippet. The first-seen snippet per source
// wins; the scroll stops once limit unique sources are found or the
// collection is exhausted.
func (r *Retriever) ListDocuments(ctx context.Context, owner string, limit int) ([]domain.DocumentInfo, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", domain.ErrInvalidConfig, limit)
	}
	name := vectorstore.CollectionName(r.prefix, owner)
	seen := make(map[string]struct{})
	var docs []domain.DocumentInfo
	cursor := ""
	for {
		points, next, err := r.index.Scroll(ctx, name, scrollPageSize, cursor)
		if err != nil {
			if errors.Is(err, domain.ErrCollectionNotFound) {
				return nil, nil
			}
			return nil, err
		}
		for _, p := range points {
			source := p.Payload.Source
			if source == "" {
				source = p.Payload.FileName
			}
			if source == "" {
				source = "unknown"
			}
			if _, ok := seen[source]; ok {
				continue
			}
			seen[source] = struct{}{}
			docs = append(docs, domain.DocumentInfo{Source: source, Snippet: snippet(p.Payload.Text)})
			if len(docs) >= limit {
				return docs, nil
			}
		}
		if next == "" {
			return docs, nil
		}
		cursor = next
	}
}

// HasData reports whether the owner's collection exists and holds at
// least one point.
func (r *Retriever) HasData(ctx context.Context, owner string) (bool, error) {
	name := vectorstore.CollectionName(r.prefix, owner)
	points, _, err := r.index.Scroll(ctx, name, 1, "")
	if err != nil {
		if errors.Is(err, domain.ErrCollectionNotFound) {
			return false, nil
		}
		return false, err
	}
	return len(points) > 0, nil
}

// DeleteDocuments removes the owner's points, restricted to the given
// file names when any are supplied. Ownership is checked against the
// payload's exact owner key, so a sanitized-name collision with another
// owner never deletes their data. Returns the number of points removed.
func (r *Retriever) DeleteDocuments(ctx context.Context, owner string, fileNames []string) (int, error) {
	name := vectorstore.CollectionName(r.prefix, owner)
	wanted := make(map[string]struct{}, len(fileNames))
	for _, f := range fileNames {
		wanted[f] = struct{}{}
	}
	var ids []string
	cursor := ""
	for {
		points, next, err := r.index.Scroll(ctx, name, scrollPageSize, cursor)
		if err != nil {
			if errors.Is(err, domain.ErrCollectionNotFound) {
				return 0, nil
			}
			return 0, err
		}
		for _, p := range points {
			if !strings.EqualFold(p.Payload.Owner, owner) {
				continue
			}
			if len(wanted) > 0 {
				if _, ok := wanted[p.Payload.FileName]; !ok {
					continue
				}
			}
			ids = append(ids, p.ID)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := r.index.DeletePoints(ctx, name, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) []float32 {
	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) == 0 {
		r.logger.Warn("query embedding failed, using zero vector", "error", err)
		return embedding.ZeroVector(r.embedder.Dimension())
	}
	return vectors[0]
}

func snippet(text string) string {
	if len(text) <= snippetLen {
		return text
	}
	cut := snippetLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
