package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ragtutor/internal/domain"
)

// Storage is an in-memory vector index using brute-force cosine
// similarity. It mirrors the Qdrant adapter's contract and backs tests
// and single-process deployments.
type Storage struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	dim    int
	points map[string]domain.Point
}

func NewStorage() *Storage {
	return &Storage{collections: make(map[string]*collection)}
}

// EnsureCollection creates the collection if absent. Concurrent
// creators are serialized by the store lock; the loser no-ops.
func (s *Storage) EnsureCollection(ctx context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: invalid vector dimension %d", domain.ErrInvalidConfig, dim)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = &collection{dim: dim, points: make(map[string]domain.Point)}
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, name string, points []domain.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	for _, p := range points {
		if len(p.Vector) != col.dim {
			return fmt.Errorf("%w: vector dimension %d, collection expects %d", domain.ErrIndex, len(p.Vector), col.dim)
		}
	}
	for _, p := range points {
		col.points[p.ID] = p
	}
	return nil
}

// Search assumes stored vectors are L2-normalized, so cosine similarity
// is the dot product. Equal scores are broken by id.
func (s *Storage) Search(ctx context.Context, name string, vector []float32, topK int) ([]domain.ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	scored := make([]domain.ScoredPoint, 0, len(col.points))
	for id, p := range col.points {
		scored = append(scored, domain.ScoredPoint{ID: id, Score: dot(p.Vector, vector), Payload: p.Payload})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	if topK < len(scored) {
		scored = scored[:topK]
	}
	return scored, nil
}

// Scroll walks points in id order; the cursor is the next id to serve.
func (s *Storage) Scroll(ctx context.Context, name string, limit int, cursor string) ([]domain.ScoredPoint, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[name]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	ids := make([]string, 0, len(col.points))
	for id := range col.points {
		if cursor == "" || id >= cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	next := ""
	if limit > 0 && len(ids) > limit {
		next = ids[limit]
		ids = ids[:limit]
	}
	out := make([]domain.ScoredPoint, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.ScoredPoint{ID: id, Payload: col.points[id].Payload})
	}
	return out, next, nil
}

func (s *Storage) DeletePoints(ctx context.Context, name string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	for _, id := range ids {
		delete(col.points, id)
	}
	return nil
}

func (s *Storage) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
