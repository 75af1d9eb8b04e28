package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ragtutor/internal/domain"
	"ragtutor/internal/retry"
)

// Storage is a minimal REST client to Qdrant implementing domain.Index.
// Collections use cosine distance. Wire responses are normalized onto
// domain types right here; nothing above this adapter sees raw shapes.
type Storage struct {
	url    string
	apiKey string
	client *http.Client
	policy retry.Policy
}

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// errClient marks a non-retryable 4xx response.
var errClient = errors.New("client error")

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	policy := retry.Default()
	policy.Retryable = func(err error) bool {
		return err != nil && !errors.Is(err, errClient) && !errors.Is(err, domain.ErrCollectionNotFound)
	}
	return &Storage{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
		policy: policy,
	}
}

// EnsureCollection creates the collection if it does not exist.
// A concurrent creator winning the race is treated as success.
func (s *Storage) EnsureCollection(ctx context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: invalid vector dimension %d", domain.ErrInvalidConfig, dim)
	}
	status, err := s.do(ctx, http.MethodGet, "/collections/"+name, nil, nil)
	if err == nil && status == http.StatusOK {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	err = s.policy.Do(ctx, func(ctx context.Context) error {
		status, err := s.do(ctx, http.MethodPut, "/collections/"+name, body, nil)
		if status == http.StatusConflict {
			// Another caller created it first.
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: create collection %s: %v", domain.ErrIndex, name, err)
	}
	return nil
}

// Upsert inserts or replaces points by id, retrying the whole batch on
// transient failure. A failed batch is surfaced, never dropped.
func (s *Storage) Upsert(ctx context.Context, name string, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}
	wire := make([]map[string]any, len(points))
	for i, p := range points {
		wire[i] = map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		}
	}
	body := map[string]any{"points": wire}
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		_, err := s.do(ctx, http.MethodPut, "/collections/"+name+"/points?wait=true", body, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: upsert %d points into %s: %v", domain.ErrIndex, len(points), name, err)
	}
	return nil
}

// Search returns at most topK scored points ordered by descending
// similarity. Equal scores are ordered by id so results are
// reproducible for identical inputs.
func (s *Storage) Search(ctx context.Context, name string, vector []float32, topK int) ([]domain.ScoredPoint, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []wirePoint `json:"result"`
	}
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		_, err := s.do(ctx, http.MethodPost, "/collections/"+name+"/points/search", req, &resp)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrCollectionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: search %s: %v", domain.ErrIndex, name, err)
	}
	points := make([]domain.ScoredPoint, 0, len(resp.Result))
	for _, p := range resp.Result {
		points = append(points, p.normalize())
	}
	sortScored(points)
	return points, nil
}

// Scroll pages through the collection. An empty cursor starts at the
// beginning; an empty next cursor signals exhaustion. A cursor that
// fails to advance ends the scroll rather than looping.
func (s *Storage) Scroll(ctx context.Context, name string, limit int, cursor string) ([]domain.ScoredPoint, string, error) {
	req := map[string]any{
		"limit":        limit,
		"with_payload": true,
	}
	if cursor != "" {
		req["offset"] = cursor
	}
	var resp struct {
		Result struct {
			Points     []wirePoint     `json:"points"`
			NextOffset json.RawMessage `json:"next_page_offset"`
		} `json:"result"`
	}
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		_, err := s.do(ctx, http.MethodPost, "/collections/"+name+"/points/scroll", req, &resp)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrCollectionNotFound) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("%w: scroll %s: %v", domain.ErrIndex, name, err)
	}
	points := make([]domain.ScoredPoint, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		points = append(points, p.normalize())
	}
	next := decodeID(resp.Result.NextOffset)
	if next == cursor || len(points) == 0 {
		next = ""
	}
	return points, next, nil
}

// DeletePoints removes the given point ids.
func (s *Storage) DeletePoints(ctx context.Context, name string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"points": ids}
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		_, err := s.do(ctx, http.MethodPost, "/collections/"+name+"/points/delete?wait=true", body, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: delete %d points from %s: %v", domain.ErrIndex, len(ids), name, err)
	}
	return nil
}

// DeleteCollection drops the collection. Deleting an absent collection
// is not an error.
func (s *Storage) DeleteCollection(ctx context.Context, name string) error {
	_, err := s.do(ctx, http.MethodDelete, "/collections/"+name, nil, nil)
	if err != nil {
		if errors.Is(err, domain.ErrCollectionNotFound) {
			return nil
		}
		return fmt.Errorf("%w: delete collection %s: %v", domain.ErrIndex, name, err)
	}
	return nil
}

// wirePoint is the point shape Qdrant sends on search and scroll.
// Ids arrive as either JSON strings or numbers depending on how the
// point was written; decodeID flattens both to a string.
type wirePoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload domain.Payload  `json:"payload"`
}

func (p wirePoint) normalize() domain.ScoredPoint {
	return domain.ScoredPoint{ID: decodeID(p.ID), Score: p.Score, Payload: p.Payload}
}

func decodeID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func sortScored(points []domain.ScoredPoint) {
	// insertion sort; result sets are topK-sized
	for i := 1; i < len(points); i++ {
		for j := i; j > 0; j-- {
			a, b := points[j-1], points[j]
			if a.Score > b.Score || (a.Score == b.Score && a.ID <= b.ID) {
				break
			}
			points[j-1], points[j] = b, a
		}
	}
}

func (s *Storage) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, fmt.Errorf("%w: qdrant %s %s", domain.ErrCollectionNotFound, method, path)
	case resp.StatusCode >= 500:
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s", method, path, resp.Status)
	case resp.StatusCode >= 400:
		return resp.StatusCode, fmt.Errorf("%w: qdrant %s %s failed: %s", errClient, method, path, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("qdrant %s %s: malformed response: %v", method, path, err)
		}
	}
	return resp.StatusCode, nil
}
