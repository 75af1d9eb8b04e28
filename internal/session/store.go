// Package session persists per-session conversation history and a
// rolling summary in Redis.
//
// Key layout:
//
//	session:<id>:history  list of JSON-encoded turns
//	session:<id>:summary  single string
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"ragtutor/internal/domain"
)

// HistoryCap bounds the stored history. Older turns are dropped and
// survive only if captured in the summary.
const HistoryCap = 100

// Condenser produces a short summary of a rendered conversation. The
// text-generation gateway implements it.
type Condenser interface {
	Condense(ctx context.Context, conversation string) (string, error)
}

// Store implements domain.SessionMemory on Redis.
type Store struct {
	rdb       *redis.Client
	condenser Condenser
	logger    *slog.Logger
}

func NewStore(rdb *redis.Client, condenser Condenser, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{rdb: rdb, condenser: condenser, logger: logger}
}

// AppendTurn appends to the session history and trims it to the most
// recent HistoryCap turns.
func (s *Store) AppendTurn(ctx context.Context, sessionID, role, text string) error {
	entry, err := json.Marshal(domain.Turn{Role: role, Text: text})
	if err != nil {
		return fmt.Errorf("%w: encode turn: %v", domain.ErrMemory, err)
	}
	key := historyKey(sessionID)
	if err := s.rdb.RPush(ctx, key, entry).Err(); err != nil {
		return fmt.Errorf("%w: append turn: %v", domain.ErrMemory, err)
	}
	if err := s.rdb.LTrim(ctx, key, -HistoryCap, -1).Err(); err != nil {
		return fmt.Errorf("%w: trim history: %v", domain.ErrMemory, err)
	}
	return nil
}

// History returns the stored turns, oldest first.
func (s *Store) History(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	items, err := s.rdb.LRange(ctx, historyKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read history: %v", domain.ErrMemory, err)
	}
	turns := make([]domain.Turn, 0, len(items))
	for _, item := range items {
		var t domain.Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("%w: decode turn: %v", domain.ErrMemory, err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Summary returns the current summary, or the empty string when none
// has been stored yet.
func (s *Store) Summary(ctx context.Context, sessionID string) (string, error) {
	val, err := s.rdb.Get(ctx, summaryKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: read summary: %v", domain.ErrMemory, err)
	}
	return val, nil
}

// MaybeCompact condenses the most recent thresholdTurns turns into a
// fresh summary once the history reaches the threshold. The new summary
// replaces the old one wholesale; only the latest condensation
// survives. Compaction is best-effort: a condensation failure is
// logged and the existing summary is left untouched.
func (s *Store) MaybeCompact(ctx context.Context, sessionID string, thresholdTurns int) error {
	if thresholdTurns <= 0 {
		return fmt.Errorf("%w: compaction threshold must be positive, got %d", domain.ErrInvalidConfig, thresholdTurns)
	}
	key := historyKey(sessionID)
	length, err := s.rdb.LLen(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: history length: %v", domain.ErrMemory, err)
	}
	if length < int64(thresholdTurns) {
		return nil
	}
	items, err := s.rdb.LRange(ctx, key, int64(-thresholdTurns), -1).Result()
	if err != nil {
		return fmt.Errorf("%w: read window: %v", domain.ErrMemory, err)
	}
	var lines []string
	for _, item := range items {
		var t domain.Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			continue
		}
		lines = append(lines, t.Role+": "+t.Text)
	}
	summary, err := s.condenser.Condense(ctx, strings.Join(lines, "\n"))
	if err != nil {
		s.logger.Warn("conversation compaction failed, keeping existing summary",
			"session_id", sessionID, "error", err)
		return nil
	}
	if err := s.rdb.Set(ctx, summaryKey(sessionID), strings.TrimSpace(summary), 0).Err(); err != nil {
		return fmt.Errorf("%w: store summary: %v", domain.ErrMemory, err)
	}
	return nil
}

func historyKey(id string) string { return "session:" + id + ":history" }
func summaryKey(id string) string { return "session:" + id + ":summary" }
