// Package server exposes the HTTP surface. Handlers are thin
// pass-throughs over the retrieval, ingestion, memory and generation
// components; unrecovered errors map to generic HTTP failures.
package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"ragtutor/internal/domain"
)

const defaultListLimit = 200

// Server wires the HTTP handlers to the core components.
type Server struct {
	retriever        domain.Retriever
	ingester         domain.Ingester
	memory           domain.SessionMemory
	generator        domain.Generator
	topK             int
	compactThreshold int
	logger           *slog.Logger
}

type Config struct {
	TopK             int
	CompactThreshold int
}

func New(retriever domain.Retriever, ingester domain.Ingester, memory domain.SessionMemory, generator domain.Generator, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		retriever:        retriever,
		ingester:         ingester,
		memory:           memory,
		generator:        generator,
		topK:             cfg.TopK,
		compactThreshold: cfg.CompactThreshold,
		logger:           logger,
	}
}

// Register attaches middleware and routes.
func (s *Server) Register(e *echo.Echo) {
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.POST("/docs/upload", s.uploadDocs)
	e.GET("/docs/list", s.listDocs)
	e.DELETE("/docs/delete", s.deleteDocs)
	e.GET("/user/has-data", s.hasData)
	e.POST("/query", s.query)
	e.POST("/chat", s.chat)
}

func (s *Server) uploadDocs(c echo.Context) error {
	email := c.FormValue("email")
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form required")
	}
	files := form.File["files"]
	if len(files) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no files provided")
	}
	total := 0
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unreadable file "+fh.Filename)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unreadable file "+fh.Filename)
		}
		n, err := s.ingester.IngestFile(c.Request().Context(), email, fh.Filename, data)
		total += n
		if err != nil {
			s.logger.Error("document upload failed", "file", fh.Filename, "owner", email, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "document upload failed")
		}
	}
	return c.JSON(http.StatusOK, map[string]int{"upserted_chunks": total})
}

func (s *Server) listDocs(c echo.Context) error {
	email := c.QueryParam("email")
	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	docs, err := s.retriever.ListDocuments(c.Request().Context(), email, limit)
	if err != nil {
		s.logger.Error("docs list failed", "owner", email, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "docs list failed")
	}
	if docs == nil {
		docs = []domain.DocumentInfo{}
	}
	return c.JSON(http.StatusOK, map[string]any{"docs": docs})
}

func (s *Server) deleteDocs(c echo.Context) error {
	email := c.QueryParam("email")
	if email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email required")
	}
	fileNames := c.QueryParams()["file_names"]
	deleted, err := s.retriever.DeleteDocuments(c.Request().Context(), email, fileNames)
	if err != nil {
		s.logger.Error("docs delete failed", "owner", email, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "docs delete failed")
	}
	return c.JSON(http.StatusOK, map[string]any{"deleted": true, "deleted_ids": deleted})
}

func (s *Server) hasData(c echo.Context) error {
	email := c.QueryParam("email")
	if email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email required")
	}
	has, err := s.retriever.HasData(c.Request().Context(), email)
	if err != nil {
		s.logger.Error("has-data failed", "owner", email, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "has-data failed")
	}
	return c.JSON(http.StatusOK, map[string]bool{"has_data": has})
}

type chatRequest struct {
	Message     string `json:"message"`
	SessionID   string `json:"session_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	TopK        int    `json:"top_k"`
	ShortAnswer bool   `json:"short_answer"`
}

type citation struct {
	ID     string `json:"id"`
	Source string `json:"source"`
}

// query answers a single turn: retrieval plus generation, no session
// memory involved.
func (s *Server) query(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil || req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message required")
	}
	contexts, err := s.buildContexts(c, req, false)
	if err != nil {
		return err
	}
	text, err := s.generator.Answer(c.Request().Context(), req.Message, contexts, req.ShortAnswer)
	if err != nil {
		s.logger.Error("query failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "query failed")
	}
	emotion := s.generator.Emotion(c.Request().Context(), text)
	return c.JSON(http.StatusOK, map[string]any{
		"text":      text,
		"emotion":   emotion,
		"citations": citations(contexts, false),
	})
}

// chat answers a multi-turn request: session memory is appended and
// compacted best-effort; memory failures never fail the user request.
func (s *Server) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil || req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message required")
	}
	ctx := c.Request().Context()
	if req.SessionID != "" {
		name := req.Name
		if name == "" {
			name = "user"
		}
		if err := s.memory.AppendTurn(ctx, req.SessionID, "user", name+": "+req.Message); err != nil {
			s.logger.Warn("append turn failed, continuing without memory", "session_id", req.SessionID, "error", err)
		}
		if err := s.memory.MaybeCompact(ctx, req.SessionID, s.compactThreshold); err != nil {
			s.logger.Warn("compaction failed", "session_id", req.SessionID, "error", err)
		}
	}
	contexts, err := s.buildContexts(c, req, req.SessionID != "")
	if err != nil {
		return err
	}
	text, err := s.generator.Answer(ctx, req.Message, contexts, req.ShortAnswer)
	if err != nil {
		s.logger.Error("chat failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "chat failed")
	}
	emotion := s.generator.Emotion(ctx, text)
	if req.SessionID != "" {
		if err := s.memory.AppendTurn(ctx, req.SessionID, "assistant", text); err != nil {
			s.logger.Warn("append turn failed", "session_id", req.SessionID, "error", err)
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"session_id": req.SessionID,
		"text":       text,
		"emotion":    emotion,
		"citations":  citations(contexts, true),
	})
}

// buildContexts retrieves grounding passages and optionally prefixes
// the session summary as a synthetic entry.
func (s *Server) buildContexts(c echo.Context, req chatRequest, includeSummary bool) ([]domain.ContextEntry, error) {
	ctx := c.Request().Context()
	topK := req.TopK
	if topK == 0 {
		topK = s.topK
	}
	docs, err := s.retriever.Retrieve(ctx, req.Email, req.Message, topK)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidConfig) {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid top_k")
		}
		s.logger.Error("retrieval failed", "owner", req.Email, "error", err)
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "retrieval failed")
	}
	contexts := make([]domain.ContextEntry, 0, len(docs)+1)
	for _, d := range docs {
		contexts = append(contexts, domain.ContextEntry{ID: d.ID, Text: d.Text, Source: d.Source})
	}
	if includeSummary {
		summary, err := s.memory.Summary(ctx, req.SessionID)
		if err != nil {
			s.logger.Warn("summary read failed", "session_id", req.SessionID, "error", err)
		} else if summary != "" {
			entry := domain.ContextEntry{ID: domain.SessionSummaryID, Text: summary, Source: domain.SessionSummaryID}
			contexts = append([]domain.ContextEntry{entry}, contexts...)
		}
	}
	return contexts, nil
}

// citations lists the grounding sources, excluding the synthetic
// session summary when asked.
func citations(contexts []domain.ContextEntry, excludeSummary bool) []citation {
	out := make([]citation, 0, len(contexts))
	for _, c := range contexts {
		if excludeSummary && c.ID == domain.SessionSummaryID {
			continue
		}
		out = append(out, citation{ID: c.ID, Source: c.Source})
	}
	return out
}
