package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"rag-assistant/internal/history"
	"rag-assistant/internal/models"
)

type ChatRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

type ChatResponse struct {
	Response     string                   `json:"response"`
	UsedFallback bool                     `json:"used_fallback"`
	ContextUsed  bool                     `json:"context_used"`
	Sources      []models.RetrievalResult `json:"sources,omitempty"`
}

type IngestRequest struct {
	Path     string `json:"path"`
	SourceID string `json:"source_id,omitempty"`
}

type IngestResponse struct {
	SourceID       string `json:"source_id"`
	ChunksProduced int    `json:"chunks_produced"`
	ChunksEmbedded int    `json:"chunks_embedded"`
	ChunksStored   int    `json:"chunks_stored"`
	ChunksFailed   int    `json:"chunks_failed"`
	Partial        bool   `json:"partial"`
	Error          string `json:"error,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, ChatResponse{Response: "invalid request body"})
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		s.respondJSON(w, http.StatusBadRequest, ChatResponse{Response: models.NoQueryMessage})
		return
	}

	s.record(r, models.RoleUser, query)
	res := s.rag.Answer(r.Context(), query, req.TopK)
	if res.Failed {
		s.respondJSON(w, http.StatusInternalServerError, ChatResponse{Response: models.SafeErrorMessage})
		return
	}
	s.record(r, models.RoleAssistant, res.Text)

	s.respondJSON(w, http.StatusOK, ChatResponse{
		Response:     res.Text,
		UsedFallback: res.UsedFallback,
		ContextUsed:  res.ContextUsed,
		Sources:      res.Sources,
	})
}

// record is best effort: a transcript write never fails the chat request.
func (s *Server) record(r *http.Request, role, content string) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(r.Context(), role, content); err != nil {
		log.Warn().Err(err).Str("role", role).Msg("Could not record chat history")
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	msgs, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Could not load chat history")
		s.respondError(w, http.StatusInternalServerError, models.SafeErrorMessage)
		return
	}
	if msgs == nil {
		msgs = []history.Message{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.history.Clear(r.Context()); err != nil {
		log.Error().Err(err).Msg("Could not clear chat history")
		s.respondError(w, http.StatusInternalServerError, models.SafeErrorMessage)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}

	path, err := resolveIngestPath(s.config.IngestDir, req.Path)
	if err != nil {
		log.Warn().Err(err).Str("path", req.Path).Msg("Rejected ingest path")
		s.respondError(w, http.StatusBadRequest, "path must name a file inside the ingest directory")
		return
	}

	report, err := s.ingester.IngestFile(r.Context(), path, req.SourceID)
	resp := IngestResponse{SourceID: req.SourceID}
	if report != nil {
		resp = IngestResponse{
			SourceID:       report.SourceID,
			ChunksProduced: report.ChunksProduced,
			ChunksEmbedded: report.ChunksEmbedded,
			ChunksStored:   report.ChunksStored,
			ChunksFailed:   len(report.Failures),
			Partial:        report.Partial,
		}
	}
	if err != nil {
		log.Error().Err(err).Str("path", req.Path).Msg("Ingestion failed")
		resp.Error = "ingestion failed"
		s.respondJSON(w, http.StatusInternalServerError, resp)
		return
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

var errOutsideIngestDir = errors.New("path escapes the ingest directory")

// resolveIngestPath joins a client path onto dir and returns the real
// location of an existing regular file under dir. Absolute paths, ".."
// escapes and symlinks pointing out of dir are rejected.
func resolveIngestPath(dir, p string) (string, error) {
	if filepath.IsAbs(p) {
		return "", errOutsideIngestDir
	}
	base, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if base, err = filepath.EvalSymlinks(base); err != nil {
		return "", err
	}
	target, err := filepath.EvalSymlinks(filepath.Join(base, p))
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errOutsideIngestDir
	}
	info, err := os.Stat(target)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", errors.New("not a regular file")
	}
	return target, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Could not write response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}
