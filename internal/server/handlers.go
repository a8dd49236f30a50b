package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/learnix/learnix-server/internal/embedding"
	"github.com/learnix/learnix-server/internal/extract"
	"github.com/learnix/learnix-server/internal/history"
	"github.com/learnix/learnix-server/internal/retrieval"
	"github.com/learnix/learnix-server/internal/storage"
)

const (
	maxUploadBytes = 32 << 20
	defaultTopK    = 3
	maxTopK        = 20
)

type errorResponse struct {
	Error string `json:"error"`
}

type uploadResponse struct {
	Status       string `json:"status"`
	Filename     string `json:"filename"`
	ChunksStored int    `json:"chunks_stored"`
	Message      string `json:"message"`
}

type askResponse struct {
	Answer  string              `json:"answer"`
	Sources []string            `json:"sources"`
	Chunks  []storage.SearchHit `json:"chunks"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps pipeline errors onto HTTP status codes: bad input is the
// client's fault, an unreachable model or index is reported as such instead
// of masquerading as an empty result.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, retrieval.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, embedding.ErrModelUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "embedding model unavailable"})
	case errors.Is(err, storage.ErrBackendUnavailable):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "document index unavailable"})
	default:
		var upsertErr *storage.UpsertError
		if errors.As(err, &upsertErr) {
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: "failed to store document chunks"})
			return
		}
		s.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart form"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing file field"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read upload"})
		return
	}

	filename := filepath.Base(header.Filename)
	text, err := extract.Extract(filename, data)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedFormat) {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error: fmt.Sprintf("unsupported file format: %s", filepath.Ext(filename)),
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	result, err := s.pipeline.IngestDocument(r.Context(), filename, extract.Clean(text), nil)
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusOK
	if result.Status != "success" {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, uploadResponse{
		Status:       result.Status,
		Filename:     filename,
		ChunksStored: result.ChunkCount,
		Message:      result.Message,
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	question := r.FormValue("question")
	topK := defaultTopK
	if raw := r.FormValue("top_k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "top_k must be a positive integer"})
			return
		}
		topK = parsed
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	result, err := s.pipeline.AnswerQuery(r.Context(), question, topK)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !result.Found {
		// No matching chunks is a successful query, answered without
		// invoking the generator over empty context.
		writeJSON(w, http.StatusOK, askResponse{
			Answer:  "I couldn't find any relevant information to answer your question. Please make sure documents are uploaded.",
			Sources: []string{},
			Chunks:  []storage.SearchHit{},
		})
		return
	}

	contexts := make([]string, 0, len(result.Hits))
	sources := make([]string, 0, len(result.Hits))
	seen := make(map[string]bool)
	for _, hit := range result.Hits {
		contexts = append(contexts, hit.Text)
		if !seen[hit.Filename] {
			seen[hit.Filename] = true
			sources = append(sources, hit.Filename)
		}
	}

	text, err := s.generator.Generate(r.Context(), question, contexts)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if s.history != nil {
		if _, err := s.history.Add(r.Context(), question, text, sources); err != nil {
			s.logger.Warn("failed to log chat history", "error", err)
		}
	}

	chunks := result.Hits
	if chunks == nil {
		chunks = []storage.SearchHit{}
	}
	writeJSON(w, http.StatusOK, askResponse{
		Answer:  text,
		Sources: sources,
		Chunks:  chunks,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	filenames, err := s.pipeline.ListDocuments(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if filenames == nil {
		filenames = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": filenames,
		"count":     len(filenames),
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.pipeline.DeleteDocument(r.Context(), name); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("deleted %s", name),
	})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "chat history disabled"})
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	messages, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if messages == nil {
		messages = []history.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleClearChat(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "chat history disabled"})
		return
	}
	if err := s.history.Clear(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "chat history disabled"})
		return
	}
	deleted, err := s.history.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "message not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleChatStats(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "chat history disabled"})
		return
	}
	stats, err := s.history.GetStats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
