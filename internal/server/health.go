package server

import (
	"context"
	"net/http"
	"time"

	"github.com/learnix/learnix-server/internal/storage"
)

// healthResponse is the JSON body of the health endpoint.
type healthResponse struct {
	Status    string                   `json:"status"`
	Index     string                   `json:"index"`
	Stats     *storage.CollectionStats `json:"stats,omitempty"`
	Timestamp string                   `json:"timestamp"`
}

// handleHealth reports index connectivity. A stats failure means the backend
// is unreachable and the service is degraded, so it returns 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	response := healthResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	stats, err := s.pipeline.Stats(ctx)
	if err != nil {
		response.Status = "unhealthy"
		response.Index = "disconnected"
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	response.Status = "healthy"
	response.Index = "connected"
	response.Stats = stats
	writeJSON(w, http.StatusOK, response)
}
