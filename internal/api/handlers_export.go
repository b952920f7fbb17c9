package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/memes-airdrop/internal/models"
	"github.com/memes-airdrop/internal/worker"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	healthCheckTimeout  = 3 * time.Second
)

// ExportStatusResponse is the body of GET /api/export/status
type ExportStatusResponse struct {
	Scheduler     *worker.ExportSchedulerStatus `json:"scheduler"`
	PendingCount  *int64                        `json:"pendingCount,omitempty"`
	RecentBatches []*models.ExportBatch         `json:"recentBatches,omitempty"`
}

// handleExportStatus handles GET /api/export/status?limit=N
func (s *Server) handleExportStatus(w http.ResponseWriter, r *http.Request) {
	resp := ExportStatusResponse{Scheduler: s.scheduler.GetStatus()}

	if s.pending != nil {
		count, err := s.pending.CountEligible(r.Context())
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		resp.PendingCount = &count
	}

	if s.history != nil {
		limit := defaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 || parsed > maxHistoryLimit {
				respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be between 1 and 200", nil)
				return
			}
			limit = parsed
		}

		// History lives in the audit store; its absence does not fail the status call
		batches, err := s.history.ListRecent(r.Context(), limit)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to list recent export batches")
		} else {
			resp.RecentBatches = batches
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleExportRun handles POST /api/export/run
func (s *Server) handleExportRun(w http.ResponseWriter, r *http.Request) {
	err := s.scheduler.RunOnce(r.Context())
	switch {
	case err == nil:
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	case errors.Is(err, worker.ErrBusy):
		respondError(w, http.StatusConflict, ErrCodeExportBusy, err.Error(), nil)
	case errors.Is(err, worker.ErrNotRunning):
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, err.Error(), nil)
	default:
		respondServiceError(w, r, err)
	}
}

// handleHealth runs every dependency check and reports 503 if any fails
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	checks := make(map[string]string, len(s.healthChecks))

	for _, hc := range s.healthChecks {
		if err := hc.Check(ctx); err != nil {
			checks[hc.Name] = err.Error()
			status = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[hc.Name] = "ok"
	}

	respondJSON(w, code, map[string]interface{}{
		"status":  status,
		"service": "memes-airdrop-exporter",
		"checks":  checks,
	})
}
