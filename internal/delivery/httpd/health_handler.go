package httpd

import (
	"context"
	"net/http"
	"time"

	"github.com/scholarr/plagiarism-service/internal/models"
)

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"service":   "plagiarism-service",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) GetServiceStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := models.HealthCheckResponse{
		Status:    "healthy",
		Database:  true,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}

	if err := h.reportService.Ping(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("Database ping failed")
		response.Status = "degraded"
		response.Database = false
	}

	if h.broker != nil {
		response.Broker = !h.broker.IsClosed()
		if !response.Broker {
			response.Status = "degraded"
		}
	}

	if h.workerStats != nil {
		stats := h.workerStats.GetStats()
		response.ActiveWorkers = stats.ActiveWorkers
		response.QueueLength = stats.QueueLength
	}

	status := http.StatusOK
	if !response.Database {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}
