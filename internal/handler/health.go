package handler

import (
	"net/http"
	"runtime"
	"time"

	"forgebot/internal/service"
	"forgebot/pkg/response"
)

// StartTime tracks when the server started for uptime calculation
var StartTime = time.Now()

// Handler contains the shared status endpoints.
type Handler struct {
	svc     *service.Service
	version string
}

// New creates a new handler.
func New(svc *service.Service, version string) *Handler {
	return &Handler{svc: svc, version: version}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// Health handles GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	}
	response.OK(w, resp)
}

// StatusResponse represents the monitoring status response.
type StatusResponse struct {
	Service       string  `json:"service"`
	Status        string  `json:"status"`
	Timestamp     string  `json:"timestamp"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	MemoryMB      float64 `json:"memory_mb"`
	ActiveEvent   string  `json:"active_event,omitempty"`
}

// Status handles GET /api/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	resp := StatusResponse{
		Service:       "forgebot",
		Status:        "ok",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(StartTime).Seconds()),
		MemoryMB:      float64(m.Alloc) / 1024 / 1024,
	}
	if res, err := h.svc.EventStatus(r.Context()); err == nil && res.Success {
		resp.ActiveEvent = res.Message
	}
	response.OK(w, resp)
}
