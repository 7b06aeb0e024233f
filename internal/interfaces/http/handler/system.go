package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/erp/retailcore/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// Version is the API version reported by /system/info
const Version = "1.0.0"

// Pinger checks a backing store
type Pinger func(ctx context.Context) error

// SystemHandler handles system-related API endpoints
type SystemHandler struct {
	BaseHandler
	name      string
	startTime time.Time
	pingers   map[string]Pinger
}

// NewSystemHandler creates a new SystemHandler. Each pinger is probed by the
// health endpoint under its map key.
func NewSystemHandler(name string, pingers map[string]Pinger) *SystemHandler {
	return &SystemHandler{
		name:      name,
		startTime: time.Now(),
		pingers:   pingers,
	}
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// GetSystemInfo returns the service name, version and uptime
//
// GET /system/info
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	info := SystemInfoResponse{
		Name:      h.name,
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(info))
}

// PingResponse represents the ping response
type PingResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Ping answers pong
//
// GET /system/ping
func (h *SystemHandler) Ping(c *gin.Context) {
	response := PingResponse{
		Message:   "pong",
		Timestamp: time.Now().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(response))
}

// HealthResponse reports the state of each dependency
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health probes every registered dependency. Any failing probe answers 503.
//
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Checks: make(map[string]string, len(h.pingers))}
	status := http.StatusOK
	for name, ping := range h.pingers {
		if err := ping(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	c.JSON(status, dto.NewSuccessResponse(resp))
}
