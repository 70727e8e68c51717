package handlers

import (
	"context"
	"net/http"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]Check{
		"store": runCheck(ctx, h.store.Ping),
	}
	if h.redis != nil {
		checks["redis"] = runCheck(ctx, func(ctx context.Context) error {
			return h.redis.Ping(ctx).Err()
		})
	}

	status := "healthy"
	statusCode := http.StatusOK
	for _, c := range checks {
		if c.Status != "pass" {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
	}

	h.JSON(w, statusCode, HealthResponse{
		Status:    status,
		Version:   version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func runCheck(ctx context.Context, ping func(context.Context) error) Check {
	start := time.Now()
	if err := ping(ctx); err != nil {
		return Check{Status: "fail", Message: "connection failed"}
	}
	return Check{Status: "pass", Latency: time.Since(start).String()}
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Root handles the root endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "fire-sync",
		Version: version,
	})
}
