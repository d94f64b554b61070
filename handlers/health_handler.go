package handlers

import (
	"context"
	"net/http"
	"time"

	"deadstock/cache"
	"deadstock/database"
	"deadstock/utils"
)

// HealthCheckResponse represents health check status
type HealthCheckResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database,omitempty"`
	Redis     string    `json:"redis,omitempty"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime,omitempty"`
}

const Version = "1.0.0"

var startTime = time.Now()

// HealthCheck pings MongoDB and, when configured, Redis. A failed Redis ping
// degrades the status but the API keeps serving without the cache.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthCheckResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   Version,
		Uptime:    time.Since(startTime).Round(time.Second).String(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if database.Client != nil {
		if err := database.Client.Ping(ctx, nil); err != nil {
			response.Status = "unhealthy"
			response.Database = "disconnected"
		} else {
			response.Database = "connected"
		}
	}

	if cache.Default.Enabled() {
		if err := cache.Default.Ping(ctx); err != nil {
			response.Redis = "disconnected"
			if response.Status == "healthy" {
				response.Status = "degraded"
			}
		} else {
			response.Redis = "connected"
		}
	} else {
		response.Redis = "disabled"
	}

	status := http.StatusOK
	if response.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	utils.RespondWithJSON(w, status, response)
}
