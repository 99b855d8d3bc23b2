package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/points-bridge/internal/discord"
	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

// Pinger checks database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DiscordStatus reports the bridge connection. *discord.ConnectionManager
// implements it.
type DiscordStatus interface {
	Status() discord.Status
}

// FeedStats reports live feed subscribers. *feed.Hub implements it.
type FeedStats interface {
	Len() int
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo    Pinger
	discord DiscordStatus
	feed    FeedStats
}

// NewHealthHandler creates a health handler. A nil discord status reports
// the bridge as disabled.
func NewHealthHandler(repo Pinger, discord DiscordStatus) *HealthHandler {
	return &HealthHandler{repo: repo, discord: discord}
}

// WithFeed adds the live feed subscriber count to the report.
func (h *HealthHandler) WithFeed(f FeedStats) *HealthHandler {
	h.feed = f
	return h
}

// Health returns the health status of the API and its dependencies. Only the
// database makes the service unhealthy; a Discord outage degrades it.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "unhealthy"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.discord == nil {
		checks["discord"] = "disabled"
	} else {
		st := h.discord.Status()
		checks["discord"] = st.State
		status["discord"] = st
		if st.State != "ready" && statusCode == http.StatusOK {
			status["status"] = "degraded"
		}
	}

	if h.feed != nil {
		status["feed_subscribers"] = h.feed.Len()
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
