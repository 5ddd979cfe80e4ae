package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	natsclient "github.com/followchat/followchat/internal/nats"
	"github.com/followchat/followchat/pkg/logger"
)

const readyTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db         Pinger
	natsClient *natsclient.Client
	logger     *logger.Logger
}

// NewHealthHandler creates a new health handler. natsClient may be nil when
// event publishing is disabled.
func NewHealthHandler(db Pinger, natsClient *natsclient.Client, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		db:         db,
		natsClient: natsClient,
		logger:     log,
	}
}

// Root handles GET /
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "FollowChat API running",
	})
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed", zap.String("dependency", "database"), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database unreachable",
		})
		return
	}

	if h.natsClient != nil && !h.natsClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
