package handler

import (
	"errors"
	"net/http"

	"github.com/followchat/followchat/internal/model"
	"github.com/followchat/followchat/internal/service"
	"github.com/followchat/followchat/pkg/logger"
)

// ConfigHandler exposes the singleton LLM config.
type ConfigHandler struct {
	service *service.ConfigService
	logger  *logger.Logger
}

// NewConfigHandler creates a new config handler.
func NewConfigHandler(svc *service.ConfigService, log *logger.Logger) *ConfigHandler {
	return &ConfigHandler{
		service: svc,
		logger:  log,
	}
}

// Get handles GET /config
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.Get(r.Context())
	if errors.Is(err, model.ErrConfigMissing) {
		writeError(w, http.StatusNotFound, "config not initialized")
		return
	}
	if err != nil {
		respondError(w, r, h.logger, "get config", err)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// Put handles PUT /config
func (h *ConfigHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateConfigRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, "update config", err)
		return
	}

	cfg, err := h.service.Update(r.Context(), &req)
	if err != nil {
		respondError(w, r, h.logger, "update config", err)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}
