// Package handler provides HTTP handlers for the API.
package handler

import (
	"fmt"
	"net/http"

	"github.com/followchat/followchat/internal/middleware"
	"github.com/followchat/followchat/internal/model"
	"github.com/followchat/followchat/internal/service"
	"github.com/followchat/followchat/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  log,
	}
}

// Create handles POST /conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateConversationRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, "create conversation", err)
		return
	}

	if req.Title != nil {
		if err := middleware.ValidateTitle(*req.Title); err != nil {
			respondError(w, r, h.logger, "create conversation", err)
			return
		}
	}

	conv, err := h.service.Create(r.Context(), &req)
	if err != nil {
		respondError(w, r, h.logger, "create conversation", err)
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

// List handles GET /conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	convs, err := h.service.List(r.Context())
	if err != nil {
		respondError(w, r, h.logger, "list conversations", err)
		return
	}

	writeJSON(w, http.StatusOK, convs)
}

// Get handles GET /conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, h.logger, "get conversation", err)
		return
	}

	conv, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, "get conversation", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Update handles PATCH /conversations/{id}
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, h.logger, "update conversation", err)
		return
	}

	var req model.UpdateConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, "update conversation", err)
		return
	}
	if req.Title == nil {
		respondError(w, r, h.logger, "update conversation", fmt.Errorf("at least one field must be provided: %w", model.ErrInvalidInput))
		return
	}
	if err := middleware.ValidateTitle(*req.Title); err != nil {
		respondError(w, r, h.logger, "update conversation", err)
		return
	}

	conv, err := h.service.Update(r.Context(), id, &req)
	if err != nil {
		respondError(w, r, h.logger, "update conversation", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Delete handles DELETE /conversations/{id}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, h.logger, "delete conversation", err)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		respondError(w, r, h.logger, "delete conversation", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
