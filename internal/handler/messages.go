package handler

import (
	"net/http"

	"github.com/followchat/followchat/internal/middleware"
	"github.com/followchat/followchat/internal/model"
	"github.com/followchat/followchat/internal/service"
	"github.com/followchat/followchat/pkg/logger"
)

// MessageHandler handles message tree endpoints.
type MessageHandler struct {
	service *service.MessageService
	logger  *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(svc *service.MessageService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		service: svc,
		logger:  log,
	}
}

// List handles GET /conversations/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	conversationID, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, h.logger, "list messages", err)
		return
	}

	msgs, err := h.service.List(r.Context(), conversationID)
	if err != nil {
		respondError(w, r, h.logger, "list messages", err)
		return
	}

	writeJSON(w, http.StatusOK, msgs)
}

// Create handles POST /conversations/{id}/messages
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	conversationID, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, h.logger, "create message", err)
		return
	}

	var req model.CreateMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, "create message", err)
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		respondError(w, r, h.logger, "create message", err)
		return
	}
	if err := middleware.ValidateID(req.ParentID, "parentId"); err != nil {
		respondError(w, r, h.logger, "create message", err)
		return
	}

	msg, err := h.service.Create(r.Context(), conversationID, &req)
	if err != nil {
		respondError(w, r, h.logger, "create message", err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// Get handles GET /messages/{id}
func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, h.logger, "get message", err)
		return
	}

	msg, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, "get message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// PathToRoot handles GET /messages/{id}/path-to-root
func (h *MessageHandler) PathToRoot(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, h.logger, "get message path", err)
		return
	}

	path, err := h.service.PathToRoot(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, "get message path", err)
		return
	}

	writeJSON(w, http.StatusOK, path)
}

// Update handles PATCH /messages/{id}
func (h *MessageHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, h.logger, "update message", err)
		return
	}

	var upd model.MessageUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		respondError(w, r, h.logger, "update message", err)
		return
	}
	if upd.Content != nil {
		if err := middleware.ValidateMessageContent(*upd.Content); err != nil {
			respondError(w, r, h.logger, "update message", err)
			return
		}
	}
	if err := middleware.ValidateID(upd.ParentID, "parentId"); err != nil {
		respondError(w, r, h.logger, "update message", err)
		return
	}

	msg, err := h.service.Update(r.Context(), id, upd)
	if err != nil {
		respondError(w, r, h.logger, "update message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// Delete handles DELETE /messages/{id}
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, h.logger, "delete message", err)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		respondError(w, r, h.logger, "delete message", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
