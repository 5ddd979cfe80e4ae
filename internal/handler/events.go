package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/followchat/followchat/internal/model"
	"github.com/followchat/followchat/pkg/logger"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 200
)

// EventReader replays the conversation event log.
type EventReader interface {
	ListEvents(ctx context.Context, conversationID int64, afterSequence uint64, limit int) ([]model.ConversationEvent, uint64, error)
}

// EventsResponse is a page of conversation events.
type EventsResponse struct {
	Events       []model.ConversationEvent `json:"events"`
	LastSequence uint64                    `json:"last_sequence"`
	HasMore      bool                      `json:"has_more"`
}

// EventHandler serves the conversation event log.
type EventHandler struct {
	reader EventReader
	logger *logger.Logger
}

// NewEventHandler creates a new event handler. A nil reader means the event
// log is disabled.
func NewEventHandler(reader EventReader, log *logger.Logger) *EventHandler {
	return &EventHandler{
		reader: reader,
		logger: log,
	}
}

// List handles GET /conversations/{id}/events
// Supports ?after_sequence=N for resuming and ?limit=N.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusServiceUnavailable, "event log disabled")
		return
	}

	conversationID, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, h.logger, "list events", err)
		return
	}

	var afterSequence uint64
	if seqStr := r.URL.Query().Get("after_sequence"); seqStr != "" {
		if seq, err := strconv.ParseUint(seqStr, 10, 64); err == nil {
			afterSequence = seq
		}
	}

	limit := defaultEventLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxEventLimit {
			limit = parsed
		}
	}

	events, lastSequence, err := h.reader.ListEvents(r.Context(), conversationID, afterSequence, limit)
	if err != nil {
		respondError(w, r, h.logger, "list events", err)
		return
	}
	if events == nil {
		events = []model.ConversationEvent{}
	}

	writeJSON(w, http.StatusOK, EventsResponse{
		Events:       events,
		LastSequence: lastSequence,
		HasMore:      len(events) == limit,
	})
}
