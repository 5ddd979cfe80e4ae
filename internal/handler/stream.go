package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/followchat/followchat/internal/middleware"
	"github.com/followchat/followchat/internal/model"
	"github.com/followchat/followchat/internal/service"
	"github.com/followchat/followchat/pkg/logger"
	"github.com/followchat/followchat/pkg/metrics"
)

// StreamHandler serves the streaming reply endpoint.
type StreamHandler struct {
	replies *service.ReplyService
	logger  *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(replies *service.ReplyService, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		replies: replies,
		logger:  log,
	}
}

// Reply handles POST /conversations/{id}/llm-reply. The response is one JSON
// frame per line, flushed as soon as it is produced.
func (h *StreamHandler) Reply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conversationID, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, h.logger, "reply", err)
		return
	}

	var req model.ReplyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, "reply", err)
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		respondError(w, r, h.logger, "reply", err)
		return
	}
	if err := middleware.ValidateID(req.ParentID, "parentId"); err != nil {
		respondError(w, r, h.logger, "reply", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	frames, err := h.replies.Reply(ctx, conversationID, req)
	if err != nil {
		respondError(w, r, h.logger, "reply", err)
		return
	}

	metrics.IncrementReplyStreams()
	defer metrics.DecrementReplyStreams()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for frame := range frames {
		if err := enc.Encode(frame); err != nil {
			// Returning cancels the request context, which stops the producer.
			h.logger.Info("reply client disconnected",
				zap.Int64("conversation_id", conversationID),
				zap.Error(err),
			)
			return
		}
		flusher.Flush()
	}
}
