package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/followchat/followchat/internal/model"
	"github.com/followchat/followchat/pkg/logger"
	"github.com/followchat/followchat/pkg/metrics"
)

const publishTimeout = 2 * time.Second

// EventPublisher appends conversation events to the event log.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error)
}

// NopPublisher drops every event. It is used when no event log is configured.
type NopPublisher struct{}

func (NopPublisher) PublishEvent(context.Context, *model.ConversationEvent) (uint64, error) {
	return 0, nil
}

// eventEmitter publishes events on a best-effort basis; failures are logged
// and never reach the caller.
type eventEmitter struct {
	publisher EventPublisher
	logger    *logger.Logger
}

func newEventEmitter(publisher EventPublisher, log *logger.Logger) eventEmitter {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return eventEmitter{publisher: publisher, logger: log}
}

func (e eventEmitter) emit(ctx context.Context, conversationID, messageID int64, eventType model.EventType, reason string, metadata map[string]any) {
	event := &model.ConversationEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		MessageID:      messageID,
		Type:           eventType,
		Reason:         reason,
		Metadata:       metadata,
		CreatedAt:      time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if _, err := e.publisher.PublishEvent(ctx, event); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(string(eventType), "error").Inc()
		e.logger.Warn("failed to publish conversation event",
			zap.String("event_type", string(eventType)),
			zap.Int64("conversation_id", conversationID),
			zap.Error(err),
		)
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(string(eventType), "success").Inc()
}
