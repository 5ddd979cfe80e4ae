package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/followchat/followchat/internal/model"
	"github.com/followchat/followchat/pkg/logger"
	"github.com/followchat/followchat/pkg/metrics"
)

// MessageService handles message tree operations that do not involve the LLM.
type MessageService struct {
	conversations ConversationStore
	messages      MessageStore
	events        eventEmitter
	logger        *logger.Logger
}

// NewMessageService creates a new message service.
func NewMessageService(conversations ConversationStore, messages MessageStore, publisher EventPublisher, log *logger.Logger) *MessageService {
	return &MessageService{
		conversations: conversations,
		messages:      messages,
		events:        newEventEmitter(publisher, log),
		logger:        log,
	}
}

// Create adds a message to a conversation without requesting a reply.
func (s *MessageService) Create(ctx context.Context, conversationID int64, req *model.CreateMessageRequest) (*model.Message, error) {
	if req == nil || strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("content is required: %w", model.ErrInvalidInput)
	}
	if _, err := s.conversations.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	msg, err := s.messages.CreateMessage(ctx, conversationID, req.Content, req.ParentID)
	if err != nil {
		return nil, err
	}

	metrics.MessagesTotal.Inc()
	s.logger.Debug("message created",
		zap.Int64("conversation_id", conversationID),
		zap.Int64("message_id", msg.ID),
		zap.Int("order_index", msg.OrderIndex),
	)
	s.events.emit(ctx, conversationID, msg.ID, model.EventMessageCreated, "", nil)

	return msg, nil
}

// List returns the messages of a conversation by creation order.
func (s *MessageService) List(ctx context.Context, conversationID int64) ([]model.Message, error) {
	if _, err := s.conversations.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.messages.ListMessages(ctx, conversationID)
}

// Get retrieves a message by ID.
func (s *MessageService) Get(ctx context.Context, id int64) (*model.Message, error) {
	return s.messages.GetMessage(ctx, id)
}

// PathToRoot returns the ancestors of a message, root first, ending with it.
func (s *MessageService) PathToRoot(ctx context.Context, id int64) ([]model.Message, error) {
	return s.messages.PathToRoot(ctx, id)
}

// Update applies a partial update to a message.
func (s *MessageService) Update(ctx context.Context, id int64, upd model.MessageUpdate) (*model.Message, error) {
	if upd.Content != nil && strings.TrimSpace(*upd.Content) == "" {
		return nil, fmt.Errorf("content must not be empty: %w", model.ErrInvalidInput)
	}
	if upd.Summary != nil {
		summary := truncateRunes(*upd.Summary, model.MaxSummaryLength)
		upd.Summary = &summary
	}
	return s.messages.UpdateMessage(ctx, id, upd)
}

// Delete removes a message and its descendants.
func (s *MessageService) Delete(ctx context.Context, id int64) error {
	if err := s.messages.DeleteMessage(ctx, id); err != nil {
		return err
	}
	s.logger.Debug("message deleted", zap.Int64("message_id", id))
	return nil
}
