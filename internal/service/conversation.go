// Package service holds the business logic of the conversation tree service.
package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/followchat/followchat/internal/model"
	"github.com/followchat/followchat/pkg/logger"
	"github.com/followchat/followchat/pkg/metrics"
)

// ConversationService handles conversation operations.
type ConversationService struct {
	store  ConversationStore
	events eventEmitter
	logger *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(store ConversationStore, publisher EventPublisher, log *logger.Logger) *ConversationService {
	return &ConversationService{
		store:  store,
		events: newEventEmitter(publisher, log),
		logger: log,
	}
}

// Create creates a new conversation. A missing or blank title becomes the placeholder.
func (s *ConversationService) Create(ctx context.Context, req *model.CreateConversationRequest) (*model.Conversation, error) {
	title := model.DefaultConversationTitle
	if req != nil && req.Title != nil && strings.TrimSpace(*req.Title) != "" {
		title = strings.TrimSpace(*req.Title)
	}
	if err := checkTitle(title); err != nil {
		return nil, err
	}

	conv, err := s.store.CreateConversation(ctx, title)
	if err != nil {
		return nil, err
	}

	metrics.ConversationsTotal.Inc()
	s.logger.Info("conversation created", zap.Int64("conversation_id", conv.ID))
	s.events.emit(ctx, conv.ID, 0, model.EventConversationCreated, "", map[string]any{"title": conv.Title})

	return conv, nil
}

// Get retrieves a conversation by ID.
func (s *ConversationService) Get(ctx context.Context, id int64) (*model.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// List returns all conversations, newest first.
func (s *ConversationService) List(ctx context.Context) ([]model.Conversation, error) {
	return s.store.ListConversations(ctx)
}

// Update changes the title of a conversation.
func (s *ConversationService) Update(ctx context.Context, id int64, req *model.UpdateConversationRequest) (*model.Conversation, error) {
	if req == nil || req.Title == nil {
		return nil, fmt.Errorf("title is required: %w", model.ErrInvalidInput)
	}
	title := strings.TrimSpace(*req.Title)
	if title == "" {
		return nil, fmt.Errorf("title must not be empty: %w", model.ErrInvalidInput)
	}
	if err := checkTitle(title); err != nil {
		return nil, err
	}

	conv, err := s.store.UpdateConversationTitle(ctx, id, title)
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, conv.ID, 0, model.EventTitleUpdated, "manual", map[string]any{"title": conv.Title})
	return conv, nil
}

// Delete removes a conversation and all of its messages.
func (s *ConversationService) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteConversation(ctx, id); err != nil {
		return err
	}

	s.logger.Info("conversation deleted", zap.Int64("conversation_id", id))
	s.events.emit(ctx, id, 0, model.EventConversationDeleted, "", nil)
	return nil
}

func checkTitle(title string) error {
	if utf8.RuneCountInString(title) > model.MaxTitleLength {
		return fmt.Errorf("title exceeds %d characters: %w", model.MaxTitleLength, model.ErrInvalidInput)
	}
	return nil
}

// truncateRunes cuts s to at most n characters.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
