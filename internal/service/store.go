package service

import (
	"context"

	"github.com/followchat/followchat/internal/model"
)

// ConversationStore persists conversations.
type ConversationStore interface {
	CreateConversation(ctx context.Context, title string) (*model.Conversation, error)
	GetConversation(ctx context.Context, id int64) (*model.Conversation, error)
	ListConversations(ctx context.Context) ([]model.Conversation, error)
	UpdateConversationTitle(ctx context.Context, id int64, title string) (*model.Conversation, error)
	DeleteConversation(ctx context.Context, id int64) error
}

// MessageStore persists message trees.
type MessageStore interface {
	CreateMessage(ctx context.Context, conversationID int64, content string, parentID *int64) (*model.Message, error)
	GetMessage(ctx context.Context, id int64) (*model.Message, error)
	ListMessages(ctx context.Context, conversationID int64) ([]model.Message, error)
	LatestMessage(ctx context.Context, conversationID int64) (*model.Message, error)
	PathToRoot(ctx context.Context, messageID int64) ([]model.Message, error)
	UpdateMessage(ctx context.Context, id int64, upd model.MessageUpdate) (*model.Message, error)
	DeleteMessage(ctx context.Context, id int64) error
}

// ConfigStore persists the singleton LLM config.
type ConfigStore interface {
	GetLLMConfig(ctx context.Context) (*model.LLMConfig, error)
	UpsertLLMConfig(ctx context.Context, cfg model.LLMConfig) (*model.LLMConfig, error)
	InitLLMConfig(ctx context.Context, cfg model.LLMConfig) (bool, error)
}

// Store is everything the services need from persistence.
type Store interface {
	ConversationStore
	MessageStore
	ConfigStore
}
