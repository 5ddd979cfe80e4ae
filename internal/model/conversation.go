// Package model defines data structures for the conversation tree service.
package model

import (
	"time"
)

// DefaultConversationTitle is the placeholder title of a fresh conversation.
const DefaultConversationTitle = "新对话"

// MaxTitleLength is the maximum number of characters in a conversation title.
const MaxTitleLength = 255

// Conversation represents a conversation whose messages form a tree.
type Conversation struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// HasPlaceholderTitle reports whether the title was never set to something meaningful.
func (c *Conversation) HasPlaceholderTitle() bool {
	return c.Title == "" || c.Title == DefaultConversationTitle
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	Title *string `json:"title,omitempty"`
}

// UpdateConversationRequest is the request to update a conversation.
type UpdateConversationRequest struct {
	Title *string `json:"title,omitempty"`
}
