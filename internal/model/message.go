package model

import (
	"time"
)

// MaxSummaryLength is the maximum number of characters kept in a message summary.
const MaxSummaryLength = 255

// Message is one node of a conversation tree. Content is the user request;
// the answer produced for it, if any, lives in AssistantReply.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Content        string    `json:"content"`
	OrderIndex     int       `json:"order_index"`
	Summary        *string   `json:"summary"`
	ParentID       *int64    `json:"parent_id"`
	AssistantReply *string   `json:"assistant_reply"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsRoot reports whether the message has no parent.
func (m *Message) IsRoot() bool {
	return m.ParentID == nil
}

// HasReply reports whether a non-empty reply has been stored.
func (m *Message) HasReply() bool {
	return m.AssistantReply != nil && *m.AssistantReply != ""
}

// MessageUpdate carries the fields to change on a message. Nil fields are left alone.
type MessageUpdate struct {
	Content        *string `json:"content,omitempty"`
	OrderIndex     *int    `json:"orderIndex,omitempty"`
	Summary        *string `json:"summary,omitempty"`
	ParentID       *int64  `json:"parentId,omitempty"`
	AssistantReply *string `json:"assistantReply,omitempty"`
}

// IsEmpty reports whether no field is set.
func (u MessageUpdate) IsEmpty() bool {
	return u.Content == nil && u.OrderIndex == nil && u.Summary == nil &&
		u.ParentID == nil && u.AssistantReply == nil
}

// CreateMessageRequest is the request to add a message without asking for a reply.
type CreateMessageRequest struct {
	Content  string `json:"content"`
	ParentID *int64 `json:"parentId,omitempty"`
}

// ReplyRequest is the request to add a message and stream a reply for it.
type ReplyRequest struct {
	Content  string `json:"content"`
	ParentID *int64 `json:"parentId,omitempty"`
}
