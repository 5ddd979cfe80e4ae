package model

import (
	"time"
)

// FrameType is the kind of a reply stream frame.
type FrameType string

const (
	FrameMessageID FrameType = "message_id"
	FrameDelta     FrameType = "delta"
	FrameDone      FrameType = "done"
	FrameError     FrameType = "error"
)

// Frame is one newline-delimited JSON object of a reply stream.
type Frame struct {
	Type      FrameType `json:"type"`
	MessageID int64     `json:"message_id,omitempty"`
	Content   string    `json:"content,omitempty"`
}

// MessageIDFrame announces the node the following frames belong to.
func MessageIDFrame(id int64) Frame {
	return Frame{Type: FrameMessageID, MessageID: id}
}

// DeltaFrame carries one incremental fragment.
func DeltaFrame(content string) Frame {
	return Frame{Type: FrameDelta, Content: content}
}

// DoneFrame marks successful completion.
func DoneFrame() Frame {
	return Frame{Type: FrameDone}
}

// ErrorFrame terminates a stream that failed after it started.
func ErrorFrame(description string) Frame {
	return Frame{Type: FrameError, Content: description}
}

// EventType represents the type of conversation event.
type EventType string

const (
	EventConversationCreated EventType = "conversation_created"
	EventConversationDeleted EventType = "conversation_deleted"
	EventMessageCreated      EventType = "message_created"
	EventReplyCompleted      EventType = "reply_completed"
	EventReplyFailed         EventType = "reply_failed"
	EventSummaryDerived      EventType = "summary_derived"
	EventTitleUpdated        EventType = "title_updated"
)

// ConversationEvent is published to the event log whenever the tree changes.
type ConversationEvent struct {
	ID             string         `json:"id"`
	ConversationID int64          `json:"conversation_id"`
	MessageID      int64          `json:"message_id,omitempty"`
	Type           EventType      `json:"type"`
	Reason         string         `json:"reason,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
