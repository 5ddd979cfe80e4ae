// Package llm talks to an OpenAI-compatible chat completion endpoint.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/followchat/followchat/internal/model"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "https://api.openai.com/v1"

// DefaultTimeout bounds each upstream HTTP call when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// ChatMessage is one turn of a prompt.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token counts when the provider returns them.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the result of a buffered request.
type Completion struct {
	Content      string
	FinishReason string
	Model        string
	Usage        *Usage
}

// DeltaStream is a lazy, finite sequence of text fragments. The upstream
// request is sent on the first call to Next, and transport failures are
// reported by Err once Next returns false. A stream cannot be restarted.
type DeltaStream interface {
	Next() bool
	Current() string
	Err() error
	Close() error
}

// Client is the interface for the upstream chat endpoint.
type Client interface {
	// Complete sends the messages and waits for the whole answer.
	Complete(ctx context.Context, messages []ChatMessage, temperature float64) (*Completion, error)

	// Stream sends the messages with streaming enabled.
	Stream(ctx context.Context, messages []ChatMessage, temperature float64) (DeltaStream, error)
}

// Options configures a client for a single endpoint.
type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	o.BaseURL = strings.TrimRight(strings.TrimSpace(o.BaseURL), "/")
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// UpstreamError reports a failed call to the endpoint: a non-success status,
// a transport failure or an unusable response.
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("upstream returned status %d: %v", e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("upstream request failed: %v", e.Err)
	default:
		return "upstream request failed"
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// normalize checks every message carries a role and content and converts
// them to the wire type.
func normalize(messages []ChatMessage) ([]openai.ChatCompletionMessage, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages to send: %w", model.ErrInvalidInput)
	}
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		if strings.TrimSpace(msg.Role) == "" {
			return nil, fmt.Errorf("message %d has no role: %w", i, model.ErrInvalidInput)
		}
		if msg.Content == "" {
			return nil, fmt.Errorf("message %d has no content: %w", i, model.ErrInvalidInput)
		}
		out[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return out, nil
}
