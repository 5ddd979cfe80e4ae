package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/followchat/followchat/pkg/metrics"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
	maxErrorBody = 4 << 10
)

var (
	transportsMu sync.Mutex
	transports   = map[time.Duration]*http.Transport{}
)

// streamingTransport bounds dialing and waiting for response headers, but not
// reading the body, which stays open for as long as the provider streams.
// Transports are shared per timeout so per-request clients reuse connections.
func streamingTransport(timeout time.Duration) *http.Transport {
	transportsMu.Lock()
	defer transportsMu.Unlock()

	if t, ok := transports[timeout]; ok {
		return t
	}
	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	transports[timeout] = t
	return t
}

// sseStream reads "data:" frames from a chat completion stream.
type sseStream struct {
	ctx     context.Context
	client  *http.Client
	url     string
	apiKey  string
	request openai.ChatCompletionRequest

	started bool
	closed  bool
	body    io.ReadCloser
	reader  *bufio.Reader
	current string
	err     error

	span      trace.Span
	startedAt time.Time
	fragments int
}

func (s *sseStream) Next() bool {
	if s.closed || s.err != nil {
		return false
	}
	if !s.started {
		s.started = true
		if err := s.open(); err != nil {
			s.fail(err)
			return false
		}
	}

	for {
		line, readErr := s.reader.ReadString('\n')

		if fragment, ok, done := parseLine(line); done {
			s.finish()
			return false
		} else if ok {
			s.current = fragment
			s.fragments++
			return true
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				s.finish()
				return false
			}
			s.fail(&UpstreamError{Err: readErr})
			return false
		}
	}
}

func (s *sseStream) Current() string {
	return s.current
}

func (s *sseStream) Err() error {
	return s.err
}

// Close releases the response body. It is safe to call more than once and
// before the stream was started.
func (s *sseStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.span != nil {
		s.span.End()
	}
	if s.body != nil {
		return s.body.Close()
	}
	return nil
}

func (s *sseStream) open() error {
	payload, err := json.Marshal(s.request)
	if err != nil {
		return err
	}

	s.startedAt = time.Now()
	ctx, span := tracer.Start(s.ctx, "llm.stream", trace.WithAttributes(
		attribute.String("llm.model", s.request.Model),
		attribute.Int("llm.messages", len(s.request.Messages)),
	))
	s.span = span

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return &UpstreamError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &UpstreamError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamError{StatusCode: resp.StatusCode, Body: errorMessage(raw)}
	}

	s.body = resp.Body
	s.reader = bufio.NewReader(resp.Body)
	return nil
}

func (s *sseStream) finish() {
	if s.span != nil {
		s.span.SetAttributes(attribute.Int("llm.fragments", s.fragments))
	}
	metrics.RecordLLMRequest("stream", "success", time.Since(s.startedAt).Seconds())
	_ = s.Close()
}

func (s *sseStream) fail(err error) {
	s.err = err
	if s.span != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	if !s.startedAt.IsZero() {
		metrics.RecordLLMRequest("stream", "error", time.Since(s.startedAt).Seconds())
	}
	_ = s.Close()
}

// parseLine extracts the delta of one SSE line. ok is false for lines that
// carry no text: comments, other fields, empty deltas and malformed JSON.
// done is true for the terminal sentinel.
func parseLine(line string) (fragment string, ok bool, done bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false, false
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if data == doneSentinel {
		return "", false, true
	}
	if data == "" {
		return "", false, false
	}

	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", false, false
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return "", false, false
	}
	return chunk.Choices[0].Delta.Content, true, false
}

// errorMessage prefers the provider's error message over the raw body.
func errorMessage(raw []byte) string {
	var resp openai.ErrorResponse
	if err := json.Unmarshal(raw, &resp); err == nil && resp.Error != nil && resp.Error.Message != "" {
		return resp.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
