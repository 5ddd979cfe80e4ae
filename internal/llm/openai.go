package llm

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/followchat/followchat/pkg/metrics"
)

var tracer = otel.Tracer("followchat/llm")

// OpenAIClient is the client for OpenAI-compatible endpoints.
type OpenAIClient struct {
	api        *openai.Client
	opts       Options
	streamHTTP *http.Client
}

// NewOpenAIClient creates a client for the endpoint described by opts.
func NewOpenAIClient(opts Options) *OpenAIClient {
	opts = opts.withDefaults()

	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = opts.BaseURL
	cfg.HTTPClient = &http.Client{
		Timeout:   opts.Timeout,
		Transport: errorBodyTransport{base: http.DefaultTransport},
	}

	return &OpenAIClient{
		api:        openai.NewClientWithConfig(cfg),
		opts:       opts,
		streamHTTP: &http.Client{Transport: streamingTransport(opts.Timeout)},
	}
}

// Complete sends a buffered chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, messages []ChatMessage, temperature float64) (*Completion, error) {
	wire, err := normalize(messages)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "llm.complete", trace.WithAttributes(
		attribute.String("llm.model", c.opts.Model),
		attribute.Int("llm.messages", len(wire)),
	))
	defer span.End()

	body := &errorBody{}
	ctx = context.WithValue(ctx, errorBodyKey{}, body)

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.opts.Model,
		Messages:    wire,
		Temperature: wireTemperature(temperature),
	})
	if err != nil {
		metrics.RecordLLMRequest("complete", "error", time.Since(start).Seconds())
		uerr := toUpstreamError(err, body.raw)
		span.RecordError(uerr)
		span.SetStatus(codes.Error, uerr.Error())
		return nil, uerr
	}

	if len(resp.Choices) == 0 {
		metrics.RecordLLMRequest("complete", "error", time.Since(start).Seconds())
		uerr := &UpstreamError{StatusCode: http.StatusOK, Body: "response contained no choices"}
		span.SetStatus(codes.Error, uerr.Error())
		return nil, uerr
	}

	metrics.RecordLLMRequest("complete", "success", time.Since(start).Seconds())
	metrics.RecordLLMTokens(resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	span.SetAttributes(
		attribute.Int("llm.tokens_in", resp.Usage.PromptTokens),
		attribute.Int("llm.tokens_out", resp.Usage.CompletionTokens),
	)

	out := &Completion{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		Model:        resp.Model,
	}
	if resp.Usage.TotalTokens > 0 {
		out.Usage = &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return out, nil
}

// Stream prepares a streaming request. Nothing is sent until the returned
// stream is advanced.
func (c *OpenAIClient) Stream(ctx context.Context, messages []ChatMessage, temperature float64) (DeltaStream, error) {
	wire, err := normalize(messages)
	if err != nil {
		return nil, err
	}

	return &sseStream{
		ctx:    ctx,
		client: c.streamHTTP,
		url:    c.opts.BaseURL + "/chat/completions",
		apiKey: c.opts.APIKey,
		request: openai.ChatCompletionRequest{
			Model:       c.opts.Model,
			Messages:    wire,
			Temperature: wireTemperature(temperature),
			Stream:      true,
		},
	}, nil
}

// wireTemperature keeps an explicit zero on the wire; the request type drops
// zero values.
func wireTemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// toUpstreamError keeps the status and the provider's message. raw is the
// failed response body, which go-openai drops when it is not an OpenAI error
// document.
func toUpstreamError(err error, raw []byte) *UpstreamError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		uerr := &UpstreamError{StatusCode: reqErr.HTTPStatusCode, Err: err}
		if len(raw) > 0 {
			uerr.Body = errorMessage(raw)
		}
		return uerr
	}
	return &UpstreamError{Err: err}
}

type errorBodyKey struct{}

// errorBody receives the body of a non-success response.
type errorBody struct {
	raw []byte
}

// errorBodyTransport copies non-success response bodies into the errorBody
// carried by the request context, leaving the body readable for go-openai.
type errorBodyTransport struct {
	base http.RoundTripper
}

func (t errorBodyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode < http.StatusMultipleChoices {
		return resp, err
	}
	holder, ok := req.Context().Value(errorBodyKey{}).(*errorBody)
	if !ok {
		return resp, nil
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if len(raw) > maxErrorBody {
		holder.raw = raw[:maxErrorBody]
	} else {
		holder.raw = raw
	}
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	return resp, nil
}
