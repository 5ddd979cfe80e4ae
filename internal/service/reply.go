package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/followchat/followchat/internal/llm"
	"github.com/followchat/followchat/internal/model"
	"github.com/followchat/followchat/pkg/logger"
	"github.com/followchat/followchat/pkg/metrics"
)

const (
	frameBuffer = 16

	branchCanned   = "canned"
	branchUpstream = "upstream"

	upstreamFailurePrefix = "LLM 请求失败: "
	storageFailureMessage = "保存回复失败"
)

var tracer = otel.Tracer("followchat/service")

// ConfigReader resolves the current LLM config.
type ConfigReader interface {
	Get(ctx context.Context) (*model.LLMConfig, error)
}

// ClientFactory builds the upstream client for a resolved config.
type ClientFactory func(cfg *model.LLMConfig) llm.Client

// NewOpenAIClientFactory returns a factory for OpenAI-compatible endpoints
// with the given per-call timeout.
func NewOpenAIClientFactory(timeout time.Duration) ClientFactory {
	return func(cfg *model.LLMConfig) llm.Client {
		return llm.NewOpenAIClient(llm.Options{
			BaseURL: cfg.Base(),
			APIKey:  cfg.Key(),
			Model:   cfg.ModelName,
			Timeout: timeout,
		})
	}
}

// ReplyService turns a user message into a persisted node, a live stream of
// reply frames, a persisted answer and derived metadata.
type ReplyService struct {
	conversations ConversationStore
	messages      MessageStore
	configs       ConfigReader
	newClient     ClientFactory
	events        eventEmitter
	logger        *logger.Logger

	wg sync.WaitGroup
}

// NewReplyService creates a new reply service.
func NewReplyService(
	conversations ConversationStore,
	messages MessageStore,
	configs ConfigReader,
	newClient ClientFactory,
	publisher EventPublisher,
	log *logger.Logger,
) *ReplyService {
	return &ReplyService{
		conversations: conversations,
		messages:      messages,
		configs:       configs,
		newClient:     newClient,
		events:        newEventEmitter(publisher, log),
		logger:        log,
	}
}

// replyRun is the state of one reply request after admission.
type replyRun struct {
	conversation *model.Conversation
	message      *model.Message
	content      string
	config       *model.LLMConfig
	client       llm.Client
	log          *logger.Logger
}

// Reply admits the request and persists the user message, then streams the
// reply on the returned channel. Errors returned here happen before any frame;
// later failures arrive as an error frame. The channel is closed after the
// terminal frame, or early if ctx ends.
func (s *ReplyService) Reply(ctx context.Context, conversationID int64, req model.ReplyRequest) (<-chan model.Frame, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("content is required: %w", model.ErrInvalidInput)
	}

	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	cfg, err := s.configs.Get(ctx)
	if err != nil {
		return nil, err
	}

	parentID := req.ParentID
	if parentID == nil {
		latest, err := s.messages.LatestMessage(ctx, conversationID)
		switch {
		case err == nil:
			parentID = &latest.ID
		case !errors.Is(err, model.ErrNotFound):
			return nil, err
		}
	}

	msg, err := s.messages.CreateMessage(ctx, conversationID, req.Content, parentID)
	if err != nil {
		return nil, err
	}
	metrics.MessagesTotal.Inc()
	s.events.emit(ctx, conversationID, msg.ID, model.EventMessageCreated, "", nil)

	run := &replyRun{
		conversation: conv,
		message:      msg,
		content:      req.Content,
		config:       cfg,
		log: s.logger.WithRequest(logger.CorrelationID(ctx), conversationID).
			With(zap.Int64("message_id", msg.ID)),
	}

	frames := make(chan model.Frame, frameBuffer)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, run, frames)
	}()

	return frames, nil
}

// Wait blocks until every reply, including its summary and title
// derivation, has finished.
func (s *ReplyService) Wait() {
	s.wg.Wait()
}

func (s *ReplyService) run(ctx context.Context, run *replyRun, frames chan<- model.Frame) {
	ctx, span := tracer.Start(ctx, "reply", trace.WithAttributes(
		attribute.Int64("conversation.id", run.conversation.ID),
		attribute.Int64("message.id", run.message.ID),
	))
	defer span.End()

	closed := false
	closeFrames := func() {
		if !closed {
			closed = true
			close(frames)
		}
	}
	defer closeFrames()

	send := func(f model.Frame) bool {
		select {
		case frames <- f:
			return true
		case <-ctx.Done():
			return false
		}
	}

	branch := branchUpstream
	if IsIdentityQuestion(run.content) {
		branch = branchCanned
	}
	span.SetAttributes(attribute.String("reply.branch", branch))

	if !send(model.MessageIDFrame(run.message.ID)) {
		s.abandon(run, branch)
		return
	}

	if branch == branchCanned {
		s.replyCanned(ctx, run, send)
		return
	}

	run.client = s.newClient(run.config)

	text, err := s.relay(ctx, run, send)
	if ctx.Err() != nil {
		s.abandon(run, branchUpstream)
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream stream failed")
		s.fail(ctx, run, err, send)
		return
	}

	if !s.finalize(ctx, run, branchUpstream, text, send) {
		return
	}
	closeFrames()

	s.derive(context.WithoutCancel(ctx), run)
}

// replyCanned streams the fixed identity answer one character at a time.
func (s *ReplyService) replyCanned(ctx context.Context, run *replyRun, send func(model.Frame) bool) {
	for _, r := range IdentityAnswer {
		if !send(model.DeltaFrame(string(r))) {
			s.abandon(run, branchCanned)
			return
		}
	}
	s.finalize(ctx, run, branchCanned, IdentityAnswer, send)
}

// relay forwards upstream fragments in arrival order and returns the
// trimmed accumulated text.
func (s *ReplyService) relay(ctx context.Context, run *replyRun, send func(model.Frame) bool) (string, error) {
	path, err := s.messages.PathToRoot(ctx, run.message.ID)
	if err != nil {
		return "", err
	}

	stream, err := run.client.Stream(ctx, buildPrompt(path), run.config.Temperature)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var reply strings.Builder
	for stream.Next() {
		fragment := stream.Current()
		reply.WriteString(fragment)
		if !send(model.DeltaFrame(fragment)) {
			return "", ctx.Err()
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(reply.String()), nil
}

// finalize stores the reply and then sends the done frame. A failed write
// sends an error frame instead.
func (s *ReplyService) finalize(ctx context.Context, run *replyRun, branch, text string, send func(model.Frame) bool) bool {
	if ctx.Err() != nil {
		s.abandon(run, branch)
		return false
	}

	// The caller may leave while the write is in flight; the write still lands.
	if _, err := s.messages.UpdateMessage(context.WithoutCancel(ctx), run.message.ID, model.MessageUpdate{AssistantReply: &text}); err != nil {
		run.log.Error("failed to persist reply", zap.Error(err))
		metrics.RecordReply(branch, "storage_error")
		send(model.ErrorFrame(storageFailureMessage))
		return false
	}

	send(model.DoneFrame())
	metrics.RecordReply(branch, "success")
	run.log.Info("reply completed", zap.String("branch", branch), zap.Int("reply_chars", len([]rune(text))))
	s.events.emit(ctx, run.conversation.ID, run.message.ID, model.EventReplyCompleted, branch, nil)
	return true
}

func (s *ReplyService) fail(ctx context.Context, run *replyRun, err error, send func(model.Frame) bool) {
	description := upstreamFailurePrefix + err.Error()
	if errors.Is(err, model.ErrStorage) {
		description = storageFailureMessage
	}

	run.log.Warn("upstream reply failed", zap.Error(err))
	metrics.RecordReply(branchUpstream, "error")
	send(model.ErrorFrame(description))
	s.events.emit(ctx, run.conversation.ID, run.message.ID, model.EventReplyFailed, err.Error(), nil)
}

func (s *ReplyService) abandon(run *replyRun, branch string) {
	run.log.Info("caller went away, reply abandoned", zap.String("branch", branch))
	metrics.RecordReply(branch, "cancelled")
}

// derive stores a short summary of the user message and, for the first
// message of an untitled conversation, uses it as the title.
func (s *ReplyService) derive(ctx context.Context, run *replyRun) {
	ctx, span := tracer.Start(ctx, "reply.derive", trace.WithAttributes(
		attribute.Int64("message.id", run.message.ID),
	))
	defer span.End()

	summary, err := s.deriveSummary(ctx, run)
	if err != nil {
		span.RecordError(err)
		run.log.Error("failed to persist summary", zap.Error(err))
		return
	}

	if err := s.deriveTitle(ctx, run, summary); err != nil {
		span.RecordError(err)
		run.log.Error("failed to update title", zap.Error(err))
	}
}

// deriveSummary returns the stored summary, or "" when the model gave none.
// Upstream failures are swallowed; only storage failures are returned.
func (s *ReplyService) deriveSummary(ctx context.Context, run *replyRun) (string, error) {
	resp, err := run.client.Complete(ctx, []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: SummaryPrompt},
		{Role: llm.RoleUser, Content: run.content},
	}, SummaryTemperature)
	if err != nil {
		metrics.SummaryFailuresTotal.Inc()
		run.log.Warn("summary derivation failed", zap.Error(err))
		return "", nil
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", nil
	}
	summary = truncateRunes(summary, model.MaxSummaryLength)

	if _, err := s.messages.UpdateMessage(ctx, run.message.ID, model.MessageUpdate{Summary: &summary}); err != nil {
		return "", err
	}
	s.events.emit(ctx, run.conversation.ID, run.message.ID, model.EventSummaryDerived, "", map[string]any{"summary": summary})
	return summary, nil
}

func (s *ReplyService) deriveTitle(ctx context.Context, run *replyRun, summary string) error {
	if run.message.OrderIndex != 0 {
		return nil
	}

	conv, err := s.conversations.GetConversation(ctx, run.conversation.ID)
	if err != nil {
		return err
	}
	if !conv.HasPlaceholderTitle() {
		return nil
	}

	candidate := summary
	if candidate == "" {
		candidate = strings.TrimSpace(run.content)
	}
	if candidate == "" {
		return nil
	}
	title := truncateRunes(candidate, model.MaxTitleLength)

	if _, err := s.conversations.UpdateConversationTitle(ctx, conv.ID, title); err != nil {
		return err
	}
	run.log.Info("conversation titled", zap.String("title", title))
	s.events.emit(ctx, conv.ID, run.message.ID, model.EventTitleUpdated, "derived", map[string]any{"title": title})
	return nil
}

// buildPrompt turns the root-first path into chat turns: the system
// instruction, then each node as a user turn followed by its stored answer.
func buildPrompt(path []model.Message) []llm.ChatMessage {
	prompt := make([]llm.ChatMessage, 0, 1+2*len(path))
	prompt = append(prompt, llm.ChatMessage{Role: llm.RoleSystem, Content: AssistantSystemPrompt})
	for _, m := range path {
		prompt = append(prompt, llm.ChatMessage{Role: llm.RoleUser, Content: m.Content})
		if m.HasReply() {
			prompt = append(prompt, llm.ChatMessage{Role: llm.RoleAssistant, Content: *m.AssistantReply})
		}
	}
	return prompt
}
