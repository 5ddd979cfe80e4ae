package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/followchat/followchat/internal/llm"
	"github.com/followchat/followchat/internal/model"
	"github.com/followchat/followchat/internal/service"
	"github.com/followchat/followchat/internal/store"
	"github.com/followchat/followchat/pkg/logger"
)

type sliceStream struct {
	fragments []string
	pos       int
}

func (s *sliceStream) Next() bool {
	if s.pos >= len(s.fragments) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceStream) Current() string { return s.fragments[s.pos-1] }
func (s *sliceStream) Err() error      { return nil }
func (s *sliceStream) Close() error    { return nil }

type stubClient struct {
	fragments []string
	summary   string
}

func (c *stubClient) Complete(context.Context, []llm.ChatMessage, float64) (*llm.Completion, error) {
	return &llm.Completion{Content: c.summary}, nil
}

func (c *stubClient) Stream(context.Context, []llm.ChatMessage, float64) (llm.DeltaStream, error) {
	return &sliceStream{fragments: c.fragments}, nil
}

type stubEventReader struct {
	events []model.ConversationEvent
	after  uint64
	limit  int
}

func (r *stubEventReader) ListEvents(_ context.Context, _ int64, afterSequence uint64, limit int) ([]model.ConversationEvent, uint64, error) {
	r.after = afterSequence
	r.limit = limit
	return r.events, afterSequence + uint64(len(r.events)), nil
}

type testAPI struct {
	router  http.Handler
	store   *store.Store
	configs *service.ConfigService
	replies *service.ReplyService
}

func newTestAPI(t *testing.T, client llm.Client, events EventReader) *testAPI {
	t.Helper()

	st, err := store.Open(store.Options{
		Driver: store.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "api.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	log := logger.NewNop()
	configs := service.NewConfigService(st, 0, log)
	replies := service.NewReplyService(st, st, configs,
		func(*model.LLMConfig) llm.Client { return client },
		service.NopPublisher{}, log)

	router := NewRouter(Handlers{
		Health:        NewHealthHandler(st, nil, log),
		Conversations: NewConversationHandler(service.NewConversationService(st, nil, log), log),
		Messages:      NewMessageHandler(service.NewMessageService(st, st, nil, log), log),
		Stream:        NewStreamHandler(replies, log),
		Config:        NewConfigHandler(configs, log),
		Events:        NewEventHandler(events, log),
	}, RouterOptions{RateLimitRequests: 100, RateLimitWindow: time.Minute}, log)

	return &testAPI{router: router, store: st, configs: configs, replies: replies}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func readFrames(t *testing.T, rec *httptest.ResponseRecorder) []model.Frame {
	t.Helper()
	var frames []model.Frame
	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	for scanner.Scan() {
		var f model.Frame
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &f), scanner.Text())
		frames = append(frames, f)
	}
	return frames
}

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t, &stubClient{}, nil)

	rec := api.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "FollowChat API running", decodeBody[map[string]string](t, rec)["message"])

	rec = api.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, rec)["status"])

	rec = api.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decodeBody[map[string]string](t, rec)["status"])
}

func TestConversationEndpoints(t *testing.T) {
	api := newTestAPI(t, &stubClient{}, nil)

	rec := api.do(t, http.MethodPost, "/conversations", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	conv := decodeBody[model.Conversation](t, rec)
	assert.Equal(t, model.DefaultConversationTitle, conv.Title)

	rec = api.do(t, http.MethodPost, "/conversations", `{"title":"`+strings.Repeat("x", model.MaxTitleLength+1)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/conversations", `{"title":"second"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodGet, "/conversations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]model.Conversation](t, rec), 2)

	path := "/conversations/" + itoa(conv.ID)

	rec = api.do(t, http.MethodPatch, path, `{"title":"renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "renamed", decodeBody[model.Conversation](t, rec).Title)

	rec = api.do(t, http.MethodPatch, path, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/conversations/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeBody[map[string]string](t, rec)["error"], "not found")

	rec = api.do(t, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessageEndpoints(t *testing.T) {
	api := newTestAPI(t, &stubClient{}, nil)

	rec := api.do(t, http.MethodPost, "/conversations/42/messages", `{"content":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	conv := decodeBody[model.Conversation](t, api.do(t, http.MethodPost, "/conversations", ""))
	base := "/conversations/" + itoa(conv.ID) + "/messages"

	rec = api.do(t, http.MethodPost, base, `{"content":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, base, `{"content":"root"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	root := decodeBody[model.Message](t, rec)
	assert.Nil(t, root.ParentID)
	assert.Equal(t, 0, root.OrderIndex)

	rec = api.do(t, http.MethodPost, base, `{"content":"child","parentId":`+itoa(root.ID)+`}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	child := decodeBody[model.Message](t, rec)
	assert.Equal(t, 1, child.OrderIndex)

	rec = api.do(t, http.MethodPost, base, `{"content":"orphan","parentId":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]model.Message](t, rec), 2)

	rec = api.do(t, http.MethodGet, "/messages/"+itoa(child.ID)+"/path-to-root", "")
	require.Equal(t, http.StatusOK, rec.Code)
	path := decodeBody[[]model.Message](t, rec)
	require.Len(t, path, 2)
	assert.Equal(t, root.ID, path[0].ID)
	assert.Equal(t, child.ID, path[1].ID)

	rec = api.do(t, http.MethodPatch, "/messages/"+itoa(child.ID), `{"summary":"short"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[model.Message](t, rec)
	require.NotNil(t, updated.Summary)
	assert.Equal(t, "short", *updated.Summary)
	assert.Equal(t, "child", updated.Content)

	rec = api.do(t, http.MethodPatch, "/messages/"+itoa(child.ID), `{"orderIndex":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "order index already taken by root")

	rec = api.do(t, http.MethodPatch, "/messages/"+itoa(root.ID), `{"parentId":`+itoa(child.ID)+`}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "root cannot move under its child")

	rec = api.do(t, http.MethodDelete, "/messages/"+itoa(root.ID), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/messages/"+itoa(child.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReplyStreamsNDJSON(t *testing.T) {
	api := newTestAPI(t, &stubClient{fragments: []string{"你", "好"}, summary: "问候"}, nil)
	_, err := api.configs.EnsureDefaults(context.Background(), model.LLMConfig{ModelName: "m", Temperature: 1})
	require.NoError(t, err)

	conv := decodeBody[model.Conversation](t, api.do(t, http.MethodPost, "/conversations", ""))

	rec := api.do(t, http.MethodPost, "/conversations/"+itoa(conv.ID)+"/llm-reply", `{"content":"hello"}`)
	api.replies.Wait()

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	frames := readFrames(t, rec)
	require.Len(t, frames, 4)
	assert.Equal(t, model.FrameMessageID, frames[0].Type)
	assert.NotZero(t, frames[0].MessageID)
	assert.Equal(t, model.DeltaFrame("你"), frames[1])
	assert.Equal(t, model.DeltaFrame("好"), frames[2])
	assert.Equal(t, model.DoneFrame(), frames[3])

	rec = api.do(t, http.MethodGet, "/messages/"+itoa(frames[0].MessageID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	msg := decodeBody[model.Message](t, rec)
	require.NotNil(t, msg.AssistantReply)
	assert.Equal(t, "你好", *msg.AssistantReply)

	rec = api.do(t, http.MethodGet, "/conversations/"+itoa(conv.ID), "")
	assert.Equal(t, "问候", decodeBody[model.Conversation](t, rec).Title)
}

func TestReplyAdmissionErrors(t *testing.T) {
	api := newTestAPI(t, &stubClient{}, nil)
	conv := decodeBody[model.Conversation](t, api.do(t, http.MethodPost, "/conversations", ""))
	path := "/conversations/" + itoa(conv.ID) + "/llm-reply"

	rec := api.do(t, http.MethodPost, path, `{"content":"hello"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "config missing")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	_, err := api.configs.EnsureDefaults(context.Background(), model.LLMConfig{ModelName: "m", Temperature: 1})
	require.NoError(t, err)

	rec = api.do(t, http.MethodPost, "/conversations/999/llm-reply", `{"content":"hello"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, path, `{"content":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, path, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/conversations/"+itoa(conv.ID)+"/messages", "")
	assert.Empty(t, decodeBody[[]model.Message](t, rec))
}

func TestConfigEndpoints(t *testing.T) {
	api := newTestAPI(t, &stubClient{}, nil)

	rec := api.do(t, http.MethodGet, "/config", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "config not initialized", decodeBody[map[string]string](t, rec)["error"])

	rec = api.do(t, http.MethodPut, "/config", `{"apiKey":"sk-test"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPut, "/config", `{"apiKey":"sk-test","baseUrl":"http://localhost:9/v1","modelName":"gpt-x","temperature":0.3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decodeBody[model.LLMConfig](t, rec)
	assert.Equal(t, "gpt-x", cfg.ModelName)
	assert.Equal(t, "sk-test", cfg.Key())
	assert.Equal(t, "http://localhost:9/v1", cfg.Base())
	assert.InDelta(t, 0.3, cfg.Temperature, 1e-9)
}

func TestEventEndpoint(t *testing.T) {
	disabled := newTestAPI(t, &stubClient{}, nil)
	rec := disabled.do(t, http.MethodGet, "/conversations/1/events", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	reader := &stubEventReader{events: []model.ConversationEvent{
		{ID: "e1", ConversationID: 1, Type: model.EventConversationCreated},
	}}
	api := newTestAPI(t, &stubClient{}, reader)

	rec = api.do(t, http.MethodGet, "/conversations/1/events?after_sequence=7&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decodeBody[EventsResponse](t, rec)
	require.Len(t, page.Events, 1)
	assert.Equal(t, model.EventConversationCreated, page.Events[0].Type)
	assert.Equal(t, uint64(8), page.LastSequence)
	assert.True(t, page.HasMore)
	assert.Equal(t, uint64(7), reader.after)
	assert.Equal(t, 1, reader.limit)

	api.do(t, http.MethodGet, "/conversations/1/events?limit=5000", "")
	assert.Equal(t, defaultEventLimit, reader.limit)
}

func TestCORSPreflightAllowsPatch(t *testing.T) {
	api := newTestAPI(t, &stubClient{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/conversations/1", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
}
