package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/followchat/followchat/internal/model"
	"github.com/followchat/followchat/internal/store"
	"github.com/followchat/followchat/pkg/logger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.ConversationEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, event *model.ConversationEvent) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.events = append(p.events, *event)
	return uint64(len(p.events)), nil
}

func (p *recordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.Options{
		Driver: store.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "service.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func strPtr(s string) *string {
	return &s
}

func TestConversationService(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := NewConversationService(openStore(t), pub, logger.NewNop())

	conv, err := svc.Create(ctx, &model.CreateConversationRequest{})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultConversationTitle, conv.Title)

	named, err := svc.Create(ctx, &model.CreateConversationRequest{Title: strPtr("  trip plans ")})
	require.NoError(t, err)
	assert.Equal(t, "trip plans", named.Title)

	_, err = svc.Create(ctx, &model.CreateConversationRequest{Title: strPtr(strings.Repeat("长", model.MaxTitleLength+1))})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = svc.Update(ctx, conv.ID, &model.UpdateConversationRequest{})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = svc.Update(ctx, conv.ID, &model.UpdateConversationRequest{Title: strPtr(" ")})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	updated, err := svc.Update(ctx, conv.ID, &model.UpdateConversationRequest{Title: strPtr("renamed")})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, svc.Delete(ctx, conv.ID))
	_, err = svc.Get(ctx, conv.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, conv.ID), model.ErrNotFound)

	assert.Equal(t, []model.EventType{
		model.EventConversationCreated,
		model.EventConversationCreated,
		model.EventTitleUpdated,
		model.EventConversationDeleted,
	}, pub.types())
}

func TestEventPublishFailureIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats down")}
	svc := NewConversationService(openStore(t), pub, logger.NewNop())

	conv, err := svc.Create(context.Background(), nil)
	require.NoError(t, err)
	assert.NotZero(t, conv.ID)
}

func TestMessageService(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	pub := &recordingPublisher{}
	svc := NewMessageService(st, st, pub, logger.NewNop())

	_, err := svc.Create(ctx, 99, &model.CreateMessageRequest{Content: "hi"})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = svc.List(ctx, 99)
	assert.ErrorIs(t, err, model.ErrNotFound)

	conv, err := st.CreateConversation(ctx, model.DefaultConversationTitle)
	require.NoError(t, err)

	_, err = svc.Create(ctx, conv.ID, &model.CreateMessageRequest{Content: "  "})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	root, err := svc.Create(ctx, conv.ID, &model.CreateMessageRequest{Content: "root"})
	require.NoError(t, err)
	child, err := svc.Create(ctx, conv.ID, &model.CreateMessageRequest{Content: "child", ParentID: &root.ID})
	require.NoError(t, err)

	path, err := svc.PathToRoot(ctx, child.ID)
	require.NoError(t, err)
	require.Len(t, path, 2)
	assert.Equal(t, root.ID, path[0].ID)

	_, err = svc.Update(ctx, child.ID, model.MessageUpdate{Content: strPtr("")})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	long := strings.Repeat("摘", model.MaxSummaryLength+10)
	updated, err := svc.Update(ctx, child.ID, model.MessageUpdate{Summary: &long})
	require.NoError(t, err)
	require.NotNil(t, updated.Summary)
	assert.Equal(t, model.MaxSummaryLength, len([]rune(*updated.Summary)))

	require.NoError(t, svc.Delete(ctx, root.ID))
	list, err := svc.List(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.Equal(t, []model.EventType{model.EventMessageCreated, model.EventMessageCreated}, pub.types())
}

type countingConfigStore struct {
	ConfigStore
	gets int
}

func (c *countingConfigStore) GetLLMConfig(ctx context.Context) (*model.LLMConfig, error) {
	c.gets++
	return c.ConfigStore.GetLLMConfig(ctx)
}

func TestConfigService(t *testing.T) {
	ctx := context.Background()
	counting := &countingConfigStore{ConfigStore: openStore(t)}
	svc := NewConfigService(counting, time.Minute, logger.NewNop())

	_, err := svc.Get(ctx)
	assert.ErrorIs(t, err, model.ErrConfigMissing)

	created, err := svc.EnsureDefaults(ctx, model.LLMConfig{ModelName: "env-model", Temperature: 1})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.EnsureDefaults(ctx, model.LLMConfig{ModelName: "other", Temperature: 1})
	require.NoError(t, err)
	assert.False(t, created)

	cfg, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.ModelName)

	before := counting.gets
	_, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, counting.gets, "second read is served from cache")

	_, err = svc.Update(ctx, &model.UpdateConfigRequest{ModelName: " "})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	tooHot := 3.0
	_, err = svc.Update(ctx, &model.UpdateConfigRequest{ModelName: "m", Temperature: &tooHot})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	updated, err := svc.Update(ctx, &model.UpdateConfigRequest{
		APIKey:    strPtr("sk-1"),
		ModelName: "gpt-test",
	})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultTemperature, updated.Temperature)

	cfg, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gpt-test", cfg.ModelName)
	assert.Equal(t, "sk-1", cfg.Key())
	assert.Equal(t, before, counting.gets, "writes refresh the cache")
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "短标", truncateRunes("短标题", 2))
	assert.Equal(t, "", truncateRunes("x", 0))
}
