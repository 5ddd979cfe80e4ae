package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/followchat/followchat/internal/model"
)

const (
	// StreamName is the name of the conversation event stream.
	StreamName = "FOLLOWCHAT_EVENTS"

	// SubjectPrefix is the prefix for all conversation subjects.
	SubjectPrefix = "conv"
)

// StreamManager publishes and replays conversation events on JetStream.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream creates the event stream unless it already exists.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Conversation tree and reply lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for an event.
func EventSubject(conversationID int64, eventType model.EventType) string {
	return fmt.Sprintf("%s.%d.event.%s", SubjectPrefix, conversationID, eventType)
}

// ConversationFilter returns the filter subject for all events of a conversation.
func ConversationFilter(conversationID int64) string {
	return fmt.Sprintf("%s.%d.event.>", SubjectPrefix, conversationID)
}

// PublishEvent publishes an event to JetStream and returns its stream sequence.
func (m *StreamManager) PublishEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error) {
	subject := EventSubject(event.ConversationID, event.Type)

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, subject, data, jetstream.WithMsgID(event.ID))
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}

	return ack.Sequence, nil
}

// ListEvents replays up to limit events of a conversation, oldest first,
// starting after the given stream sequence. The returned sequence is the
// position to resume from.
func (m *StreamManager) ListEvents(ctx context.Context, conversationID int64, afterSequence uint64, limit int) ([]model.ConversationEvent, uint64, error) {
	js := m.client.JetStream()

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject:     ConversationFilter(conversationID),
		AckPolicy:         jetstream.AckNonePolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: time.Minute,
	}
	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	consumer, err := js.CreateConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create consumer: %w", err)
	}
	defer func() {
		_ = js.DeleteConsumer(context.WithoutCancel(ctx), StreamName, consumer.CachedInfo().Name)
	}()

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch events: %w", err)
	}

	var events []model.ConversationEvent
	lastSequence := afterSequence
	for msg := range batch.Messages() {
		var event model.ConversationEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			lastSequence = meta.Sequence.Stream
		}
		events = append(events, event)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, nats.ErrTimeout) {
		return nil, 0, fmt.Errorf("batch error: %w", err)
	}

	return events, lastSequence, nil
}
