package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/followchat/followchat/internal/model"
)

func TestEventSubjects(t *testing.T) {
	assert.Equal(t, "conv.42.event.message_created", EventSubject(42, model.EventMessageCreated))
	assert.Equal(t, "conv.42.event.>", ConversationFilter(42))
}
