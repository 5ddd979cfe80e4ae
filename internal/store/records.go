package store

import (
	"time"

	"github.com/followchat/followchat/internal/model"
)

type conversationRecord struct {
	ID        int64           `gorm:"primaryKey;autoIncrement"`
	Title     string          `gorm:"type:text;not null"`
	CreatedAt time.Time       `gorm:"not null;index"`
	Messages  []messageRecord `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

func (conversationRecord) TableName() string {
	return "conversations"
}

type messageRecord struct {
	ID             int64          `gorm:"primaryKey;autoIncrement"`
	ConversationID int64          `gorm:"not null;uniqueIndex:idx_messages_conversation_order,priority:1"`
	Content        string         `gorm:"type:text;not null"`
	OrderIndex     int            `gorm:"not null;uniqueIndex:idx_messages_conversation_order,priority:2"`
	Summary        *string        `gorm:"type:text"`
	ParentID       *int64         `gorm:"index:idx_messages_parent_id"`
	Parent         *messageRecord `gorm:"foreignKey:ParentID;constraint:OnDelete:CASCADE"`
	AssistantReply *string        `gorm:"type:text"`
	CreatedAt      time.Time      `gorm:"not null"`
}

func (messageRecord) TableName() string {
	return "messages"
}

// configRecord is the single config row; ID is always singletonConfigID.
type configRecord struct {
	ID          int64   `gorm:"primaryKey;autoIncrement:false"`
	APIKey      *string `gorm:"type:text"`
	BaseURL     *string `gorm:"type:text"`
	ModelName   string  `gorm:"type:text;not null"`
	Temperature float64 `gorm:"not null"`
	UpdatedAt   time.Time
}

func (configRecord) TableName() string {
	return "configs"
}

const singletonConfigID = 1

func (r *conversationRecord) toModel() *model.Conversation {
	return &model.Conversation{
		ID:        r.ID,
		Title:     r.Title,
		CreatedAt: r.CreatedAt,
	}
}

func (r *messageRecord) toModel() *model.Message {
	return &model.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Content:        r.Content,
		OrderIndex:     r.OrderIndex,
		Summary:        r.Summary,
		ParentID:       r.ParentID,
		AssistantReply: r.AssistantReply,
		CreatedAt:      r.CreatedAt,
	}
}

func (r *configRecord) toModel() *model.LLMConfig {
	return &model.LLMConfig{
		ID:          r.ID,
		APIKey:      r.APIKey,
		BaseURL:     r.BaseURL,
		ModelName:   r.ModelName,
		Temperature: r.Temperature,
		UpdatedAt:   r.UpdatedAt,
	}
}

func messagesToModel(records []messageRecord) []model.Message {
	out := make([]model.Message, len(records))
	for i := range records {
		out[i] = *records[i].toModel()
	}
	return out
}
