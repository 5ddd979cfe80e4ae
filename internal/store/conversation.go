package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/followchat/followchat/internal/model"
)

// CreateConversation stores a new conversation with the given title.
func (s *Store) CreateConversation(ctx context.Context, title string) (*model.Conversation, error) {
	rec := conversationRecord{Title: title}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, classify("create conversation", err)
	}
	return rec.toModel(), nil
}

// GetConversation loads a conversation by id.
func (s *Store) GetConversation(ctx context.Context, id int64) (*model.Conversation, error) {
	var rec conversationRecord
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("conversation %d: %w", id, model.ErrNotFound)
		}
		return nil, classify("get conversation", err)
	}
	return rec.toModel(), nil
}

// ListConversations returns all conversations, newest first.
func (s *Store) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	var recs []conversationRecord
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&recs).Error; err != nil {
		return nil, classify("list conversations", err)
	}
	out := make([]model.Conversation, len(recs))
	for i := range recs {
		out[i] = *recs[i].toModel()
	}
	return out, nil
}

// UpdateConversationTitle replaces the title of a conversation.
func (s *Store) UpdateConversationTitle(ctx context.Context, id int64, title string) (*model.Conversation, error) {
	var rec conversationRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&rec, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("conversation %d: %w", id, model.ErrNotFound)
			}
			return err
		}
		if err := tx.Model(&rec).Update("title", title).Error; err != nil {
			return err
		}
		rec.Title = title
		return nil
	})
	if err != nil {
		return nil, classify("update conversation", err)
	}
	return rec.toModel(), nil
}

// DeleteConversation removes a conversation and all of its messages.
func (s *Store) DeleteConversation(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec conversationRecord
		if err := tx.Select("id").First(&rec, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("conversation %d: %w", id, model.ErrNotFound)
			}
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&messageRecord{}).Error; err != nil {
			return err
		}
		return tx.Delete(&conversationRecord{}, id).Error
	})
	return classify("delete conversation", err)
}
