package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/followchat/followchat/internal/model"
)

// CreateMessage appends a message to a conversation. The order index is
// max(existing)+1, computed and inserted in the same transaction.
func (s *Store) CreateMessage(ctx context.Context, conversationID int64, content string, parentID *int64) (*model.Message, error) {
	var rec messageRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv conversationRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&conv, conversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("conversation %d does not exist: %w", conversationID, model.ErrInvalidInput)
			}
			return err
		}

		if parentID != nil {
			if err := checkParent(tx, conversationID, *parentID); err != nil {
				return err
			}
		}

		var next int
		if err := tx.Model(&messageRecord{}).
			Where("conversation_id = ?", conversationID).
			Select("COALESCE(MAX(order_index), -1) + 1").
			Scan(&next).Error; err != nil {
			return err
		}

		rec = messageRecord{
			ConversationID: conversationID,
			Content:        content,
			OrderIndex:     next,
			ParentID:       parentID,
		}
		return tx.Create(&rec).Error
	})
	if err != nil {
		return nil, classify("create message", err)
	}
	return rec.toModel(), nil
}

// checkParent enforces that a parent exists in the same conversation.
func checkParent(tx *gorm.DB, conversationID, parentID int64) error {
	var parent messageRecord
	if err := tx.Select("id", "conversation_id").First(&parent, parentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("parent message %d does not exist: %w", parentID, model.ErrInvalidInput)
		}
		return err
	}
	if parent.ConversationID != conversationID {
		return fmt.Errorf("parent message %d belongs to another conversation: %w", parentID, model.ErrInvalidInput)
	}
	return nil
}

// checkNotDescendant walks up from parentID and fails if it reaches id, which
// would cut the subtree of id off from its root.
func checkNotDescendant(tx *gorm.DB, id, parentID int64) error {
	visited := map[int64]struct{}{}
	for next := &parentID; next != nil; {
		if *next == id {
			return fmt.Errorf("message %d cannot move under its own descendant %d: %w", id, parentID, model.ErrInvalidInput)
		}
		if _, seen := visited[*next]; seen {
			return nil
		}
		visited[*next] = struct{}{}

		var rec messageRecord
		err := tx.Select("id", "parent_id").First(&rec, *next).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		next = rec.ParentID
	}
	return nil
}

// checkOrderIndexFree fails when another message of the conversation already
// holds orderIndex.
func checkOrderIndexFree(tx *gorm.DB, conversationID, id int64, orderIndex int) error {
	var taken int64
	if err := tx.Model(&messageRecord{}).
		Where("conversation_id = ? AND order_index = ? AND id <> ?", conversationID, orderIndex, id).
		Count(&taken).Error; err != nil {
		return err
	}
	if taken > 0 {
		return fmt.Errorf("order index %d is already used in conversation %d: %w", orderIndex, conversationID, model.ErrInvalidInput)
	}
	return nil
}

// GetMessage loads a message by id.
func (s *Store) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	var rec messageRecord
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("message %d: %w", id, model.ErrNotFound)
		}
		return nil, classify("get message", err)
	}
	return rec.toModel(), nil
}

// ListMessages returns the messages of a conversation by ascending order index.
func (s *Store) ListMessages(ctx context.Context, conversationID int64) ([]model.Message, error) {
	var recs []messageRecord
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("order_index ASC").
		Find(&recs).Error; err != nil {
		return nil, classify("list messages", err)
	}
	return messagesToModel(recs), nil
}

// LatestMessage returns the message with the highest order index.
func (s *Store) LatestMessage(ctx context.Context, conversationID int64) (*model.Message, error) {
	var rec messageRecord
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("order_index DESC").
		First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("conversation %d has no messages: %w", conversationID, model.ErrNotFound)
		}
		return nil, classify("latest message", err)
	}
	return rec.toModel(), nil
}

// PathToRoot walks parent links from messageID and returns the visited
// messages root first. A parent that cannot be loaded ends the walk, as does
// an id seen twice.
func (s *Store) PathToRoot(ctx context.Context, messageID int64) ([]model.Message, error) {
	start, err := s.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	path := []model.Message{*start}
	visited := map[int64]struct{}{start.ID: {}}

	for next := start.ParentID; next != nil; {
		if _, seen := visited[*next]; seen {
			s.log.Warn("cycle in message parent chain",
				zap.Int64("message_id", messageID),
				zap.Int64("repeated_id", *next),
			)
			break
		}

		var rec messageRecord
		err := s.db.WithContext(ctx).First(&rec, *next).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			break
		}
		if err != nil {
			return nil, classify("path to root", err)
		}

		visited[rec.ID] = struct{}{}
		path = append(path, *rec.toModel())
		next = rec.ParentID
	}

	slices.Reverse(path)
	return path, nil
}

// UpdateMessage applies the non-nil fields of upd.
func (s *Store) UpdateMessage(ctx context.Context, id int64, upd model.MessageUpdate) (*model.Message, error) {
	if upd.IsEmpty() {
		return nil, fmt.Errorf("at least one field must be provided: %w", model.ErrInvalidInput)
	}

	var rec messageRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&rec, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("message %d: %w", id, model.ErrNotFound)
			}
			return err
		}

		updates := map[string]any{}
		if upd.Content != nil {
			updates["content"] = *upd.Content
		}
		if upd.OrderIndex != nil {
			if *upd.OrderIndex < 0 {
				return fmt.Errorf("order index must not be negative: %w", model.ErrInvalidInput)
			}
			if *upd.OrderIndex != rec.OrderIndex {
				if err := checkOrderIndexFree(tx, rec.ConversationID, id, *upd.OrderIndex); err != nil {
					return err
				}
			}
			updates["order_index"] = *upd.OrderIndex
		}
		if upd.Summary != nil {
			updates["summary"] = *upd.Summary
		}
		if upd.ParentID != nil {
			if *upd.ParentID == id {
				return fmt.Errorf("message cannot be its own parent: %w", model.ErrInvalidInput)
			}
			if err := checkParent(tx, rec.ConversationID, *upd.ParentID); err != nil {
				return err
			}
			if err := checkNotDescendant(tx, id, *upd.ParentID); err != nil {
				return err
			}
			updates["parent_id"] = *upd.ParentID
		}
		if upd.AssistantReply != nil {
			updates["assistant_reply"] = *upd.AssistantReply
		}

		if err := tx.Model(&messageRecord{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&rec, id).Error
	})
	if err != nil {
		return nil, classify("update message", err)
	}
	return rec.toModel(), nil
}

// DeleteMessage removes a message and every message below it.
func (s *Store) DeleteMessage(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec messageRecord
		if err := tx.Select("id").First(&rec, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("message %d: %w", id, model.ErrNotFound)
			}
			return err
		}

		doomed := []int64{id}
		seen := map[int64]struct{}{id: {}}
		for frontier := []int64{id}; len(frontier) > 0; {
			var children []int64
			if err := tx.Model(&messageRecord{}).Where("parent_id IN ?", frontier).Pluck("id", &children).Error; err != nil {
				return err
			}
			frontier = frontier[:0]
			for _, child := range children {
				if _, ok := seen[child]; ok {
					continue
				}
				seen[child] = struct{}{}
				doomed = append(doomed, child)
				frontier = append(frontier, child)
			}
		}

		return tx.Where("id IN ?", doomed).Delete(&messageRecord{}).Error
	})
	return classify("delete message", err)
}
