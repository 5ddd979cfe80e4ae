package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/followchat/followchat/internal/model"
)

// GetLLMConfig returns the singleton config or ErrConfigMissing.
func (s *Store) GetLLMConfig(ctx context.Context) (*model.LLMConfig, error) {
	var rec configRecord
	if err := s.db.WithContext(ctx).First(&rec, singletonConfigID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrConfigMissing
		}
		return nil, classify("get config", err)
	}
	return rec.toModel(), nil
}

// UpsertLLMConfig fully replaces the singleton config.
func (s *Store) UpsertLLMConfig(ctx context.Context, cfg model.LLMConfig) (*model.LLMConfig, error) {
	rec := newConfigRecord(cfg)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"api_key", "base_url", "model_name", "temperature", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return nil, classify("upsert config", err)
	}
	return rec.toModel(), nil
}

// InitLLMConfig stores cfg only when no config exists yet. It reports
// whether a row was written.
func (s *Store) InitLLMConfig(ctx context.Context, cfg model.LLMConfig) (bool, error) {
	rec := newConfigRecord(cfg)
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return false, classify("init config", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func newConfigRecord(cfg model.LLMConfig) configRecord {
	return configRecord{
		ID:          singletonConfigID,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		ModelName:   cfg.ModelName,
		Temperature: cfg.Temperature,
		UpdatedAt:   time.Now().UTC(),
	}
}
