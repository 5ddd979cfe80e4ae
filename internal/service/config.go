package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/followchat/followchat/internal/model"
	"github.com/followchat/followchat/pkg/logger"
)

const configCacheKey = "llm_config"

// ConfigService reads and replaces the singleton LLM config. Reads are served
// from a short-lived cache that every write refreshes.
type ConfigService struct {
	store  ConfigStore
	cache  *cache.Cache
	logger *logger.Logger
}

// NewConfigService creates a config service caching reads for ttl. A
// non-positive ttl disables caching.
func NewConfigService(store ConfigStore, ttl time.Duration, log *logger.Logger) *ConfigService {
	var c *cache.Cache
	if ttl > 0 {
		c = cache.New(ttl, 2*ttl)
	}
	return &ConfigService{store: store, cache: c, logger: log}
}

// Get returns the config or ErrConfigMissing.
func (s *ConfigService) Get(ctx context.Context) (*model.LLMConfig, error) {
	if s.cache != nil {
		if x, found := s.cache.Get(configCacheKey); found {
			cfg := x.(model.LLMConfig)
			return &cfg, nil
		}
	}

	cfg, err := s.store.GetLLMConfig(ctx)
	if err != nil {
		return nil, err
	}
	s.remember(cfg)
	return cfg, nil
}

// Update fully replaces the config.
func (s *ConfigService) Update(ctx context.Context, req *model.UpdateConfigRequest) (*model.LLMConfig, error) {
	if req == nil || strings.TrimSpace(req.ModelName) == "" {
		return nil, fmt.Errorf("modelName is required: %w", model.ErrInvalidInput)
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return nil, fmt.Errorf("temperature must be between 0 and 2: %w", model.ErrInvalidInput)
	}

	next := req.ToConfig()
	next.ModelName = strings.TrimSpace(next.ModelName)

	cfg, err := s.store.UpsertLLMConfig(ctx, next)
	if err != nil {
		return nil, err
	}
	s.remember(cfg)

	s.logger.Info("llm config updated",
		zap.String("model", cfg.ModelName),
		zap.String("base_url", cfg.Base()),
		zap.Bool("api_key_set", cfg.Key() != ""),
	)
	return cfg, nil
}

// EnsureDefaults stores defaults when no config exists yet and reports
// whether it did. An existing config is left untouched.
func (s *ConfigService) EnsureDefaults(ctx context.Context, defaults model.LLMConfig) (bool, error) {
	created, err := s.store.InitLLMConfig(ctx, defaults)
	if err != nil {
		return false, err
	}
	if s.cache != nil {
		s.cache.Delete(configCacheKey)
	}
	if created {
		s.logger.Info("llm config initialized from environment", zap.String("model", defaults.ModelName))
	}
	return created, nil
}

func (s *ConfigService) remember(cfg *model.LLMConfig) {
	if s.cache != nil {
		s.cache.Set(configCacheKey, *cfg, cache.DefaultExpiration)
	}
}
