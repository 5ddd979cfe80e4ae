package model

import (
	"time"
)

// DefaultTemperature is used when a config write omits the temperature.
const DefaultTemperature = 1.0

// LLMConfig is the singleton record governing upstream connectivity.
type LLMConfig struct {
	ID          int64     `json:"id"`
	APIKey      *string   `json:"api_key"`
	BaseURL     *string   `json:"base_url"`
	ModelName   string    `json:"model_name"`
	Temperature float64   `json:"temperature"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Key returns the API key or an empty string.
func (c *LLMConfig) Key() string {
	if c.APIKey == nil {
		return ""
	}
	return *c.APIKey
}

// Base returns the base URL or an empty string.
func (c *LLMConfig) Base() string {
	if c.BaseURL == nil {
		return ""
	}
	return *c.BaseURL
}

// UpdateConfigRequest fully replaces the singleton config.
type UpdateConfigRequest struct {
	APIKey      *string  `json:"apiKey,omitempty"`
	BaseURL     *string  `json:"baseUrl,omitempty"`
	ModelName   string   `json:"modelName"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// ToConfig converts the request into the value to store.
func (r *UpdateConfigRequest) ToConfig() LLMConfig {
	temperature := DefaultTemperature
	if r.Temperature != nil {
		temperature = *r.Temperature
	}
	return LLMConfig{
		APIKey:      r.APIKey,
		BaseURL:     r.BaseURL,
		ModelName:   r.ModelName,
		Temperature: temperature,
	}
}
