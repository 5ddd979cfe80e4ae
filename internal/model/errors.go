package model

import "errors"

// Error kinds shared by the store, services and handlers. Callers match them
// with errors.Is to pick a response.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrConfigMissing = errors.New("llm config not initialized")
	ErrStorage       = errors.New("storage failure")
)
