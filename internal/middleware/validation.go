package middleware

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/followchat/followchat/internal/model"
)

// MaxContentBytes bounds the size of a submitted message.
const MaxContentBytes = 100000

// ParseID parses a positive integer path parameter.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: %w", raw, model.ErrInvalidInput)
	}
	return id, nil
}

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("content cannot be empty: %w", model.ErrInvalidInput)
	}
	if len(content) > MaxContentBytes {
		return fmt.Errorf("content exceeds maximum length: %w", model.ErrInvalidInput)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("content must be valid UTF-8: %w", model.ErrInvalidInput)
	}
	return nil
}

// ValidateTitle validates a conversation title.
func ValidateTitle(title string) error {
	if !utf8.ValidString(title) {
		return fmt.Errorf("title must be valid UTF-8: %w", model.ErrInvalidInput)
	}
	if utf8.RuneCountInString(title) > model.MaxTitleLength {
		return fmt.Errorf("title exceeds maximum length: %w", model.ErrInvalidInput)
	}
	return nil
}

// ValidateID validates an optional id reference in a request body.
func ValidateID(id *int64, field string) error {
	if id != nil && *id <= 0 {
		return fmt.Errorf("%s must be a positive integer: %w", field, model.ErrInvalidInput)
	}
	return nil
}
