package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/followchat/followchat/internal/model"
	"github.com/followchat/followchat/pkg/logger"
)

func TestParseID(t *testing.T) {
	id, err := ParseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, raw := range []string{"", "0", "-1", "abc", "1.5"} {
		_, err := ParseID(raw)
		assert.ErrorIs(t, err, model.ErrInvalidInput, raw)
	}
}

func TestValidateMessageContent(t *testing.T) {
	assert.NoError(t, ValidateMessageContent("你好"))
	assert.ErrorIs(t, ValidateMessageContent(" \n"), model.ErrInvalidInput)
	assert.ErrorIs(t, ValidateMessageContent(strings.Repeat("a", MaxContentBytes+1)), model.ErrInvalidInput)
	assert.ErrorIs(t, ValidateMessageContent("bad \xff byte"), model.ErrInvalidInput)
}

func TestValidateTitle(t *testing.T) {
	assert.NoError(t, ValidateTitle(strings.Repeat("题", model.MaxTitleLength)))
	assert.ErrorIs(t, ValidateTitle(strings.Repeat("题", model.MaxTitleLength+1)), model.ErrInvalidInput)
	assert.ErrorIs(t, ValidateTitle("\xff"), model.ErrInvalidInput)
}

func TestValidateID(t *testing.T) {
	zero := int64(0)
	one := int64(1)
	assert.NoError(t, ValidateID(nil, "parentId"))
	assert.NoError(t, ValidateID(&one, "parentId"))
	assert.ErrorIs(t, ValidateID(&zero, "parentId"), model.ErrInvalidInput)
}

func TestLoggingSetsCorrelationID(t *testing.T) {
	var seen string
	r := chi.NewRouter()
	r.Use(Logging(logger.NewNop()))
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		seen = logger.CorrelationID(r.Context())
		_, ok := w.(http.Flusher)
		assert.True(t, ok, "streaming handlers need a flusher")
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/items/7", nil)
	req.Header.Set(CorrelationIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(CorrelationIDHeader))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/8", nil))
	assert.NotEmpty(t, rec.Header().Get(CorrelationIDHeader))
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/conversations/1/llm-reply", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)

	other := httptest.NewRequest(http.MethodPost, "/conversations/1/llm-reply", nil)
	other.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
