package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	messages []string
	fields   []map[string]interface{}
}

func (l *recordingLogger) Error(msg string, fields map[string]interface{}) {
	l.messages = append(l.messages, msg)
	l.fields = append(l.fields, fields)
}

func TestHandleHTTPError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   ErrorCode
		retryAfter string
	}{
		{"invalid question", NewInvalidQuestionError("text or image is required"), http.StatusBadRequest, ErrCodeInvalidQuestion, ""},
		{"agent unavailable", NewAgentUnavailableError("start-run", fmt.Errorf("404")), http.StatusBadGateway, ErrCodeAgentUnavailable, "1"},
		{"rate limited", NewRateLimitedError("192.0.2.1"), http.StatusTooManyRequests, ErrCodeRateLimited, "1"},
		{"wrapped", fmt.Errorf("ask: %w", NewSessionNotFoundError("s-1")), http.StatusNotFound, ErrCodeSessionNotFound, ""},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, ErrCodeAgentTimeout, "1"},
		{"plain", fmt.Errorf("boom"), http.StatusInternalServerError, ErrCodeInternalError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &recordingLogger{}
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)

			NewErrorHandler(log).HandleHTTPError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.retryAfter, rec.Header().Get("Retry-After"))

			var body struct {
				Error StandardError `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error.Code)

			require.Len(t, log.fields, 1)
			assert.Equal(t, string(tt.wantCode), log.fields[0]["errorCode"])
			assert.Equal(t, tt.wantStatus, log.fields[0]["status"])
		})
	}
}

func TestHandleHTTPError_NilLogger(t *testing.T) {
	rec := httptest.NewRecorder()
	NewErrorHandler(nil).HandleHTTPError(rec, nil, NewInvalidQuestionError("x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "AI", GetErrorCategory(ErrCodeFallbackFailed))
	assert.Equal(t, "STORAGE", GetErrorCategory(ErrCodeHistoryStoreFailed))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeImageTooLarge))
	assert.Equal(t, "THROTTLING", GetErrorCategory(ErrCodeRateLimited))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternalError))
	assert.True(t, IsRetryableErrorCode(ErrCodeAgentTimeout))
	assert.False(t, IsRetryableErrorCode(ErrCodeInvalidQuestion))
}
