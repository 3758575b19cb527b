// internal/actions/tutor/chat-history/handler_test.go
package chathistory

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-chat/internal/common/database"
	"tutor-chat/internal/common/logger"
	"tutor-chat/internal/models"
)

func newMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/sessions/{id}/history", h)
	return mux
}

func do(mux *http.ServeMux, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHandler_GetAndDelete(t *testing.T) {
	store := database.NewMemoryHistoryStore(0)
	at := time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC)
	require.NoError(t, store.Append(context.Background(), "s-1",
		models.Turn{Role: models.RoleUser, Text: "Wie rechne ich Prozent?", CreatedAt: at},
		models.Turn{Role: models.RoleAssistant, Text: "Anteil geteilt durch Ganzes mal 100.", Source: "agent", CreatedAt: at},
	))
	mux := newMux(NewHandler(LoadConfig(), store, logger.NewTestLogger(t)))

	rec := do(mux, http.MethodGet, "/api/sessions/s-1/history")
	require.Equal(t, http.StatusOK, rec.Code)
	var out Output
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "s-1", out.SessionID)
	require.Len(t, out.Turns, 2)
	assert.Equal(t, models.RoleAssistant, out.Turns[1].Role)
	assert.Equal(t, at, out.Turns[0].CreatedAt)
	require.NotNil(t, out.UpdatedAt)
	assert.Equal(t, at, *out.UpdatedAt)
	assert.Equal(t, "Anteil geteilt durch Ganzes mal 100.", out.LastReply)

	rec = do(mux, http.MethodDelete, "/api/sessions/s-1/history")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(mux, http.MethodGet, "/api/sessions/s-1/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"session_id":"s-1","turns":[]}`, rec.Body.String())
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	mux := newMux(NewHandler(LoadConfig(), database.NewMemoryHistoryStore(0), logger.NewTestLogger(t)))

	rec := do(mux, http.MethodPost, "/api/sessions/s-1/history")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, DELETE", rec.Header().Get("Allow"))
}

func TestHandler_StoreFailure(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := database.NewRedisHistoryStore(client, "tutor:history:", time.Hour, 50)
	mux := newMux(NewHandler(LoadConfig(), store, logger.NewTestLogger(t)))

	mock.ExpectLRange("tutor:history:s-1", 0, -1).SetErr(stderrors.New("dial tcp: connection refused"))
	rec := do(mux, http.MethodGet, "/api/sessions/s-1/history")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "HISTORY_STORE_FAILED")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_ReturnsSession(t *testing.T) {
	store := database.NewMemoryHistoryStore(0)
	first := time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC)
	require.NoError(t, store.Append(context.Background(), "s-2",
		models.Turn{Role: models.RoleUser, Text: "1/2 + 1/3?", CreatedAt: first},
		models.Turn{Role: models.RoleAssistant, Text: "5/6", CreatedAt: first.Add(time.Second)},
		models.Turn{Role: models.RoleUser, Text: "Und 1/4 + 1/4?", CreatedAt: first.Add(time.Minute)},
	))
	h := NewHandler(LoadConfig(), store, logger.NewTestLogger(t))

	session, err := h.Execute(context.Background(), "s-2")
	require.NoError(t, err)
	assert.Equal(t, "s-2", session.ID)
	assert.Len(t, session.Turns, 3)
	assert.Equal(t, first.Add(time.Minute), session.UpdatedAt)

	reply, ok := session.LastReply()
	require.True(t, ok)
	assert.Equal(t, "5/6", reply.Text)

	empty, err := h.Execute(context.Background(), "unknown")
	require.NoError(t, err)
	assert.NotNil(t, empty.Turns)
	assert.True(t, empty.UpdatedAt.IsZero())
	_, ok = empty.LastReply()
	assert.False(t, ok)
}
