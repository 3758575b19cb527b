// internal/actions/tutor/chat-history/handler.go
package chathistory

import (
	"context"
	"net/http"
	"strings"

	"tutor-chat/internal/common/errors"
	httpx "tutor-chat/internal/common/http"
	"tutor-chat/internal/common/logger"
	"tutor-chat/internal/common/metrics"
	"tutor-chat/internal/models"
)

const TaskType = "chat-history"

// Handler serves GET (list turns) and DELETE (forget the conversation)
// for one session.
type Handler struct {
	config  *Config
	history models.HistoryStore
	errors  *errors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(cfg *Config, history models.HistoryStore, log logger.Logger) *Handler {
	log = log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  cfg,
		history: history,
		errors:  errors.NewErrorHandler(log),
		logger:  log,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.config.Timeout)
	defer cancel()

	sessionID := strings.TrimSpace(r.PathValue("id"))
	if sessionID == "" {
		h.fail(w, r, errors.NewInvalidQuestionError("session id is required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		session, err := h.Execute(ctx, sessionID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, newOutput(session))

	case http.MethodDelete:
		if err := h.Clear(ctx, sessionID); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Execute returns the stored conversation, turns oldest first.
func (h *Handler) Execute(ctx context.Context, sessionID string) (*models.Session, error) {
	turns, err := h.history.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session := &models.Session{ID: sessionID, Turns: turns}
	if n := len(turns); n > 0 {
		session.UpdatedAt = turns[n-1].CreatedAt
	} else {
		session.Turns = []models.Turn{}
	}
	metrics.ActionsCompleted.WithLabelValues(TaskType, "history").Inc()
	return session, nil
}

func (h *Handler) Clear(ctx context.Context, sessionID string) error {
	if err := h.history.Clear(ctx, sessionID); err != nil {
		return err
	}
	h.logger.Info("conversation cleared", map[string]interface{}{"sessionId": sessionID})
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	metrics.ActionsFailed.WithLabelValues(TaskType, string(errors.Normalize(err).Code)).Inc()
	h.errors.HandleHTTPError(w, r, err)
}
