// internal/actions/tutor/load-memory/handler.go
package loadmemory

import (
	"context"
	"net/http"
	"strings"

	"tutor-chat/internal/common/config"
	"tutor-chat/internal/common/errors"
	httpx "tutor-chat/internal/common/http"
	"tutor-chat/internal/common/logger"
	"tutor-chat/internal/common/metrics"
	"tutor-chat/internal/models"
)

const (
	TaskType = "load-memory"

	SourceAgent   = "agent"
	SourceHistory = "history"
)

type StateFetcher interface {
	FetchState(ctx context.Context, sessionID string) (any, error)
}

type Decoder interface {
	Decode(v any) string
}

type Handler struct {
	config  *Config
	fetcher StateFetcher
	decoder Decoder
	history models.HistoryStore
	errors  *errors.ErrorHandler
	logger  logger.Logger
}

// NewHandler wires the action. In local memory mode fetcher may be nil and
// the session is read from history instead.
func NewHandler(cfg *Config, fetcher StateFetcher, decoder Decoder, history models.HistoryStore, log logger.Logger) *Handler {
	log = log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  cfg,
		fetcher: fetcher,
		decoder: decoder,
		history: history,
		errors:  errors.NewErrorHandler(log),
		logger:  log,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, r.PathValue("id"))
	if err != nil {
		metrics.ActionsFailed.WithLabelValues(TaskType, string(errors.Normalize(err).Code)).Inc()
		h.errors.HandleHTTPError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, output)
}

// Execute reads the session's memory and decodes it for display.
func (h *Handler) Execute(ctx context.Context, sessionID string) (*Output, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.NewInvalidQuestionError("session id is required")
	}

	if h.config.MemoryMode == config.MemoryModeLocal || h.fetcher == nil {
		return h.fromHistory(ctx, sessionID)
	}

	raw, err := h.fetcher.FetchState(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	metrics.ActionsCompleted.WithLabelValues(TaskType, SourceAgent).Inc()
	h.logger.Debug("session memory loaded", map[string]interface{}{"sessionId": sessionID})
	return &Output{
		SessionID: sessionID,
		Text:      h.decoder.Decode(raw),
		Source:    SourceAgent,
		Raw:       raw,
	}, nil
}

// fromHistory renders stored turns through the same decoder as agent
// envelopes, as a messages list.
func (h *Handler) fromHistory(ctx context.Context, sessionID string) (*Output, error) {
	if h.history == nil {
		return nil, errors.NewSessionNotFoundError(sessionID)
	}
	turns, err := h.history.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, errors.NewSessionNotFoundError(sessionID)
	}

	messages := make([]any, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, map[string]any{"role": string(t.Role), "content": t.Text})
	}
	envelope := map[string]any{"messages": messages}

	metrics.ActionsCompleted.WithLabelValues(TaskType, SourceHistory).Inc()
	return &Output{
		SessionID: sessionID,
		Text:      h.decoder.Decode(envelope),
		Source:    SourceHistory,
		Raw:       envelope,
	}, nil
}
