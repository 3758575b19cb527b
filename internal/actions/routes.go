// Package actions maps the tutoring actions onto HTTP routes.
package actions

import (
	"net/http"

	"tutor-chat/internal/common/config"
	"tutor-chat/internal/common/errors"
	httpx "tutor-chat/internal/common/http"
	"tutor-chat/internal/common/logger"
	"tutor-chat/internal/common/metrics"
	"tutor-chat/internal/common/observability"
	"tutor-chat/internal/models"

	aq "tutor-chat/internal/actions/tutor/ask-question"
	ch "tutor-chat/internal/actions/tutor/chat-history"
	lm "tutor-chat/internal/actions/tutor/load-memory"
)

type Deps struct {
	Config        *config.Config
	Agent         AgentClient // nil in local memory mode
	Completer     aq.Completer
	History       models.HistoryStore
	Decoder       lm.Decoder
	Observability *observability.Observability
	RateLimiter   *httpx.RateLimiter
	Logger        logger.Logger
}

// AgentClient is everything the actions need from the agent service.
type AgentClient interface {
	aq.AgentClient
	lm.StateFetcher
}

// Register adds the action routes to mux.
func Register(mux *http.ServeMux, d Deps) {
	var askAgent aq.AgentClient
	var fetcher lm.StateFetcher
	if d.Agent != nil {
		askAgent, fetcher = d.Agent, d.Agent
	}

	ask := aq.NewHandler(aq.LoadConfig(d.Config), askAgent, d.Completer, d.History, d.Logger)
	mux.Handle("POST /api/chat", d.instrument(aq.TaskType, d.limit(ask)))

	memory := lm.NewHandler(lm.LoadConfig(d.Config), fetcher, d.Decoder, d.History, d.Logger)
	mux.Handle("GET /api/sessions/{id}/memory", d.instrument(lm.TaskType, memory))

	if d.History != nil {
		history := ch.NewHandler(ch.LoadConfig(), d.History, d.Logger)
		mux.Handle("GET /api/sessions/{id}/history", d.instrument(ch.TaskType, history))
		mux.Handle("DELETE /api/sessions/{id}/history", d.instrument(ch.TaskType, history))
	}
}

func (d Deps) instrument(action string, h http.Handler) http.Handler {
	if d.Observability == nil {
		return h
	}
	return d.Observability.Instrument(action, h)
}

func (d Deps) limit(h http.Handler) http.Handler {
	if d.RateLimiter == nil {
		return h
	}
	errHandler := errors.NewErrorHandler(d.Logger)
	return d.RateLimiter.Middleware(h, func(w http.ResponseWriter, r *http.Request, client string) {
		metrics.ActionsFailed.WithLabelValues(aq.TaskType, string(errors.ErrCodeRateLimited)).Inc()
		errHandler.HandleHTTPError(w, r, errors.NewRateLimitedError(client))
	})
}
