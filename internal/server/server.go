// Package server assembles the tutor-chat HTTP service from configuration.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tutor-chat/internal/actions"
	"tutor-chat/internal/common/agent"
	"tutor-chat/internal/common/config"
	"tutor-chat/internal/common/database"
	"tutor-chat/internal/common/envelope"
	httpx "tutor-chat/internal/common/http"
	"tutor-chat/internal/common/logger"
	"tutor-chat/internal/common/observability"
	"tutor-chat/internal/common/openai"
	"tutor-chat/internal/models"
)

type Server struct {
	cfg     *config.Config
	logger  logger.Logger
	redis   *database.RedisClient
	handler http.Handler
	http    *http.Server
}

// New builds every component named in cfg. Redis, when used, must already
// be reachable; see RetryWithBackoff.
func New(cfg *config.Config, log logger.Logger, obs *observability.Observability) (*Server, error) {
	s := &Server{cfg: cfg, logger: log}

	// Registry overrides are already folded into cfg by the loader.
	startCandidates, fetchCandidates := cfg.Agent.StartCandidates, cfg.Agent.FetchCandidates

	var decoderOpts []envelope.Option
	if len(cfg.Decoder.Keys) > 0 {
		decoderOpts = append(decoderOpts, envelope.WithKeys(cfg.Decoder.Keys...))
	}
	decoderOpts = append(decoderOpts,
		envelope.WithMaxDepth(cfg.Decoder.MaxDepth),
		envelope.WithDegradeHook(agent.DegradeHook(log)),
	)
	decoder := envelope.New(decoderOpts...)

	history, err := s.historyStore(context.Background())
	if err != nil {
		return nil, err
	}

	var completer *openai.ChatClient
	if cfg.Fallback.Enabled {
		completer = openai.NewChatClient(openai.Config{
			APIKey:       cfg.Fallback.APIKey,
			BaseURL:      cfg.Fallback.BaseURL,
			Model:        cfg.Fallback.Model,
			MaxTokens:    cfg.Fallback.MaxTokens,
			SystemPrompt: cfg.Fallback.SystemPrompt,
			Timeout:      config.GetDuration(cfg.Fallback.Timeout),
			MaxRetries:   cfg.Fallback.MaxRetries,
		})
	}

	deps := actions.Deps{
		Config:        cfg,
		History:       history,
		Decoder:       decoder,
		Observability: obs,
		Logger:        log,
	}
	if completer != nil {
		deps.Completer = completer
	}
	if cfg.RateLimit.Enabled {
		deps.RateLimiter = httpx.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	if cfg.Agent.MemoryMode == config.MemoryModeAgent {
		transport := httpx.NewClient(cfg.Agent.BaseURL, config.GetDuration(cfg.Agent.Timeout)+5*time.Second,
			httpx.WithBearerToken(cfg.Agent.APIKey))
		deps.Agent = agent.NewClient(transport, agent.Options{
			StartCandidates: startCandidates,
			FetchCandidates: fetchCandidates,
			Probe:           cfg.Agent.ProbeConfig(),
			Decoder:         decoder,
		}, log)
	}

	mux := http.NewServeMux()
	actions.Register(mux, deps)
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /ready", s.ready)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.handler = mux

	log.Info("server assembled", map[string]interface{}{
		"memoryMode":      cfg.Agent.MemoryMode,
		"startCandidates": len(startCandidates),
		"fetchCandidates": len(fetchCandidates),
		"fallback":        cfg.Fallback.Enabled,
		"history":         cfg.History.Enabled,
	})
	return s, nil
}

func (s *Server) historyStore(ctx context.Context) (models.HistoryStore, error) {
	h := s.cfg.History
	if !h.Enabled {
		return nil, nil
	}
	if h.Backend != "redis" {
		return database.NewMemoryHistoryStore(h.MaxTurns), nil
	}

	rc, err := database.NewRedis(s.cfg.Database.Redis)
	if err != nil {
		return nil, err
	}
	err = RetryWithBackoff(func() error { return rc.Ping(ctx) }, s.cfg.Database.Redis.ConnectRetries, time.Second, s.logger, "redis connection")
	if err != nil {
		rc.Close()
		return nil, err
	}
	s.redis = rc
	return rc.HistoryStore(h), nil
}

// Handler exposes the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:         s.cfg.Server.Address,
		Handler:      s.handler,
		ReadTimeout:  config.GetDuration(s.cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(s.cfg.Server.WriteTimeout),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", map[string]interface{}{"address": s.cfg.Server.Address})
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutdown signal received, draining requests", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(s.cfg.Server.ShutdownTimeout))
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) Close() error {
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, "healthy", nil)
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if s.redis != nil {
		if err := s.redis.Ping(r.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", map[string]string{"redis": err.Error()})
			return
		}
	}
	writeStatus(w, http.StatusOK, "ready", nil)
}

func writeStatus(w http.ResponseWriter, code int, status string, checks map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	body := map[string]interface{}{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}
	if len(checks) > 0 {
		body["checks"] = checks
	}
	json.NewEncoder(w).Encode(body)
}

// RetryWithBackoff attempts operation with exponential backoff.
func RetryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}
