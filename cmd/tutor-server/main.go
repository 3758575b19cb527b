// cmd/tutor-server/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"tutor-chat/internal/common/config"
	"tutor-chat/internal/common/logger"
	"tutor-chat/internal/common/observability"
	"tutor-chat/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting tutor server...",
		zap.String("environment", cfg.App.Environment),
		zap.String("memoryMode", cfg.Agent.MemoryMode),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	srv, err := server.New(cfg, log, obs)
	if err != nil {
		zapLog.Fatal("server setup failed", zap.Error(err))
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		zapLog.Error("server stopped with error", zap.Error(err))
		return
	}
	zapLog.Info("Tutor server stopped gracefully")
}
