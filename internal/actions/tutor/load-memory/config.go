// internal/actions/tutor/load-memory/config.go
package loadmemory

import (
	"time"

	"tutor-chat/internal/common/config"
)

type Config struct {
	Timeout    time.Duration
	MemoryMode string
}

func LoadConfig(cfg *config.Config) *Config {
	return &Config{
		Timeout:    cfg.MemoryBudget(),
		MemoryMode: cfg.Agent.MemoryMode,
	}
}
