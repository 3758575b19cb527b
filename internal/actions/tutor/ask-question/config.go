// internal/actions/tutor/ask-question/config.go
package askquestion

import (
	"time"

	"tutor-chat/internal/common/config"
)

type Config struct {
	Timeout       time.Duration
	MaxImageBytes int64
	AllowedTypes  []string
	MaxTextLength int
	MemoryMode    string
}

func LoadConfig(cfg *config.Config) *Config {
	return &Config{
		Timeout:       cfg.AskBudget(),
		MaxImageBytes: cfg.Upload.MaxBytes,
		AllowedTypes:  cfg.Upload.AllowedTypes,
		MaxTextLength: cfg.Upload.MaxTextLength,
		MemoryMode:    cfg.Agent.MemoryMode,
	}
}
