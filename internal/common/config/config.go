// internal/common/config/config.go
package config

import (
	"time"

	"tutor-chat/internal/common/probe"
)

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Decoder   DecoderConfig   `mapstructure:"decoder"`
	Fallback  FallbackConfig  `mapstructure:"fallback"`
	Database  DatabaseConfig  `mapstructure:"database"`
	History   HistoryConfig   `mapstructure:"history"`
	Upload    UploadConfig    `mapstructure:"upload"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

// Memory modes.
const (
	MemoryModeAgent = "agent"
	MemoryModeLocal = "local"
)

// AgentConfig describes the remote agent service and how to probe it.
type AgentConfig struct {
	BaseURL         string            `mapstructure:"base_url"`
	APIKey          string            `mapstructure:"api_key"`
	Timeout         int               `mapstructure:"timeout"` // milliseconds, per attempt
	SuccessMin      int               `mapstructure:"success_min"`
	SuccessMax      int               `mapstructure:"success_max"`
	FailureFormat   string            `mapstructure:"failure_format"`
	MemoryMode      string            `mapstructure:"memory_mode"`
	RegistryPath    string            `mapstructure:"registry_path"`
	StartCandidates []probe.Candidate `mapstructure:"start_candidates"`
	FetchCandidates []probe.Candidate `mapstructure:"fetch_candidates"`
}

type DecoderConfig struct {
	MaxDepth int      `mapstructure:"max_depth"`
	Keys     []string `mapstructure:"keys"`
}

// FallbackConfig configures the plain chat-completion path.
type FallbackConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	MaxTokens    int    `mapstructure:"max_tokens"`
	Timeout      int    `mapstructure:"timeout"` // milliseconds
	MaxRetries   int    `mapstructure:"max_retries"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	ConnectRetries int `mapstructure:"connect_retries"`
	PoolSize       int `mapstructure:"pool_size"`
	MinIdleConns   int `mapstructure:"min_idle_conns"`
	DialTimeout    int `mapstructure:"dial_timeout"`  // milliseconds
	ReadTimeout    int `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout   int `mapstructure:"write_timeout"` // milliseconds
}

// HistoryConfig controls client-side conversation history.
type HistoryConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Backend   string `mapstructure:"backend"` // "redis" or "memory"
	TTL       int    `mapstructure:"ttl"`     // seconds
	MaxTurns  int    `mapstructure:"max_turns"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type UploadConfig struct {
	MaxBytes      int64    `mapstructure:"max_bytes"`
	AllowedTypes  []string `mapstructure:"allowed_types"`
	MaxTextLength int      `mapstructure:"max_text_length"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// DefaultSystemPrompt is the tutor persona used by the chat-completion path.
const DefaultSystemPrompt = "Du bist ein hilfsbereiter Mathe-Coach für SuS auf Sekundarstufe 1. Erkläre klar, freundlich und mit Beispielen."

// DefaultStartCandidates are best guesses for starting an agent run. They
// are configuration, not a verified contract.
func DefaultStartCandidates() []probe.Candidate {
	return []probe.Candidate{
		{Name: "session-runs", Method: "POST", Path: "/v1/sessions/{session_id}/runs", BodyKey: "input", SessionParam: probe.SessionPath},
		{Name: "agent-runs-input", Method: "POST", Path: "/v1/agents/runs", BodyKey: "input", SessionParam: probe.SessionBody},
		{Name: "agent-runs-message", Method: "POST", Path: "/v1/agents/runs", BodyKey: "message", SessionParam: probe.SessionBody},
		{Name: "agent-run-raw", Method: "POST", Path: "/v1/agent/run", SessionParam: probe.SessionBody},
	}
}

// DefaultFetchCandidates are best guesses for reading server-side memory.
func DefaultFetchCandidates() []probe.Candidate {
	return []probe.Candidate{
		{Name: "session-path", Method: "GET", Path: "/v1/sessions/{session_id}", SessionParam: probe.SessionPath},
		{Name: "memory-path", Method: "GET", Path: "/v1/agents/memory/{session_id}", SessionParam: probe.SessionPath},
		{Name: "session-query", Method: "GET", Path: "/v1/sessions", SessionParam: probe.SessionQuery},
	}
}

// AskBudget is the longest one chat request may take: a full round of
// start candidates in agent mode, then the chat completion when enabled.
func (c *Config) AskBudget() time.Duration {
	var d time.Duration
	if c.Agent.MemoryMode != MemoryModeLocal {
		d = GetDuration(c.Agent.Timeout) * time.Duration(len(c.Agent.StartCandidates))
	}
	if c.Fallback.Enabled {
		d += GetDuration(c.Fallback.Timeout)
	}
	return d
}

// MemoryBudget is the longest one memory read may take.
func (c *Config) MemoryBudget() time.Duration {
	return GetDuration(c.Agent.Timeout) * time.Duration(len(c.Agent.FetchCandidates))
}
