// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"tutor-chat/internal/common/probe"
	"tutor-chat/pkg/registry"
)

// writeHeadroom is left between the chat request budget and the server
// write timeout for encoding the reply.
const writeHeadroom = 5 * time.Second

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml and
// applies environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	// AGENT_BASE_URL overrides agent.base_url and so on.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	bindEnv(v)
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := applyRegistry(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// bindEnv registers keys that may only exist in the environment, so
// AutomaticEnv picks them up during Unmarshal.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"agent.base_url", "agent.api_key", "agent.memory_mode", "agent.registry_path",
		"fallback.enabled", "fallback.api_key", "fallback.base_url", "fallback.model",
		"database.redis.address", "database.redis.password",
		"history.enabled", "history.backend",
		"server.address", "logging.level", "logging.format",
	} {
		_ = v.BindEnv(key)
	}
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// expandEnvVars replaces ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			// Unset variables expand to "" so later env fallbacks can apply.
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets from conventional variable names.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Agent.APIKey == "" {
		if val := os.Getenv("AGENT_API_KEY"); val != "" {
			cfg.Agent.APIKey = val
		}
	}
	if cfg.Fallback.APIKey == "" {
		if val := os.Getenv("OPENAI_API_KEY"); val != "" {
			cfg.Fallback.APIKey = val
		}
	}
	if cfg.Database.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Database.Redis.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "tutor-chat"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30000
	}

	if cfg.Agent.Timeout == 0 {
		cfg.Agent.Timeout = 30000
	}
	if cfg.Agent.SuccessMin == 0 && cfg.Agent.SuccessMax == 0 {
		cfg.Agent.SuccessMin = probe.DefaultSuccessMin
		cfg.Agent.SuccessMax = probe.DefaultSuccessMax
	}
	if cfg.Agent.FailureFormat == "" {
		cfg.Agent.FailureFormat = string(probe.FormatLines)
	}
	if cfg.Agent.MemoryMode == "" {
		cfg.Agent.MemoryMode = MemoryModeAgent
	}
	if len(cfg.Agent.StartCandidates) == 0 {
		cfg.Agent.StartCandidates = DefaultStartCandidates()
	}
	if len(cfg.Agent.FetchCandidates) == 0 {
		cfg.Agent.FetchCandidates = DefaultFetchCandidates()
	}

	if cfg.Decoder.MaxDepth == 0 {
		cfg.Decoder.MaxDepth = 2
	}

	if cfg.Fallback.BaseURL == "" {
		cfg.Fallback.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Fallback.Model == "" {
		cfg.Fallback.Model = "gpt-4o"
	}
	if cfg.Fallback.MaxTokens == 0 {
		cfg.Fallback.MaxTokens = 1000
	}
	if cfg.Fallback.Timeout == 0 {
		cfg.Fallback.Timeout = 120000
	}
	if cfg.Fallback.SystemPrompt == "" {
		cfg.Fallback.SystemPrompt = DefaultSystemPrompt
	}

	redis := &cfg.Database.Redis
	if redis.ConnectRetries <= 0 {
		redis.ConnectRetries = 5
	}
	if redis.PoolSize == 0 {
		redis.PoolSize = 10
	}
	if redis.MinIdleConns == 0 {
		redis.MinIdleConns = 2
	}
	if redis.DialTimeout == 0 {
		redis.DialTimeout = 5000
	}
	if redis.ReadTimeout == 0 {
		redis.ReadTimeout = 3000
	}
	if redis.WriteTimeout == 0 {
		redis.WriteTimeout = 3000
	}

	if cfg.History.Backend == "" {
		cfg.History.Backend = "memory"
	}
	if cfg.History.TTL == 0 {
		cfg.History.TTL = 86400
	}
	if cfg.History.MaxTurns == 0 {
		cfg.History.MaxTurns = 50
	}
	if cfg.History.KeyPrefix == "" {
		cfg.History.KeyPrefix = "tutor:history:"
	}

	if cfg.Upload.MaxBytes == 0 {
		cfg.Upload.MaxBytes = 5 << 20
	}
	if len(cfg.Upload.AllowedTypes) == 0 {
		cfg.Upload.AllowedTypes = []string{"image/png", "image/jpeg"}
	}
	if cfg.Upload.MaxTextLength == 0 {
		cfg.Upload.MaxTextLength = 8000
	}

	if cfg.RateLimit.RPS == 0 {
		cfg.RateLimit.RPS = 2
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 5
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	// Derived last: depends on candidate counts and fallback settings.
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = int((cfg.AskBudget() + writeHeadroom) / time.Millisecond)
	}
}

// applyRegistry replaces the candidate lists with the endpoint registry's,
// per operation, so every budget derived later sees the lists actually probed.
func applyRegistry(cfg *Config) error {
	if cfg.Agent.RegistryPath == "" {
		return nil
	}
	reg, err := registry.LoadRegistry(cfg.Agent.RegistryPath)
	if err != nil {
		return fmt.Errorf("failed to load endpoint registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("invalid endpoint registry %s: %w", cfg.Agent.RegistryPath, err)
	}
	if c := reg.Candidates(registry.OperationStartRun); len(c) > 0 {
		cfg.Agent.StartCandidates = c
	}
	if c := reg.Candidates(registry.OperationFetchSession); len(c) > 0 {
		cfg.Agent.FetchCandidates = c
	}
	return nil
}

// validateConfig validates critical configuration fields.
func validateConfig(cfg *Config) error {
	switch cfg.Agent.MemoryMode {
	case MemoryModeAgent:
		if cfg.Agent.BaseURL == "" {
			return fmt.Errorf("agent.base_url is required in %q memory mode", MemoryModeAgent)
		}
	case MemoryModeLocal:
		if !cfg.Fallback.Enabled {
			return fmt.Errorf("fallback.enabled must be true in %q memory mode", MemoryModeLocal)
		}
	default:
		return fmt.Errorf("agent.memory_mode must be %q or %q, got %q", MemoryModeAgent, MemoryModeLocal, cfg.Agent.MemoryMode)
	}

	if cfg.Agent.SuccessMin > cfg.Agent.SuccessMax {
		return fmt.Errorf("agent.success_min (%d) is above agent.success_max (%d)", cfg.Agent.SuccessMin, cfg.Agent.SuccessMax)
	}
	switch probe.FailureFormat(cfg.Agent.FailureFormat) {
	case probe.FormatLines, probe.FormatInline:
	default:
		return fmt.Errorf("agent.failure_format must be %q or %q", probe.FormatLines, probe.FormatInline)
	}
	if err := probe.ValidateAll(cfg.Agent.StartCandidates); err != nil {
		return fmt.Errorf("agent.start_candidates: %w", err)
	}
	if err := probe.ValidateAll(cfg.Agent.FetchCandidates); err != nil {
		return fmt.Errorf("agent.fetch_candidates: %w", err)
	}

	if cfg.Fallback.Enabled && cfg.Fallback.APIKey == "" {
		return fmt.Errorf("fallback.api_key is required when fallback is enabled")
	}

	if cfg.History.Enabled {
		switch cfg.History.Backend {
		case "memory":
		case "redis":
			if cfg.Database.Redis.Address == "" {
				return fmt.Errorf("database.redis.address is required for the redis history backend")
			}
		default:
			return fmt.Errorf("history.backend must be \"redis\" or \"memory\", got %q", cfg.History.Backend)
		}
	}
	if cfg.Agent.MemoryMode == MemoryModeLocal && !cfg.History.Enabled {
		return fmt.Errorf("history.enabled must be true in %q memory mode", MemoryModeLocal)
	}

	// The handler must still be able to write the fallback reply.
	if need := cfg.AskBudget() + writeHeadroom; GetDuration(cfg.Server.WriteTimeout) < need {
		return fmt.Errorf("server.write_timeout (%dms) is below the chat request budget of %dms (agent.timeout x %d start candidates + fallback.timeout + %dms)",
			cfg.Server.WriteTimeout, need.Milliseconds(), len(cfg.Agent.StartCandidates), writeHeadroom.Milliseconds())
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// ProbeConfig derives the prober settings from the agent section.
func (a AgentConfig) ProbeConfig() probe.Config {
	return probe.Config{
		Timeout:    GetDuration(a.Timeout),
		SuccessMin: a.SuccessMin,
		SuccessMax: a.SuccessMax,
		Format:     probe.FailureFormat(a.FailureFormat),
	}
}
