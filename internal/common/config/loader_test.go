package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-chat/internal/common/probe"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
agent:
  base_url: http://agent.local
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "tutor-chat", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 30000, cfg.Agent.Timeout)
	assert.Equal(t, 200, cfg.Agent.SuccessMin)
	assert.Equal(t, 299, cfg.Agent.SuccessMax)
	assert.Equal(t, MemoryModeAgent, cfg.Agent.MemoryMode)
	assert.Equal(t, DefaultStartCandidates(), cfg.Agent.StartCandidates)
	assert.Equal(t, DefaultFetchCandidates(), cfg.Agent.FetchCandidates)
	assert.Equal(t, 2, cfg.Decoder.MaxDepth)
	assert.Equal(t, "gpt-4o", cfg.Fallback.Model)
	assert.Equal(t, 1000, cfg.Fallback.MaxTokens)
	assert.Equal(t, DefaultSystemPrompt, cfg.Fallback.SystemPrompt)
	assert.Contains(t, cfg.Fallback.SystemPrompt, "Mathe-Coach für SuS auf Sekundarstufe 1")
	assert.Equal(t, []string{"image/png", "image/jpeg"}, cfg.Upload.AllowedTypes)
	assert.Equal(t, 10, cfg.Database.Redis.PoolSize)
	assert.Equal(t, 2, cfg.Database.Redis.MinIdleConns)
	assert.Equal(t, 5000, cfg.Database.Redis.DialTimeout)
	// Four start candidates at 30s each, no fallback, plus write headroom.
	assert.Equal(t, 125000, cfg.Server.WriteTimeout)
}

func TestLoadFromFile_CandidatesFromYAML(t *testing.T) {
	path := writeConfig(t, `
agent:
  base_url: http://agent.local
  timeout: 5000
  failure_format: inline
  start_candidates:
    - name: runs
      method: post
      path: /v2/runs
      body_key: message
      session_param: body
  fetch_candidates:
    - name: by-query
      method: GET
      path: /v2/memory
      session_param: query
      session_key: sid
decoder:
  keys: [answer, output]
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	require.Len(t, cfg.Agent.StartCandidates, 1)
	assert.Equal(t, probe.Candidate{Name: "runs", Method: "post", Path: "/v2/runs", BodyKey: "message", SessionParam: probe.SessionBody}, cfg.Agent.StartCandidates[0])
	require.Len(t, cfg.Agent.FetchCandidates, 1)
	assert.Equal(t, "sid", cfg.Agent.FetchCandidates[0].SessionKey)
	assert.Equal(t, []string{"answer", "output"}, cfg.Decoder.Keys)

	pc := cfg.Agent.ProbeConfig()
	assert.Equal(t, probe.FormatInline, pc.Format)
	assert.Equal(t, GetDuration(5000), pc.Timeout)
}

func TestLoadFromFile_EnvOverrides(t *testing.T) {
	t.Setenv("AGENT_BASE_URL", "http://from-env")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	path := writeConfig(t, `
fallback:
  enabled: true
  api_key: ${TUTOR_UNSET_KEY}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "http://from-env", cfg.Agent.BaseURL)
	assert.Equal(t, "sk-test", cfg.Fallback.APIKey)
}

func TestValidateConfig(t *testing.T) {
	base := func() *Config {
		cfg := &Config{Agent: AgentConfig{BaseURL: "http://agent"}}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing base url", mutate: func(c *Config) { c.Agent.BaseURL = "" }, wantErr: "agent.base_url"},
		{name: "unknown memory mode", mutate: func(c *Config) { c.Agent.MemoryMode = "cloud" }, wantErr: "memory_mode"},
		{name: "local without fallback", mutate: func(c *Config) { c.Agent.MemoryMode = MemoryModeLocal }, wantErr: "fallback.enabled"},
		{name: "local without history", mutate: func(c *Config) {
			c.Agent.MemoryMode = MemoryModeLocal
			c.Fallback.Enabled = true
			c.Fallback.APIKey = "k"
		}, wantErr: "history.enabled"},
		{name: "inverted status range", mutate: func(c *Config) { c.Agent.SuccessMin = 300 }, wantErr: "success_min"},
		{name: "bad failure format", mutate: func(c *Config) { c.Agent.FailureFormat = "xml" }, wantErr: "failure_format"},
		{name: "bad candidate", mutate: func(c *Config) {
			c.Agent.StartCandidates = []probe.Candidate{{Name: "x", Path: "no-slash"}}
		}, wantErr: "start_candidates"},
		{name: "fallback without key", mutate: func(c *Config) { c.Fallback.Enabled = true }, wantErr: "fallback.api_key"},
		{name: "write timeout below chat budget", mutate: func(c *Config) {
			c.Fallback.Enabled = true
			c.Fallback.APIKey = "k"
			c.Server.WriteTimeout = 150000
		}, wantErr: "server.write_timeout"},
		{name: "local mode only needs the completion budget", mutate: func(c *Config) {
			c.Agent.MemoryMode = MemoryModeLocal
			c.Fallback.Enabled = true
			c.Fallback.APIKey = "k"
			c.History.Enabled = true
			c.Server.WriteTimeout = 125000
		}},
		{name: "redis history without address", mutate: func(c *Config) {
			c.History.Enabled = true
			c.History.Backend = "redis"
		}, wantErr: "database.redis.address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_RegistryOverridesCandidatesAndBudget(t *testing.T) {
	dir := t.TempDir()
	registryPath := filepath.Join(dir, "agent-endpoints.json")
	require.NoError(t, os.WriteFile(registryPath, []byte(`{
  "version": "1.0.0",
  "operations": [
    {"id": "start-run", "candidates": [
      {"name": "a", "method": "POST", "path": "/a"},
      {"name": "b", "method": "POST", "path": "/b"},
      {"name": "c", "method": "POST", "path": "/c"},
      {"name": "d", "method": "POST", "path": "/d"},
      {"name": "e", "method": "POST", "path": "/e"},
      {"name": "f", "method": "POST", "path": "/f"}
    ]}
  ]
}`), 0o600))

	path := writeConfig(t, `
agent:
  base_url: http://agent.local
  timeout: 10000
  registry_path: `+registryPath+`
fallback:
  enabled: true
  api_key: sk-test
  timeout: 20000
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	require.Len(t, cfg.Agent.StartCandidates, 6)
	assert.Equal(t, "f", cfg.Agent.StartCandidates[5].Name)
	assert.Equal(t, DefaultFetchCandidates(), cfg.Agent.FetchCandidates)

	assert.Equal(t, 80*time.Second, cfg.AskBudget())
	assert.Equal(t, 30*time.Second, cfg.MemoryBudget())
	assert.Equal(t, 85000, cfg.Server.WriteTimeout)
}

func TestLoadFromFile_RegistryTooSlowForWriteTimeout(t *testing.T) {
	dir := t.TempDir()
	registryPath := filepath.Join(dir, "agent-endpoints.json")
	require.NoError(t, os.WriteFile(registryPath, []byte(`{
  "operations": [
    {"id": "start-run", "candidates": [
      {"name": "a", "method": "POST", "path": "/a"},
      {"name": "b", "method": "POST", "path": "/b"}
    ]}
  ]
}`), 0o600))

	path := writeConfig(t, `
server:
  write_timeout: 30000
agent:
  base_url: http://agent.local
  timeout: 10000
  registry_path: `+registryPath+`
fallback:
  enabled: true
  api_key: sk-test
  timeout: 20000
`)

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.write_timeout")
	assert.Contains(t, err.Error(), "2 start candidates")
}

func TestLoadFromFile_MissingRegistry(t *testing.T) {
	path := writeConfig(t, `
agent:
  base_url: http://agent.local
  registry_path: `+filepath.Join(t.TempDir(), "missing.json")+`
`)

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint registry")
}

func TestLoadFromFile_ShippedConfigFitsWriteTimeout(t *testing.T) {
	t.Chdir(filepath.Join("..", "..", ".."))
	t.Setenv("AGENT_BASE_URL", "http://agent.local")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadFromFile(filepath.Join("configs", "config.yaml"))
	require.NoError(t, err)

	assert.Len(t, cfg.Agent.StartCandidates, 4)
	assert.GreaterOrEqual(t, GetDuration(cfg.Server.WriteTimeout), cfg.AskBudget()+writeHeadroom)
}
