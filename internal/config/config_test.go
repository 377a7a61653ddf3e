package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"COMPLETION_PROVIDER", "TEMPERATURE", "MAX_OUTPUT_TOKENS", "GEMINI_MODEL",
		"MCP_SERVER_COMMAND", "MCP_SERVER_ARGS", "REDIS_ADDR", "AUTH_JWT_SECRET",
		"MCP_CALL_TIMEOUT_SECONDS", "COMPLETION_TIMEOUT_SECONDS", "LOG_OUTPUT",
		"REDIS_PUBLISH_TIMEOUT_SECONDS", "REDIS_PUBLISH_COOLDOWN_SECONDS", "MCP_READY_CHECK",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Completion.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.Completion.GeminiModel)
	assert.InDelta(t, 0.2, cfg.Completion.Temperature, 1e-9)
	assert.Equal(t, 1200, cfg.Completion.MaxOutputTokens)
	assert.Zero(t, cfg.Completion.Timeout())
	assert.Equal(t, "triage", cfg.Bridge.Command)
	assert.Equal(t, "mcp-server", cfg.Bridge.Args)
	assert.Equal(t, 180*time.Second, cfg.Bridge.CallTimeout())
	assert.False(t, cfg.Bridge.ReadyCheck)
	assert.Equal(t, "stderr", cfg.Logger.Output)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 2*time.Second, cfg.Redis.PublishTimeout())
	assert.Equal(t, 30*time.Second, cfg.Redis.PublishCooldown())
	assert.Empty(t, cfg.Auth.JWTSecret)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("COMPLETION_PROVIDER", "OpenAI")
	t.Setenv("TEMPERATURE", "0.7")
	t.Setenv("MAX_OUTPUT_TOKENS", "2048")
	t.Setenv("MCP_SERVER_COMMAND", "/opt/triage/bin/triage")
	t.Setenv("MCP_SERVER_ARGS", "mcp-server --verbose")
	t.Setenv("MCP_SERVER_PATH", "/opt/triage/bin")
	t.Setenv("MCP_HANDSHAKE_TIMEOUT_SECONDS", "not-a-number")
	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("MCP_READY_CHECK", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Completion.Provider)
	assert.InDelta(t, 0.7, cfg.Completion.Temperature, 1e-9)
	assert.Equal(t, 2048, cfg.Completion.MaxOutputTokens)
	assert.Equal(t, "/opt/triage/bin/triage", cfg.Bridge.Command)
	assert.Equal(t, "mcp-server --verbose", cfg.Bridge.Args)
	assert.Equal(t, "/opt/triage/bin", cfg.Bridge.SearchPath)
	assert.Equal(t, 15*time.Second, cfg.Bridge.HandshakeTimeout())
	assert.True(t, cfg.Redis.Enabled())
	assert.True(t, cfg.Bridge.ReadyCheck)
}

func TestLoadRejectsBadGenerationParams(t *testing.T) {
	t.Setenv("TEMPERATURE", "warm")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TEMPERATURE")

	t.Setenv("TEMPERATURE", "0.1")
	t.Setenv("MAX_OUTPUT_TOKENS", "lots")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_OUTPUT_TOKENS")
}
