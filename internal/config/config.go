package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the triage CLI, tool server and API.
type Config struct {
	App        AppConfig
	Logger     LoggerConfig
	Completion CompletionConfig
	Bridge     BridgeConfig
	Redis      RedisConfig
	Auth       AuthConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string
	Output string
}

// CompletionConfig selects and tunes the text completion service.
type CompletionConfig struct {
	Provider        string
	Temperature     float64
	MaxOutputTokens int
	TimeoutSeconds  int

	GeminiAPIKey string
	GeminiModel  string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	AnthropicAPIKey string
	AnthropicModel  string

	OllamaHost  string
	OllamaModel string
}

// BridgeConfig describes how the tool server subprocess is launched and supervised.
type BridgeConfig struct {
	Command                 string
	Args                    string
	SearchPath              string
	HandshakeTimeoutSeconds int
	CallTimeoutSeconds      int
	ShutdownGraceSeconds    int
	// ReadyCheck adds a spawn-and-list-tools check to /health/ready.
	ReadyCheck              bool
}

// RedisConfig holds Redis connection values. An empty Addr disables event fan-out.
type RedisConfig struct {
	Addr                   string
	Password               string
	DB                     int
	EventsChannel          string
	PublishTimeoutSeconds  int
	PublishCooldownSeconds int
}

// AuthConfig defines API authentication parameters. An empty secret leaves the API open.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	temperature, err := strconv.ParseFloat(getEnv("TEMPERATURE", "0.2"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TEMPERATURE: %w", err)
	}
	maxTokens, err := strconv.Atoi(getEnv("MAX_OUTPUT_TOKENS", "1200"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_OUTPUT_TOKENS: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "itsm-triage"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 180),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Output: getEnv("LOG_OUTPUT", "stderr"),
		},
		Completion: CompletionConfig{
			Provider:        strings.ToLower(getEnv("COMPLETION_PROVIDER", "gemini")),
			Temperature:     temperature,
			MaxOutputTokens: maxTokens,
			TimeoutSeconds:  getEnvAsInt("COMPLETION_TIMEOUT_SECONDS", 0),
			GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
			GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
			OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
			OllamaModel:     getEnv("OLLAMA_MODEL", "llama3.1"),
		},
		Bridge: BridgeConfig{
			Command:                 getEnv("MCP_SERVER_COMMAND", "triage"),
			Args:                    getEnv("MCP_SERVER_ARGS", "mcp-server"),
			SearchPath:              getEnv("MCP_SERVER_PATH", executableDir()),
			HandshakeTimeoutSeconds: getEnvAsInt("MCP_HANDSHAKE_TIMEOUT_SECONDS", 15),
			CallTimeoutSeconds:      getEnvAsInt("MCP_CALL_TIMEOUT_SECONDS", 180),
			ShutdownGraceSeconds:    getEnvAsInt("MCP_SHUTDOWN_GRACE_SECONDS", 3),
			ReadyCheck:              getEnvAsBool("MCP_READY_CHECK", false),
		},
		Redis: RedisConfig{
			Addr:                   os.Getenv("REDIS_ADDR"),
			Password:               os.Getenv("REDIS_PASSWORD"),
			DB:                     redisDB,
			EventsChannel:          getEnv("REDIS_EVENTS_CHANNEL", "itsm-triage.events"),
			PublishTimeoutSeconds:  getEnvAsInt("REDIS_PUBLISH_TIMEOUT_SECONDS", 2),
			PublishCooldownSeconds: getEnvAsInt("REDIS_PUBLISH_COOLDOWN_SECONDS", 30),
		},
		Auth: AuthConfig{
			JWTSecret:             os.Getenv("AUTH_JWT_SECRET"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	return seconds(a.RequestTimeoutSeconds)
}

// Timeout bounds a single completion call; zero means unbounded.
func (c CompletionConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

func (b BridgeConfig) HandshakeTimeout() time.Duration { return seconds(b.HandshakeTimeoutSeconds) }
func (b BridgeConfig) CallTimeout() time.Duration      { return seconds(b.CallTimeoutSeconds) }
func (b BridgeConfig) ShutdownGrace() time.Duration    { return seconds(b.ShutdownGraceSeconds) }

func (r RedisConfig) PublishTimeout() time.Duration  { return seconds(r.PublishTimeoutSeconds) }
func (r RedisConfig) PublishCooldown() time.Duration { return seconds(r.PublishCooldownSeconds) }

// Enabled reports whether event fan-out to Redis is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Dir(exe)
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
