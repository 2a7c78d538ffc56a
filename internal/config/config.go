package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported LLM providers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// HTTP server
	ServerAddr string

	// LLM provider
	LLMProvider  string // ollama, openai, anthropic, bedrock
	LLMModel     string
	OllamaHost   string
	OpenAIKey    string
	AnthropicKey string

	// Signal store
	StoreDriver        string // sqlite, surreal, redis, memory
	SQLitePath         string
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string
	RedisAddr          string
	RedisPass          string
	RedisDB            int

	// Scan behavior
	PollInterval time.Duration
	ScanTimeout  time.Duration
	MaxSignals   int

	// Catalog files (optional; built-in defaults apply when empty)
	MissionsFile string
	FeedsFile    string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		ServerAddr: getEnv("RADAR_ADDR", ":8484"),

		// LLM
		LLMProvider:  getEnv("RADAR_LLM_PROVIDER", "ollama"),
		LLMModel:     getEnv("RADAR_LLM_MODEL", ""),
		OllamaHost:   getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicKey: getEnv("ANTHROPIC_API_KEY", ""),

		// Store
		StoreDriver:        getEnv("RADAR_STORE_DRIVER", "sqlite"),
		SQLitePath:         getEnv("RADAR_SQLITE_PATH", "radar.db"),
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "radar"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "signals"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),
		RedisAddr:          getEnv("RADAR_REDIS_ADDR", "localhost:6379"),
		RedisPass:          getEnv("RADAR_REDIS_PASS", ""),
		RedisDB:            getEnvInt("RADAR_REDIS_DB", 0),

		// Scan. The scan timeout must stay below upstream idle-connection
		// timeouts or clients see a dropped stream instead of an error line.
		PollInterval: getEnvDuration("RADAR_POLL_INTERVAL", time.Second),
		ScanTimeout:  getEnvDuration("RADAR_SCAN_TIMEOUT", 150*time.Second),
		MaxSignals:   getEnvInt("RADAR_MAX_SIGNALS", 8),

		// Catalogs
		MissionsFile: getEnv("RADAR_MISSIONS_FILE", ""),
		FeedsFile:    getEnv("RADAR_FEEDS_FILE", ""),

		// Logging
		LogFile:  getEnv("RADAR_LOG_FILE", "/tmp/radar.log"),
		LogLevel: parseLogLevel(getEnv("RADAR_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
