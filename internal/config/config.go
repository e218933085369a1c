// Package config loads ragpipe configuration from an optional YAML file
// layered under environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values. Precedence: defaults, then the
// YAML file, then environment variables.
type Config struct {
	// Embedding provider
	Provider       string `yaml:"provider"`
	APIKey         string `yaml:"api_key"`
	EmbeddingModel string `yaml:"embedding_model"`
	Dimension      int    `yaml:"dimension"`

	// Tokenizer model used for counting (tiktoken encoding lookup)
	TokenizerModel string `yaml:"tokenizer_model"`

	// Chunking
	ChunkMaxTokens     int    `yaml:"chunk_max_tokens"`
	ChunkMinTokens     int    `yaml:"chunk_min_tokens"`
	ChunkOverlapTokens int    `yaml:"chunk_overlap_tokens"`
	ChunkStrategy      string `yaml:"chunk_strategy"`

	// Rate limiting (per sliding window)
	RequestsPerWindow int  `yaml:"requests_per_window"`
	TokensPerWindow   int  `yaml:"tokens_per_window"`
	WindowSeconds     int  `yaml:"window_seconds"`
	SmoothRate        bool `yaml:"smooth_rate"`

	// Circuit breaker
	BreakerThreshold int `yaml:"breaker_threshold"`
	BreakerCooldown  int `yaml:"breaker_cooldown_seconds"`

	// Embedding pipeline
	MaxBatchItems  int `yaml:"max_batch_items"`
	MaxBatchTokens int `yaml:"max_batch_tokens"`
	Workers        int `yaml:"workers"`
	CallTimeout    int `yaml:"call_timeout_seconds"`
	RetryAttempts  int `yaml:"retry_attempts"`
	CacheSize      int `yaml:"cache_size"`

	// Storage and serving
	StorePath  string `yaml:"store_path"`
	ListenAddr string `yaml:"listen_addr"`

	// Logging
	LogFile      string     `yaml:"log_file"`
	LogLevel     slog.Level `yaml:"-"`
	LogLevelName string     `yaml:"log_level"`
}

// Load reads configuration. path names an optional YAML file; empty path
// checks RAGPIPE_CONFIG, then falls through to defaults plus env.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path == "" {
		path = os.Getenv("RAGPIPE_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)
	return cfg, nil
}

func defaults() Config {
	return Config{
		Provider:       "openai",
		EmbeddingModel: "", // provider default
		TokenizerModel: "text-embedding-3-small",

		ChunkMaxTokens:     1000,
		ChunkMinTokens:     100,
		ChunkOverlapTokens: 200,
		ChunkStrategy:      "auto",

		RequestsPerWindow: 3000,
		TokensPerWindow:   1_000_000,
		WindowSeconds:     60,

		BreakerThreshold: 5,
		BreakerCooldown:  30,

		MaxBatchItems:  128,
		MaxBatchTokens: 50_000,
		Workers:        4,
		CallTimeout:    30,
		RetryAttempts:  3,
		CacheSize:      4096,

		StorePath:  "ragpipe.db",
		ListenAddr: ":8080",

		LogFile:      "",
		LogLevelName: "INFO",
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Provider, "RAGPIPE_PROVIDER")
	setString(&cfg.APIKey, "RAGPIPE_API_KEY")
	setString(&cfg.EmbeddingModel, "RAGPIPE_EMBEDDING_MODEL")
	setInt(&cfg.Dimension, "RAGPIPE_DIMENSION")
	setString(&cfg.TokenizerModel, "RAGPIPE_TOKENIZER_MODEL")

	setInt(&cfg.ChunkMaxTokens, "RAGPIPE_CHUNK_MAX_TOKENS")
	setInt(&cfg.ChunkMinTokens, "RAGPIPE_CHUNK_MIN_TOKENS")
	setInt(&cfg.ChunkOverlapTokens, "RAGPIPE_CHUNK_OVERLAP_TOKENS")
	setString(&cfg.ChunkStrategy, "RAGPIPE_CHUNK_STRATEGY")

	setInt(&cfg.RequestsPerWindow, "RAGPIPE_REQUESTS_PER_WINDOW")
	setInt(&cfg.TokensPerWindow, "RAGPIPE_TOKENS_PER_WINDOW")
	setInt(&cfg.WindowSeconds, "RAGPIPE_WINDOW_SECONDS")
	setBool(&cfg.SmoothRate, "RAGPIPE_SMOOTH_RATE")

	setInt(&cfg.BreakerThreshold, "RAGPIPE_BREAKER_THRESHOLD")
	setInt(&cfg.BreakerCooldown, "RAGPIPE_BREAKER_COOLDOWN_SECONDS")

	setInt(&cfg.MaxBatchItems, "RAGPIPE_MAX_BATCH_ITEMS")
	setInt(&cfg.MaxBatchTokens, "RAGPIPE_MAX_BATCH_TOKENS")
	setInt(&cfg.Workers, "RAGPIPE_WORKERS")
	setInt(&cfg.CallTimeout, "RAGPIPE_CALL_TIMEOUT_SECONDS")
	setInt(&cfg.RetryAttempts, "RAGPIPE_RETRY_ATTEMPTS")
	setInt(&cfg.CacheSize, "RAGPIPE_CACHE_SIZE")

	setString(&cfg.StorePath, "RAGPIPE_STORE_PATH")
	setString(&cfg.ListenAddr, "RAGPIPE_LISTEN_ADDR")

	setString(&cfg.LogFile, "RAGPIPE_LOG_FILE")
	setString(&cfg.LogLevelName, "RAGPIPE_LOG_LEVEL")

	// Common provider key variables work as fallbacks.
	if cfg.APIKey == "" {
		switch cfg.Provider {
		case "voyage":
			cfg.APIKey = os.Getenv("VOYAGE_API_KEY")
		default:
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val == "true" || val == "1"
	}
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
