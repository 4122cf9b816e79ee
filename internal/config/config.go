package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds the configuration for the segscope service
type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Similarity SimilarityConfig
	Log        LogConfig
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Addr            string
	MaxConnections  int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// StorageConfig selects and configures the project store
type StorageConfig struct {
	Backend    string
	DataDir    string
	SQLitePath string
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// SimilarityConfig holds query settings
type SimilarityConfig struct {
	TopK           int
	ClearOnFailure bool
	Project        string // opened at startup when set
}

type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables with defaults.
// A .env file in the working directory is applied first when present;
// variables already set in the environment win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Addr:            GetStringEnv("SEGSCOPE_ADDR", ":8080"),
			MaxConnections:  GetIntEnv("SEGSCOPE_MAX_CONNECTIONS", 64),
			ReadTimeout:     GetDurationEnv("SEGSCOPE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    GetDurationEnv("SEGSCOPE_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: GetDurationEnv("SEGSCOPE_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Storage: StorageConfig{
			Backend:    GetStringEnv("STORAGE_BACKEND", BackendFile),
			DataDir:    GetStringEnv("STORAGE_DATA_DIR", "./data"),
			SQLitePath: GetStringEnv("STORAGE_SQLITE_PATH", "./data/projects.db"),
		},
		Similarity: SimilarityConfig{
			TopK:           GetIntEnv("SIMILAR_TOP_K", 5),
			ClearOnFailure: GetBoolEnv("SIMILAR_CLEAR_ON_FAILURE", false),
			Project:        GetStringEnv("SIMILAR_PROJECT", ""),
		},
		Log: LogConfig{
			Level:  GetStringEnv("LOG_LEVEL", "info"),
			Format: GetStringEnv("LOG_FORMAT", "text"),
		},
	}
}

// Validate checks values that have no safe fallback
func (c *Config) Validate() error {
	if c.Similarity.TopK <= 0 {
		return fmt.Errorf("SIMILAR_TOP_K must be positive, got %d", c.Similarity.TopK)
	}
	switch c.Storage.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// NewLogger builds the service logger from the log settings
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

func GetStringEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
