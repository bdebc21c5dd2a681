package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey string
	GeminiModel  string

	ChatTimeout   time.Duration
	ReportTimeout time.Duration
	Retries       int
	Backoff       time.Duration

	Port     string
	DataDir  string
	LogLevel string
}

func Load() (*Config, error) {
	// .env is optional — env vars may already be set (e.g. in production)
	_ = godotenv.Load()

	cfg := &Config{
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   os.Getenv("GEMINI_MODEL"),
		ChatTimeout:   parseDurationEnv("CHAT_TIMEOUT", 60*time.Second),
		ReportTimeout: parseDurationEnv("REPORT_TIMEOUT", 120*time.Second),
		Retries:       parseIntEnv("GEMINI_RETRIES", 2),
		Backoff:       parseDurationEnv("GEMINI_BACKOFF", 1*time.Second),
		Port:          os.Getenv("PORT"),
		DataDir:       os.Getenv("DATA_DIR"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
	}

	if cfg.GeminiModel == "" {
		cfg.GeminiModel = "gemini-2.5-flash"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("required env var GEMINI_API_KEY is not set")
	}

	return cfg, nil
}

func parseIntEnv(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func parseDurationEnv(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}
