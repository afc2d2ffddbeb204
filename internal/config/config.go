package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Port           string
	BaseURL        string
	DataDir        string
	MaxUploadBytes int64
	DeleteToken    string
	ShareSecret    string
	ShareTTL       time.Duration
	WorkerCount    int
	JobRetention   time.Duration
	LogDevelopment bool
}

func LoadConfig() (Config, error) {
	cfg := Config{}

	cfg.Port = envOrDefault("PORT", "8080")
	cfg.BaseURL = envOrDefault("BASE_URL", fmt.Sprintf("http://localhost:%s", cfg.Port))
	cfg.DataDir = envOrDefault("DATA_DIR", "data")
	cfg.DeleteToken = envOrDefault("DELETE_TOKEN", "change-me")
	cfg.ShareSecret = envOrDefault("SHARE_SECRET", "change-me")
	cfg.LogDevelopment = envOrDefault("LOG_DEVELOPMENT", "") != ""

	maxUploadMB, err := parseIntEnv("MAX_UPLOAD_MB", 500)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_UPLOAD_MB: %w", err)
	}
	cfg.MaxUploadBytes = maxUploadMB * 1024 * 1024

	workerCount, err := parseIntEnv("WORKER_COUNT", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse WORKER_COUNT: %w", err)
	}
	if workerCount < 1 {
		workerCount = 1
	}
	cfg.WorkerCount = int(workerCount)

	retentionMinutes, err := parseIntEnv("JOB_RETENTION_MINUTES", 60)
	if err != nil {
		return Config{}, fmt.Errorf("parse JOB_RETENTION_MINUTES: %w", err)
	}
	cfg.JobRetention = time.Duration(retentionMinutes) * time.Minute

	shareTTLSeconds, err := parseIntEnv("SHARE_TTL_SECONDS", 86400)
	if err != nil {
		return Config{}, fmt.Errorf("parse SHARE_TTL_SECONDS: %w", err)
	}
	cfg.ShareTTL = time.Duration(shareTTLSeconds) * time.Second

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.DataDir = absDataDir

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int64) (int64, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}

	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return num, nil
}
