// Package config centralizes runtime configuration. Values come from an
// optional YAML file (LITUPLOAD_CONFIG) overridden by environment variables;
// `.env` files are loaded by main before Load runs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration for the service.
type Config struct {
	Address         string        `yaml:"address"`
	DatabaseURL     string        `yaml:"database_url"`
	S3Endpoint      string        `yaml:"s3_endpoint"`
	S3AccessKey     string        `yaml:"s3_access_key"`
	S3SecretKey     string        `yaml:"s3_secret_key"`
	S3Bucket        string        `yaml:"s3_bucket"`
	S3Region        string        `yaml:"s3_region"`
	S3UseSSL        bool          `yaml:"s3_use_ssl"`
	MaxArchiveBytes int64         `yaml:"max_archive_bytes"`
	ScratchRoot     string        `yaml:"scratch_root"`
	JobMaxAge       time.Duration `yaml:"job_max_age"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	UploadRPS       float64       `yaml:"upload_rps"`
	UploadBurst     int           `yaml:"upload_burst"`
}

const (
	defaultAddress         = ":8080"
	defaultMaxArchiveBytes = 500 << 20 // 500 MiB
	defaultJobMaxAge       = 24 * time.Hour
	defaultCleanupInterval = time.Hour
	defaultUploadRPS       = 2.0
	defaultUploadBurst     = 5
	defaultS3Bucket        = "agr-literature"
)

// Load builds the configuration: defaults, then the optional YAML file, then
// environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Address:         defaultAddress,
		MaxArchiveBytes: defaultMaxArchiveBytes,
		ScratchRoot:     filepath.Join(os.TempDir(), "litupload"),
		JobMaxAge:       defaultJobMaxAge,
		CleanupInterval: defaultCleanupInterval,
		UploadRPS:       defaultUploadRPS,
		UploadBurst:     defaultUploadBurst,
		S3Bucket:        defaultS3Bucket,
		S3Region:        "us-east-1",
	}

	if path := os.Getenv("LITUPLOAD_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Address = readEnv("LITUPLOAD_ADDRESS", cfg.Address)
	cfg.DatabaseURL = readEnv("LITUPLOAD_DATABASE_URL", cfg.DatabaseURL)
	cfg.S3Endpoint = readEnv("LITUPLOAD_S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3AccessKey = readEnv("LITUPLOAD_S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = readEnv("LITUPLOAD_S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3Bucket = readEnv("LITUPLOAD_S3_BUCKET", cfg.S3Bucket)
	cfg.S3Region = readEnv("LITUPLOAD_S3_REGION", cfg.S3Region)
	cfg.S3UseSSL = parseBool("LITUPLOAD_S3_USE_SSL", cfg.S3UseSSL)
	cfg.MaxArchiveBytes = parseInt64("LITUPLOAD_MAX_ARCHIVE_BYTES", cfg.MaxArchiveBytes)
	cfg.ScratchRoot = readEnv("LITUPLOAD_SCRATCH_ROOT", cfg.ScratchRoot)
	cfg.JobMaxAge = parseDuration("LITUPLOAD_JOB_MAX_AGE", cfg.JobMaxAge)
	cfg.CleanupInterval = parseDuration("LITUPLOAD_CLEANUP_INTERVAL", cfg.CleanupInterval)
	cfg.UploadRPS = parseFloat("LITUPLOAD_UPLOAD_RPS", cfg.UploadRPS)
	cfg.UploadBurst = parseInt("LITUPLOAD_UPLOAD_BURST", cfg.UploadBurst)

	if cfg.MaxArchiveBytes <= 0 {
		cfg.MaxArchiveBytes = defaultMaxArchiveBytes
	}
	if cfg.JobMaxAge <= 0 {
		cfg.JobMaxAge = defaultJobMaxAge
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}
	if cfg.UploadRPS <= 0 {
		cfg.UploadRPS = defaultUploadRPS
	}
	if cfg.UploadBurst <= 0 {
		cfg.UploadBurst = defaultUploadBurst
	}
	return cfg, nil
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
