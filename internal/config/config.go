// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// JWT Authentication
	JWTSecret string `koanf:"jwt_secret"`

	// Logging
	LogLevel         string `koanf:"log_level"`
	LogDir           string `koanf:"log_dir"`
	LogRetentionDays int    `koanf:"log_retention_days"`
	LogConsole       bool   `koanf:"log_console"`
	LogFile          bool   `koanf:"log_file"`
	LogMaxFileSizeMB int    `koanf:"log_max_file_size_mb"`

	// Error tracking
	ErrorDedupeWindowMS          int `koanf:"error_dedupe_window_ms"`
	ErrorDedupeCleanupIntervalMS int `koanf:"error_dedupe_cleanup_interval_ms"`

	// Rate limiting
	RateLimitPerMinute int `koanf:"rate_limit_per_minute"`

	// Redis (optional; enables shared rate limiting and health checks)
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`

	// Archive (S3-compatible object storage for expired log files)
	ArchiveBucketName      string `koanf:"archive_bucket_name"`
	ArchiveAccessKeyID     string `koanf:"archive_access_key_id"`
	ArchiveSecretAccessKey string `koanf:"archive_secret_access_key"`
	ArchiveEndpoint        string `koanf:"archive_endpoint"`
	ArchivePrefix          string `koanf:"archive_prefix"`
}

// Configuration validation errors.
var (
	ErrMissingJWTSecret              = errors.New("JWT_SECRET is required")
	ErrMissingLogDir                 = errors.New("LOG_DIR is required")
	ErrInvalidLogLevel               = errors.New("LOG_LEVEL must be one of debug, info, warn, error, fatal")
	ErrInvalidRetentionDays          = errors.New("LOG_RETENTION_DAYS must be at least 1")
	ErrInvalidDedupeWindow           = errors.New("ERROR_DEDUPE_WINDOW_MS must be positive")
	ErrInvalidDedupeCleanupInterval  = errors.New("ERROR_DEDUPE_CLEANUP_INTERVAL_MS must be positive")
	ErrMissingArchiveBucketName      = errors.New("ARCHIVE_BUCKET_NAME is required")
	ErrMissingArchiveAccessKeyID     = errors.New("ARCHIVE_ACCESS_KEY_ID is required")
	ErrMissingArchiveSecretAccessKey = errors.New("ARCHIVE_SECRET_ACCESS_KEY is required")
	ErrMissingArchiveEndpoint        = errors.New("ARCHIVE_ENDPOINT is required")
	ErrInvalidInteger                = errors.New("must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultPort                         = 8080
	DefaultEnv                          = "development"
	DefaultLogLevel                     = "info"
	DefaultLogDir                       = "logs"
	DefaultLogRetentionDays             = 30
	DefaultLogMaxFileSizeMB             = 100
	DefaultErrorDedupeWindowMS          = 60_000
	DefaultErrorDedupeCleanupIntervalMS = 300_000
	DefaultRateLimitPerMinute           = 120
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
	"fatal": true,
}

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Try PINSTACK_PORT first, then PORT for backward compatibility
	port, portErr := getEnvIntOrDefaultMulti([]string{"PINSTACK_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	retentionDays, retentionErr := getEnvIntOrDefault("LOG_RETENTION_DAYS", k.Int("log_retention_days"), DefaultLogRetentionDays)
	if retentionErr != nil {
		loadErrs = append(loadErrs, retentionErr)
	}

	maxFileSize, maxFileSizeErr := getEnvIntOrDefault("LOG_MAX_FILE_SIZE_MB", k.Int("log_max_file_size_mb"), DefaultLogMaxFileSizeMB)
	if maxFileSizeErr != nil {
		loadErrs = append(loadErrs, maxFileSizeErr)
	}

	dedupeWindow, dedupeWindowErr := getEnvIntOrDefault("ERROR_DEDUPE_WINDOW_MS", k.Int("error_dedupe_window_ms"), DefaultErrorDedupeWindowMS)
	if dedupeWindowErr != nil {
		loadErrs = append(loadErrs, dedupeWindowErr)
	}

	dedupeCleanup, dedupeCleanupErr := getEnvIntOrDefault("ERROR_DEDUPE_CLEANUP_INTERVAL_MS", k.Int("error_dedupe_cleanup_interval_ms"), DefaultErrorDedupeCleanupIntervalMS)
	if dedupeCleanupErr != nil {
		loadErrs = append(loadErrs, dedupeCleanupErr)
	}

	rateLimit, rateLimitErr := getEnvIntOrDefault("RATE_LIMIT_PER_MINUTE", k.Int("rate_limit_per_minute"), DefaultRateLimitPerMinute)
	if rateLimitErr != nil {
		loadErrs = append(loadErrs, rateLimitErr)
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                         port,
		Env:                          getEnvOrDefaultMulti([]string{"PINSTACK_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		JWTSecret:                    getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		LogLevel:                     strings.ToLower(getEnvOrDefault("LOG_LEVEL", k.String("log_level"), DefaultLogLevel)),
		LogDir:                       getEnvOrDefault("LOG_DIR", k.String("log_dir"), DefaultLogDir),
		LogRetentionDays:             retentionDays,
		LogConsole:                   getEnvBoolOrDefault("LOG_CONSOLE", k, "log_console", true),
		LogFile:                      getEnvBoolOrDefault("LOG_FILE", k, "log_file", true),
		LogMaxFileSizeMB:             maxFileSize,
		ErrorDedupeWindowMS:          dedupeWindow,
		ErrorDedupeCleanupIntervalMS: dedupeCleanup,
		RateLimitPerMinute:           rateLimit,
		RedisAddr:                    getEnvOrKoanf("REDIS_ADDR", k, "redis_addr"),
		RedisPassword:                getEnvOrKoanf("REDIS_PASSWORD", k, "redis_password"),
		ArchiveBucketName:            getEnvOrKoanf("ARCHIVE_BUCKET_NAME", k, "archive_bucket_name"),
		ArchiveAccessKeyID:           getEnvOrKoanf("ARCHIVE_ACCESS_KEY_ID", k, "archive_access_key_id"),
		ArchiveSecretAccessKey:       getEnvOrKoanf("ARCHIVE_SECRET_ACCESS_KEY", k, "archive_secret_access_key"),
		ArchiveEndpoint:              getEnvOrKoanf("ARCHIVE_ENDPOINT", k, "archive_endpoint"),
		ArchivePrefix:                getEnvOrKoanf("ARCHIVE_PREFIX", k, "archive_prefix"),
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// DedupeWindow returns the error deduplication window as a duration.
func (c *Config) DedupeWindow() time.Duration {
	return time.Duration(c.ErrorDedupeWindowMS) * time.Millisecond
}

// DedupeCleanupInterval returns the dedupe cache sweep interval as a duration.
func (c *Config) DedupeCleanupInterval() time.Duration {
	return time.Duration(c.ErrorDedupeCleanupIntervalMS) * time.Millisecond
}

// ArchiveEnabled reports whether any archive storage setting is present.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveBucketName != "" || c.ArchiveAccessKeyID != "" ||
		c.ArchiveSecretAccessKey != "" || c.ArchiveEndpoint != ""
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
// Note: a zero value from a YAML file falls back to the default; zero is not representable in YAML files.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidInteger)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s: %w", key, ErrInvalidInteger)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvBoolOrDefault returns the environment variable as bool if set, otherwise the koanf value, or default.
// Accepts the usual spellings: true/1/yes/on and false/0/no/off. Unrecognized values keep the default.
func getEnvBoolOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	result := defaultVal
	if k.Exists(koanfKey) {
		result = k.Bool(koanfKey)
	}
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			result = true
		case "false", "0", "no", "off":
			result = false
		}
	}
	return result
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.LogDir == "" {
		errs = append(errs, ErrMissingLogDir)
	}
	if !validLogLevels[c.LogLevel] {
		errs = append(errs, ErrInvalidLogLevel)
	}
	if c.LogRetentionDays < 1 {
		errs = append(errs, ErrInvalidRetentionDays)
	}
	if c.ErrorDedupeWindowMS <= 0 {
		errs = append(errs, ErrInvalidDedupeWindow)
	}
	if c.ErrorDedupeCleanupIntervalMS <= 0 {
		errs = append(errs, ErrInvalidDedupeCleanupInterval)
	}

	// Archive configuration is optional. Only validate fields if any archive value is set.
	if c.ArchiveEnabled() {
		if c.ArchiveBucketName == "" {
			errs = append(errs, ErrMissingArchiveBucketName)
		}
		if c.ArchiveAccessKeyID == "" {
			errs = append(errs, ErrMissingArchiveAccessKeyID)
		}
		if c.ArchiveSecretAccessKey == "" {
			errs = append(errs, ErrMissingArchiveSecretAccessKey)
		}
		if c.ArchiveEndpoint == "" {
			errs = append(errs, ErrMissingArchiveEndpoint)
		}
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                             fmt.Sprintf("%d", c.Port),
		"env":                              c.Env,
		"jwt_secret":                       maskSecret(c.JWTSecret),
		"log_level":                        c.LogLevel,
		"log_dir":                          c.LogDir,
		"log_retention_days":               fmt.Sprintf("%d", c.LogRetentionDays),
		"log_console":                      fmt.Sprintf("%t", c.LogConsole),
		"log_file":                         fmt.Sprintf("%t", c.LogFile),
		"log_max_file_size_mb":             fmt.Sprintf("%d", c.LogMaxFileSizeMB),
		"error_dedupe_window_ms":           fmt.Sprintf("%d", c.ErrorDedupeWindowMS),
		"error_dedupe_cleanup_interval_ms": fmt.Sprintf("%d", c.ErrorDedupeCleanupIntervalMS),
		"rate_limit_per_minute":            fmt.Sprintf("%d", c.RateLimitPerMinute),
		"redis_addr":                       valueOrNotSet(c.RedisAddr),
		"redis_password":                   maskSecret(c.RedisPassword),
		"archive_bucket_name":              valueOrNotSet(c.ArchiveBucketName),
		"archive_access_key_id":            maskSecret(c.ArchiveAccessKeyID),
		"archive_secret_access_key":        maskSecret(c.ArchiveSecretAccessKey),
		"archive_endpoint":                 valueOrNotSet(c.ArchiveEndpoint),
		"archive_prefix":                   valueOrNotSet(c.ArchivePrefix),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

func valueOrNotSet(s string) string {
	if s == "" {
		return "<not set>"
	}
	return s
}
