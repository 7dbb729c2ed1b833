package config

import (
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/orgoj/lokilog/internal/iputil"
	"gopkg.in/yaml.v3"
)

// LogRotation defines parameters for local log file rotation.
type LogRotation struct {
	MaxSize    string `yaml:"max_size,omitempty"`    // MB, e.g. "10" (units accepted for compatibility)
	MaxAge     string `yaml:"max_age,omitempty"`     // e.g., "7d", "48h"
	MaxBackups int    `yaml:"max_backups,omitempty" validate:"gte=0"`
	Compress   bool   `yaml:"compress,omitempty"`
}

// Config represents the application configuration
type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment" validate:"required"`
	} `yaml:"app"`

	Loki struct {
		BaseURL         string            `yaml:"base_url" validate:"required"`
		Timeout         string            `yaml:"timeout,omitempty"`          // e.g. "5s", empty means no client timeout
		CompressionType string            `yaml:"compression_type,omitempty"` // none or gzip, default none
		Headers         map[string]string `yaml:"headers,omitempty"`          // sent with every push, e.g. X-Scope-OrgID
	} `yaml:"loki"`

	AppLog struct {
		Level    string      `yaml:"level"`
		Format   string      `yaml:"format"`         // text or json
		Path     string      `yaml:"path,omitempty"` // empty means stdout
		Rotation LogRotation `yaml:"rotation,omitempty"`

		// Log relay /health requests at INFO
		ShowHealthLogs bool `yaml:"show_health_logs"`
	} `yaml:"app_log"`

	Relay struct {
		Enabled          bool     `yaml:"enabled"`
		Host             string   `yaml:"host"`
		Port             int      `yaml:"port"`
		Mode             string   `yaml:"mode"` // production or debug
		TrustedProxies   []string `yaml:"trusted_proxies"`
		ClientIPHeader   string   `yaml:"client_ip_header,omitempty"`
		MaxMessageLength int      `yaml:"max_message_length,omitempty"`
		RequestLimits    struct {
			MaxBodySize int `yaml:"max_body_size"` // bytes
			RateLimit   int `yaml:"rate_limit"`    // requests per minute per client IP, 0 disables
		} `yaml:"request_limits"`
	} `yaml:"relay"`
}

// LoadConfig loads and validates the configuration from a file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config
	cfg.App.Name = "lokilog"
	cfg.AppLog.Level = "INFO"
	cfg.AppLog.Format = "text"
	cfg.Relay.Host = "0.0.0.0"
	cfg.Relay.Port = 8080
	cfg.Relay.Mode = "production"
	cfg.Relay.MaxMessageLength = 8192

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file '%s': %w", path, err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// validateConfig performs semantic validation of the configuration
func validateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.App.Environment) == "" {
		return errors.New("app.environment cannot be empty")
	}
	if strings.TrimSpace(cfg.Loki.BaseURL) == "" {
		return errors.New("loki.base_url cannot be empty")
	}
	u, err := url.Parse(cfg.Loki.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid loki.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid loki.base_url '%s': scheme must be 'http' or 'https'", cfg.Loki.BaseURL)
	}
	if cfg.Loki.Timeout != "" {
		if _, err := ParseDuration(cfg.Loki.Timeout); err != nil {
			return fmt.Errorf("invalid loki.timeout: %w", err)
		}
	}
	switch cfg.Loki.CompressionType {
	case "":
		cfg.Loki.CompressionType = "none"
	case "none", "gzip":
	default:
		return fmt.Errorf("invalid loki.compression_type '%s', must be 'gzip' or 'none'", cfg.Loki.CompressionType)
	}

	// Local log output
	switch strings.ToUpper(cfg.AppLog.Level) {
	case "TRACE", "DEBUG", "INFO", "WARN", "ERROR", "FATAL":
	default:
		return fmt.Errorf("invalid app_log.level '%s'", cfg.AppLog.Level)
	}
	if cfg.AppLog.Format != "json" && cfg.AppLog.Format != "text" {
		return fmt.Errorf("invalid app_log.format '%s', must be 'json' or 'text'", cfg.AppLog.Format)
	}
	if cfg.AppLog.Rotation.MaxSize != "" {
		if _, err := ParseSize(cfg.AppLog.Rotation.MaxSize); err != nil {
			return fmt.Errorf("invalid app_log.rotation.max_size: %w", err)
		}
	}
	if cfg.AppLog.Rotation.MaxAge != "" {
		if _, err := ParseDuration(cfg.AppLog.Rotation.MaxAge); err != nil {
			return fmt.Errorf("invalid app_log.rotation.max_age: %w", err)
		}
	}
	if cfg.AppLog.Rotation.MaxBackups < 0 {
		return errors.New("app_log.rotation.max_backups cannot be negative")
	}

	// Relay is only checked when it is going to run
	if !cfg.Relay.Enabled {
		return nil
	}
	if cfg.Relay.Port <= 0 || cfg.Relay.Port > 65535 {
		return fmt.Errorf("invalid relay.port: %d", cfg.Relay.Port)
	}
	if cfg.Relay.Mode != "production" && cfg.Relay.Mode != "debug" {
		return fmt.Errorf("invalid relay.mode: '%s', must be 'production' or 'debug'", cfg.Relay.Mode)
	}
	if cfg.Relay.RequestLimits.MaxBodySize < 0 {
		return errors.New("relay.request_limits.max_body_size cannot be negative")
	}
	if cfg.Relay.RequestLimits.RateLimit < 0 {
		return errors.New("relay.request_limits.rate_limit cannot be negative")
	}
	if cfg.Relay.MaxMessageLength < 0 {
		return errors.New("relay.max_message_length cannot be negative")
	}
	if _, err := iputil.ParseCIDRs(cfg.Relay.TrustedProxies); err != nil {
		return fmt.Errorf("invalid relay.trusted_proxies: %w", err)
	}

	return nil
}

// ValidateConfig uses go-playground/validator for struct-level validation.
// It complements the semantic validation in validateConfig.
func ValidateConfig(cfg *Config) error {
	validate := validator.New()

	err := validate.Struct(cfg)
	if err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return err
		}
		messages := make([]string, 0, len(validationErrors))
		for _, fe := range validationErrors {
			messages = append(messages, fmt.Sprintf("Field validation for '%s' failed on the '%s' tag", fe.Namespace(), fe.Tag()))
		}
		return errors.New(strings.Join(messages, "; "))
	}

	return validateConfig(cfg)
}

// Timeout returns the parsed loki.timeout, or zero when none is configured.
func (c *Config) Timeout() time.Duration {
	if c.Loki.Timeout == "" {
		return 0
	}
	d, err := ParseDuration(c.Loki.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// ParseDuration parses a duration string (e.g., "10m", "1h30m", "7d").
// Supports standard time.ParseDuration units plus 'd' for days.
// Returns an error if the format is invalid or the duration is non-positive.
func ParseDuration(durationStr string) (time.Duration, error) {
	durationStr = strings.TrimSpace(durationStr)
	if durationStr == "" {
		return 0, errors.New("duration string cannot be empty")
	}

	if strings.HasSuffix(strings.ToLower(durationStr), "d") {
		numStr := strings.TrimSuffix(strings.ToLower(durationStr), "d")
		days, err := strconv.ParseInt(numStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number format for days in '%s': %w", durationStr, err)
		}
		if days <= 0 {
			return 0, fmt.Errorf("duration must be positive: '%s'", durationStr)
		}
		d := time.Duration(days) * 24 * time.Hour
		if d <= 0 {
			return 0, fmt.Errorf("duration %dd results in overflow", days)
		}
		return d, nil
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format '%s': %w", durationStr, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: '%s'", durationStr)
	}
	return d, nil
}

// ParseSize parses a size string (e.g., "10MB", "5k", "1G") into bytes.
// Supports K, M, G suffixes (case-insensitive).
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(strings.ToUpper(sizeStr))
	if sizeStr == "" {
		return 0, errors.New("size string cannot be empty")
	}

	var multiplier int64 = 1
	numStr := sizeStr
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{
		{"KB", 1 << 10}, {"K", 1 << 10},
		{"MB", 1 << 20}, {"M", 1 << 20},
		{"GB", 1 << 30}, {"G", 1 << 30},
	} {
		if strings.HasSuffix(sizeStr, unit.suffix) {
			multiplier = unit.mult
			numStr = strings.TrimSpace(strings.TrimSuffix(sizeStr, unit.suffix))
			break
		}
	}

	numBig := new(big.Int)
	if _, ok := numBig.SetString(numStr, 10); !ok {
		return 0, fmt.Errorf("invalid number format in size string '%s'", sizeStr)
	}
	if numBig.Sign() < 0 {
		return 0, fmt.Errorf("size cannot be negative: %s", numBig.String())
	}

	resultBig := new(big.Int).Mul(numBig, big.NewInt(multiplier))
	if !resultBig.IsInt64() {
		return 0, fmt.Errorf("size value '%s' results in overflow (exceeds max int64)", sizeStr)
	}
	return resultBig.Int64(), nil
}
