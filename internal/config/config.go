// Package config handles environment variable parsing and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata" // store timezone must resolve on minimal images
)

// AuthMode represents the SSH authentication mode.
type AuthMode string

const (
	AuthModeAllowlist AuthMode = "allowlist"
	AuthModePublic    AuthMode = "public"
)

// Config holds all application configuration.
type Config struct {
	// SSH server settings
	SSHAddr        string
	SSHHostKeyPath string
	SSHAuthMode    AuthMode
	AllowlistPath  string

	// Backend settings
	APIBaseURL      string
	PaymentProvider string

	// Client-local storage
	DataDir         string
	StorageDebounce time.Duration

	// Polling and caching
	CacheTTL         time.Duration
	ClosedPollEvery  time.Duration
	PaymentPollEvery time.Duration
	StoreLocation    *time.Location
	DefaultLanguage  string
	LogLevel         string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		SSHAddr:         getEnv("SSH_ADDR", ":23234"),
		SSHHostKeyPath:  getEnv("SSH_HOSTKEY_PATH", "./.ssh_host_ed25519_key"),
		SSHAuthMode:     AuthMode(getEnv("SSH_AUTH_MODE", "allowlist")),
		AllowlistPath:   getEnv("SSH_ALLOWLIST_PATH", "./allowlist_authorized_keys"),
		APIBaseURL:      getEnv("LILYAN_API_URL", "http://127.0.0.1:18080"),
		PaymentProvider: getEnv("PAYMENT_PROVIDER", "myfatoorah"),
		DataDir:         getEnv("DATA_DIR", "./data"),
		DefaultLanguage: getEnv("DEFAULT_LANG", "en"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.CacheTTL, err = seconds("CACHE_TTL_SECONDS", "60"); err != nil {
		return nil, err
	}
	if cfg.ClosedPollEvery, err = seconds("CLOSED_POLL_SECONDS", "300"); err != nil {
		return nil, err
	}
	if cfg.PaymentPollEvery, err = seconds("PAYMENT_POLL_SECONDS", "3"); err != nil {
		return nil, err
	}

	ms, err := strconv.Atoi(getEnv("STORAGE_DEBOUNCE_MS", "250"))
	if err != nil || ms < 0 {
		return nil, errors.New("STORAGE_DEBOUNCE_MS must be a non-negative integer")
	}
	cfg.StorageDebounce = time.Duration(ms) * time.Millisecond

	tz := getEnv("STORE_TIMEZONE", "Asia/Kuwait")
	cfg.StoreLocation, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("STORE_TIMEZONE %q: %w", tz, err)
	}

	// Validate auth mode
	if cfg.SSHAuthMode != AuthModeAllowlist && cfg.SSHAuthMode != AuthModePublic {
		return nil, errors.New("SSH_AUTH_MODE must be 'allowlist' or 'public'")
	}
	if cfg.DefaultLanguage != "en" && cfg.DefaultLanguage != "ar" {
		return nil, errors.New("DEFAULT_LANG must be 'en' or 'ar'")
	}

	return cfg, nil
}

// seconds parses a positive integer number of seconds from the environment.
func seconds(key, defaultValue string) (time.Duration, error) {
	n, err := strconv.Atoi(getEnv(key, defaultValue))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return time.Duration(n) * time.Second, nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
