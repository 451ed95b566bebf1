package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/felo/eml-reply/internal/reply"
)

// Config holds application configuration
type Config struct {
	// Server settings
	Host string
	Port string

	// Database settings
	DBPath string

	// Email folder settings
	EmailsPath string

	// Reply parsing
	Locale       string
	PatternsFile string   // optional YAML file with custom patterns and banners
	Banners      []string // extra banner patterns

	// Indexing
	Workers int

	// Logging
	LogLevel  string
	LogFormat string
}

// Default returns default configuration
func Default() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	// Use ~/.eml-reply for data directory
	dataDir := filepath.Join(homeDir, ".eml-reply")

	return &Config{
		Host:       "localhost",
		Port:       "8080",
		DBPath:     filepath.Join(dataDir, "messages.db"),
		EmailsPath: "./emails",
		Locale:     string(reply.DefaultLocale),
		Workers:    runtime.NumCPU() * 2,
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// FromEnv returns the default configuration overridden by EML_REPLY_*
// environment variables.
func FromEnv() *Config {
	cfg := Default()

	cfg.Host = getEnv("EML_REPLY_HOST", cfg.Host)
	cfg.Port = getEnv("EML_REPLY_PORT", cfg.Port)
	cfg.DBPath = getEnv("EML_REPLY_DB", cfg.DBPath)
	cfg.EmailsPath = getEnv("EML_REPLY_EMAILS", cfg.EmailsPath)
	cfg.Locale = getEnv("EML_REPLY_LOCALE", cfg.Locale)
	cfg.PatternsFile = getEnv("EML_REPLY_PATTERNS", cfg.PatternsFile)
	cfg.Workers = getEnvInt("EML_REPLY_WORKERS", cfg.Workers)
	cfg.LogLevel = getEnv("EML_REPLY_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("EML_REPLY_LOG_FORMAT", cfg.LogFormat)

	if banner := getEnv("EML_REPLY_BANNER", ""); banner != "" {
		cfg.Banners = append(cfg.Banners, banner)
	}

	return cfg
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("database path is required")
	}

	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", c.Port)
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	if _, ok := reply.LookupLocale(c.Locale); !ok {
		return fmt.Errorf("unsupported locale %q", c.Locale)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (expected text or json)", c.LogFormat)
	}

	return nil
}

// Address returns the full server address
func (c *Config) Address() string {
	return c.Host + ":" + c.Port
}

// URL returns the full server URL
func (c *Config) URL() string {
	return "http://" + c.Address()
}

// NewLogger builds the application logger from the logging settings
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if strings.EqualFold(c.LogFormat, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
