package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ampdefend/ampdefend/internal/adapter/notifier"
)

// Config represents the application configuration
type Config struct {
	Feed     FeedConfig    `mapstructure:"feed"`
	Webhook  WebhookConfig `mapstructure:"webhook"`
	Server   ServerConfig  `mapstructure:"server"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
	Database string        `mapstructure:"database_url"`
	LogLevel string        `mapstructure:"log_level"`
}

// FeedConfig contains live feed configuration
type FeedConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
	Collection  string `mapstructure:"collection"`
}

// WebhookConfig contains webhook delivery configuration
type WebhookConfig struct {
	URL                   string `mapstructure:"url"`
	NotifyInitialSnapshot bool   `mapstructure:"notify_initial_snapshot"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	ListenAddress string `mapstructure:"listen_address"`
}

// MetricsConfig contains deployment-level metrics configuration
type MetricsConfig struct {
	ActiveHoneypots int `mapstructure:"active_honeypots"`
}

// Validate validates the configuration and fills in defaults
func (c *Config) Validate() error {
	var errors []string

	if c.Feed.DatabaseURL == "" {
		errors = append(errors, "feed.database_url is required")
	}

	if c.Feed.Collection == "" {
		c.Feed.Collection = "alerts"
	}

	if c.Webhook.URL == "" {
		c.Webhook.URL = notifier.DefaultEndpoint
	}

	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":8080"
	}

	if c.Metrics.ActiveHoneypots <= 0 {
		c.Metrics.ActiveHoneypots = 12
	}

	// Set default log level if empty
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	// Validate log level
	validLogLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, level := range validLogLevels {
		if strings.ToLower(c.LogLevel) == level {
			levelValid = true
			break
		}
	}
	if !levelValid {
		errors = append(errors, fmt.Sprintf("log_level must be one of: %s", strings.Join(validLogLevels, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// GetLogLevel returns the logrus.Level for the configured log level
func (c *Config) GetLogLevel() logrus.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// IsDebugEnabled returns true if debug logging is enabled
func (c *Config) IsDebugEnabled() bool {
	return strings.ToLower(c.LogLevel) == "debug"
}
