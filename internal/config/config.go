package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Loader reads configuration from a file and FLOWPASTE_* environment
// variables
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader. An empty configPath searches the usual
// locations for config.yaml.
func NewLoader(configPath string) *Loader {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("$HOME/.flowpaste/")

	// Environment variable overrides
	v.SetEnvPrefix("FLOWPASTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// Load reads, unmarshals and validates the configuration
func (l *Loader) Load() (*Config, error) {
	config := GetDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := l.v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// ConfigFile returns the file the loader read, if any
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Rules.Timeout <= 0 {
		return fmt.Errorf("invalid rule timeout: %s", config.Rules.Timeout)
	}

	if config.Rules.MaxOutputBytes <= 0 {
		return fmt.Errorf("invalid rule max output bytes: %d", config.Rules.MaxOutputBytes)
	}

	seen := make(map[string]bool)
	for _, rule := range config.Rules.Custom {
		if rule.ID == "" {
			return fmt.Errorf("custom rule without id")
		}
		if seen[rule.ID] {
			return fmt.Errorf("duplicate custom rule id: %s", rule.ID)
		}
		seen[rule.ID] = true
	}

	if config.Shield.Store != "memory" && config.Shield.Store != "redis" {
		return fmt.Errorf("invalid shield store: %s (must be memory or redis)", config.Shield.Store)
	}

	if config.Shield.SessionTTL <= 0 {
		return fmt.Errorf("invalid shield session ttl: %s", config.Shield.SessionTTL)
	}

	if config.Audit.Enabled && config.Audit.DatabaseURL == "" {
		return fmt.Errorf("audit enabled without database_url")
	}

	if config.Batch.BatchSize <= 0 || config.Batch.WorkerCount <= 0 {
		return fmt.Errorf("invalid batch settings: batch_size=%d worker_count=%d", config.Batch.BatchSize, config.Batch.WorkerCount)
	}

	if config.RateLimit.Enabled && (config.RateLimit.RequestsPerSecond <= 0 || config.RateLimit.Burst <= 0) {
		return fmt.Errorf("invalid rate limit: requests_per_second=%v burst=%d", config.RateLimit.RequestsPerSecond, config.RateLimit.Burst)
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}

// Watch starts watching the configuration file for changes. Invalid
// reloads are reported to onError and otherwise ignored.
func (l *Loader) Watch(callback func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := l.v.Unmarshal(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("failed to unmarshal %s: %w", e.Name, err))
			}
			return
		}

		if err := validateConfig(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("invalid configuration in %s: %w", e.Name, err))
			}
			return
		}

		callback(newConfig)
	})
	l.v.WatchConfig()
}
