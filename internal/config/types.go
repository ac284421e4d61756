package config

import "time"

// Config represents the main configuration structure
type Config struct {
	App       AppConfig       `yaml:"app" mapstructure:"app"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Privacy   PrivacyConfig   `yaml:"privacy" mapstructure:"privacy"`
	Rules     RulesConfig     `yaml:"rules" mapstructure:"rules"`
	Shield    ShieldConfig    `yaml:"shield" mapstructure:"shield"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
}

// AppConfig carries the host application's settings. The core only
// reads AIProvider to decide whether the privacy shield applies.
type AppConfig struct {
	Hotkey        string `yaml:"hotkey" mapstructure:"hotkey"`
	AIProvider    string `yaml:"ai_provider" mapstructure:"ai_provider"`
	OllamaBaseURL string `yaml:"ollama_base_url" mapstructure:"ollama_base_url"`
	OpenAIBaseURL string `yaml:"openai_base_url" mapstructure:"openai_base_url"`
	ModelName     string `yaml:"model_name" mapstructure:"model_name"`
	Theme         string `yaml:"theme" mapstructure:"theme"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// PrivacyConfig contains PII detection and masking configuration
type PrivacyConfig struct {
	Enabled   bool     `yaml:"enabled" mapstructure:"enabled"`
	Detectors []string `yaml:"detectors" mapstructure:"detectors"`
	// ShieldProviders lists AI providers whose outgoing text must be masked
	ShieldProviders []string `yaml:"shield_providers" mapstructure:"shield_providers"`
}

// RulesConfig contains rule execution limits and user rules
type RulesConfig struct {
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxOutputBytes int           `yaml:"max_output_bytes" mapstructure:"max_output_bytes"`
	Custom         []RuleConfig  `yaml:"custom" mapstructure:"custom"`
}

// RuleConfig is a user-defined rule loaded from the config file
type RuleConfig struct {
	ID          string `yaml:"id" mapstructure:"id"`
	Name        string `yaml:"name" mapstructure:"name"`
	Description string `yaml:"description" mapstructure:"description"`
	Pattern     string `yaml:"pattern" mapstructure:"pattern"`
	Replacement string `yaml:"replacement" mapstructure:"replacement"`
}

// ShieldConfig contains privacy shield session storage configuration
type ShieldConfig struct {
	Store      string        `yaml:"store" mapstructure:"store"` // memory or redis
	SessionTTL time.Duration `yaml:"session_ttl" mapstructure:"session_ttl"`
	Redis      RedisConfig   `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig contains redis connection configuration
type RedisConfig struct {
	URL            string `yaml:"url" mapstructure:"url"`
	MaxConnections int    `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int    `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	KeyPrefix      string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// AuditConfig contains audit log database configuration
type AuditConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// BatchConfig contains batch redaction configuration
type BatchConfig struct {
	BatchSize   int `yaml:"batch_size" mapstructure:"batch_size"`
	WorkerCount int `yaml:"worker_count" mapstructure:"worker_count"`
}

// RateLimitConfig contains per-client rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// WebSocketConfig contains WebSocket event feed configuration
type WebSocketConfig struct {
	Enabled        bool     `yaml:"enabled" mapstructure:"enabled"`
	Path           string   `yaml:"path" mapstructure:"path"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Events         struct {
		BroadcastDetections  bool `yaml:"broadcast_detections" mapstructure:"broadcast_detections"`
		BroadcastRules       bool `yaml:"broadcast_rules" mapstructure:"broadcast_rules"`
		BroadcastConnections bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
	} `yaml:"events" mapstructure:"events"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		App: AppConfig{
			Hotkey:        "Ctrl+Shift+V",
			AIProvider:    "Ollama",
			OllamaBaseURL: "http://localhost:11434",
			OpenAIBaseURL: "https://api.openai.com/v1",
			ModelName:     "llama3.2",
			Theme:         "system",
		},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8765,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Privacy: PrivacyConfig{
			Enabled:         true,
			Detectors:       []string{"all"},
			ShieldProviders: []string{"OpenAI"},
		},
		Rules: RulesConfig{
			Timeout:        50 * time.Millisecond,
			MaxOutputBytes: 10 * 1024 * 1024,
		},
		Shield: ShieldConfig{
			Store:      "memory",
			SessionTTL: 10 * time.Minute,
			Redis: RedisConfig{
				URL:            "redis://localhost:6379/0",
				MaxConnections: 10,
				MinIdleConns:   1,
				KeyPrefix:      "flowpaste",
			},
		},
		Audit: AuditConfig{
			Enabled:         false,
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Batch: BatchConfig{
			BatchSize:   500,
			WorkerCount: 4,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		WebSocket: WebSocketConfig{
			Enabled:        true,
			Path:           "/ws",
			AllowedOrigins: []string{"*"},
		},
	}

	cfg.Logging.File.Path = "logs/flowpaste.log"
	cfg.WebSocket.Events.BroadcastDetections = true
	cfg.WebSocket.Events.BroadcastRules = true
	cfg.WebSocket.Events.BroadcastConnections = true

	return cfg
}
