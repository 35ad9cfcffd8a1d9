package config

import (
	"time"

	"github.com/vigilguard/pii-gateway/internal/cache"
	"github.com/vigilguard/pii-gateway/internal/events"
	"github.com/vigilguard/pii-gateway/internal/security"
)

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig             `yaml:"server" mapstructure:"server"`
	Detection DetectionConfig          `yaml:"detection" mapstructure:"detection"`
	Services  ServicesConfig           `yaml:"services" mapstructure:"services"`
	Logging   LoggingConfig            `yaml:"logging" mapstructure:"logging"`
	Cache     cache.Config             `yaml:"cache" mapstructure:"cache"`
	Events    events.Config            `yaml:"events" mapstructure:"events"`
	RateLimit security.RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	WebSocket WebSocketConfig          `yaml:"websocket" mapstructure:"websocket"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// DetectionConfig points at the policy documents that drive analysis.
type DetectionConfig struct {
	PolicyFile string `yaml:"policy_file" mapstructure:"policy_file"`
	RulesFile  string `yaml:"rules_file" mapstructure:"rules_file"`
}

// ServicesConfig contains the recognition service endpoints.
type ServicesConfig struct {
	LanguageURL       string        `yaml:"language_url" mapstructure:"language_url"`
	RecognizerURL     string        `yaml:"recognizer_url" mapstructure:"recognizer_url"`
	LanguageTimeout   time.Duration `yaml:"language_timeout" mapstructure:"language_timeout"`
	RecognizerTimeout time.Duration `yaml:"recognizer_timeout" mapstructure:"recognizer_timeout"`
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

// WebSocketConfig contains the admin event stream configuration
type WebSocketConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Path     string `yaml:"path" mapstructure:"path"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Events   struct {
		BroadcastDetections  bool `yaml:"broadcast_detections" mapstructure:"broadcast_detections"`
		BroadcastRequests    bool `yaml:"broadcast_requests" mapstructure:"broadcast_requests"`
		BroadcastSystem      bool `yaml:"broadcast_system" mapstructure:"broadcast_system"`
		BroadcastConnections bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
	} `yaml:"events" mapstructure:"events"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	config := &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Detection: DetectionConfig{
			PolicyFile: "configs/detection_policy.json",
			RulesFile:  "configs/fallback_rules.json",
		},
		Services: ServicesConfig{
			LanguageURL:       "http://localhost:8001",
			RecognizerURL:     "http://localhost:8002",
			LanguageTimeout:   10 * time.Second,
			RecognizerTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Cache: cache.Config{
			Enabled:        false,
			RedisURL:       "redis://localhost:6379/0",
			MaxConnections: 10,
			MinIdleConns:   2,
			DefaultTTL:     15 * time.Minute,
			KeyPrefix:      "pii-gateway",
		},
		Events: events.Config{
			Enabled:         false,
			DatabaseURL:     "postgres://localhost:5432/pii_gateway?sslmode=disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		RateLimit: security.RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 300,
			Burst:          50,
		},
		WebSocket: WebSocketConfig{
			Enabled: true,
			Path:    "/ws",
		},
	}

	config.Logging.File.Path = "logs/gateway.log"
	config.WebSocket.Events.BroadcastDetections = true
	config.WebSocket.Events.BroadcastRequests = true
	config.WebSocket.Events.BroadcastSystem = true
	config.WebSocket.Events.BroadcastConnections = true

	return config
}
