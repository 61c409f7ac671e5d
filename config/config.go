package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"
)

type Config struct {
	Broker     BrokerConfig   `json:"broker"`
	MQTT       MQTTConfig     `json:"mqtt"`
	NATS       NATSConfig     `json:"nats"`
	Notifier   NotifierConfig `json:"notifier"`
	Storage    StorageConfig  `json:"storage"`
	Admin      AdminConfig    `json:"admin"`
	Logging    LoggingConfig  `json:"logging"`
	Metrics    MetricsConfig  `json:"metrics"`
	Processing ProcConfig     `json:"processing"`
}

// BrokerConfig selects which transport delivers observations.
type BrokerConfig struct {
	Type string `json:"type"` // mqtt or nats
}

type MQTTConfig struct {
	Broker   string `json:"broker"`
	ClientID string `json:"clientId"`
	Username string `json:"username"`
	Password string `json:"password"`
	TLS      struct {
		Enable   bool   `json:"enable"`
		CertFile string `json:"certFile"`
		KeyFile  string `json:"keyFile"`
		CAFile   string `json:"caFile"`
	} `json:"tls"`
}

type NATSConfig struct {
	URLs     []string `json:"urls"`
	ClientID string   `json:"clientId"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	TLS      struct {
		Enable   bool   `json:"enable"`
		CertFile string `json:"certFile"`
		KeyFile  string `json:"keyFile"`
		CAFile   string `json:"caFile"`
	} `json:"tls"`
}

// NotifierConfig holds bootstrap defaults for the push channel. Values stored
// through the admin panel take precedence over these.
type NotifierConfig struct {
	Type       string `json:"type"` // pushover or webhook
	UserKey    string `json:"userKey"`
	APIToken   string `json:"apiToken"`
	WebhookURL string `json:"webhookUrl"`
	Timeout    string `json:"timeout"` // Duration string
}

type StorageConfig struct {
	Path string `json:"path"` // sqlite database file
}

type AdminConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

type LoggingConfig struct {
	Level       string `json:"level"`    // debug, info, warn, error
	Encoding    string `json:"encoding"` // json or console
	LogToFile   bool   `json:"logToFile"`
	LogToStdout bool   `json:"logToStdout"`
	Directory   string `json:"directory"`
	MaxSize     int    `json:"maxSize"` // megabytes
	MaxAge      int    `json:"maxAge"`  // days
	MaxBackups  int    `json:"maxBackups"`
	Compress    bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled        bool   `json:"enabled"`
	Address        string `json:"address"`
	Path           string `json:"path"`
	UpdateInterval string `json:"updateInterval"` // Duration string
}

type ProcConfig struct {
	Workers   int `json:"workers"`
	QueueSize int `json:"queueSize"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults for broker selection
	if config.Broker.Type == "" {
		config.Broker.Type = "mqtt"
	}

	// Set defaults for the notifier
	if config.Notifier.Type == "" {
		config.Notifier.Type = "pushover"
	}
	if config.Notifier.Timeout == "" {
		config.Notifier.Timeout = "10s"
	}

	// Set defaults for storage
	if config.Storage.Path == "" {
		config.Storage.Path = "settings.db"
	}

	// Set defaults for the admin panel
	if config.Admin.Address == "" {
		config.Admin.Address = ":8080"
	}

	// Set defaults for logging
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Encoding == "" {
		config.Logging.Encoding = "json"
	}
	if !config.Logging.LogToFile && !config.Logging.LogToStdout {
		config.Logging.LogToStdout = true
	}
	if config.Logging.MaxSize <= 0 {
		config.Logging.MaxSize = 100
	}
	if config.Logging.MaxBackups <= 0 {
		config.Logging.MaxBackups = 3
	}

	// Set defaults for metrics
	if config.Metrics.Address == "" {
		config.Metrics.Address = ":2112"
	}
	if config.Metrics.Path == "" {
		config.Metrics.Path = "/metrics"
	}
	if config.Metrics.UpdateInterval == "" {
		config.Metrics.UpdateInterval = "15s"
	}

	// Set defaults for processing
	if config.Processing.Workers <= 0 {
		config.Processing.Workers = runtime.NumCPU()
	}
	if config.Processing.QueueSize <= 0 {
		config.Processing.QueueSize = 1000
	}

	// Validate the configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validateConfig performs validation of all configuration values
func validateConfig(cfg *Config) error {
	switch cfg.Broker.Type {
	case "mqtt":
		if err := validateTLS("mqtt", cfg.MQTT.TLS.Enable, cfg.MQTT.TLS.CertFile, cfg.MQTT.TLS.KeyFile, cfg.MQTT.TLS.CAFile); err != nil {
			return err
		}
	case "nats":
		if err := validateTLS("nats", cfg.NATS.TLS.Enable, cfg.NATS.TLS.CertFile, cfg.NATS.TLS.KeyFile, cfg.NATS.TLS.CAFile); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid broker type: %s", cfg.Broker.Type)
	}

	// Validate notifier config
	switch cfg.Notifier.Type {
	case "pushover", "webhook":
	default:
		return fmt.Errorf("invalid notifier type: %s", cfg.Notifier.Type)
	}
	if _, err := time.ParseDuration(cfg.Notifier.Timeout); err != nil {
		return fmt.Errorf("invalid notifier timeout: %w", err)
	}

	// Validate logging config
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	switch cfg.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log encoding: %s", cfg.Logging.Encoding)
	}

	if cfg.Logging.LogToFile && cfg.Logging.Directory == "" {
		return fmt.Errorf("log directory is required when logging to file")
	}

	// Validate metrics config
	if cfg.Metrics.Enabled {
		if _, err := time.ParseDuration(cfg.Metrics.UpdateInterval); err != nil {
			return fmt.Errorf("invalid metrics update interval: %w", err)
		}
	}

	// Validate processing config
	if cfg.Processing.Workers < 1 {
		return fmt.Errorf("workers must be greater than 0")
	}
	if cfg.Processing.QueueSize < 1 {
		return fmt.Errorf("queue size must be greater than 0")
	}

	return nil
}

func validateTLS(name string, enabled bool, certFile, keyFile, caFile string) error {
	if !enabled {
		return nil
	}
	if certFile == "" {
		return fmt.Errorf("%s tls cert file is required when tls is enabled", name)
	}
	if keyFile == "" {
		return fmt.Errorf("%s tls key file is required when tls is enabled", name)
	}
	if caFile == "" {
		return fmt.Errorf("%s tls ca file is required when tls is enabled", name)
	}
	return nil
}

// ApplyOverrides applies command line flag overrides to the configuration
func (c *Config) ApplyOverrides(workers, queueSize int, adminAddr, metricsAddr, metricsPath string, metricsInterval time.Duration) {
	if workers > 0 {
		c.Processing.Workers = workers
	}
	if queueSize > 0 {
		c.Processing.QueueSize = queueSize
	}
	if adminAddr != "" {
		c.Admin.Address = adminAddr
	}
	if metricsAddr != "" {
		c.Metrics.Address = metricsAddr
	}
	if metricsPath != "" {
		c.Metrics.Path = metricsPath
	}
	if metricsInterval > 0 {
		c.Metrics.UpdateInterval = metricsInterval.String()
	}
}
