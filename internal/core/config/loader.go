package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Defaults applied by Load.
const (
	DefaultMaxAttempts     = 5
	DefaultBackoffMs       = 500
	DefaultMaxBackoffMs    = 30000
	DefaultReceiveTimeoutS = 5.0
	DefaultConnectTimeoutS = 3.0
	DefaultListen          = ":7000"
	DefaultHealthPort      = 8080
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *AppConfig) applyDefaults() {
	c := &cfg.Client
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.MaxAttempts > 10 {
		c.MaxAttempts = 10
	}
	if c.BackoffMs <= 0 {
		c.BackoffMs = DefaultBackoffMs
	}
	if c.MaxBackoffMs <= 0 {
		c.MaxBackoffMs = DefaultMaxBackoffMs
	}
	if c.ReceiveTimeoutS <= 0 {
		c.ReceiveTimeoutS = DefaultReceiveTimeoutS
	}
	if c.ConnectTimeoutS <= 0 {
		c.ConnectTimeoutS = DefaultConnectTimeoutS
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = DefaultListen
	}
	if cfg.Server.HealthPort == 0 {
		cfg.Server.HealthPort = DefaultHealthPort
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
