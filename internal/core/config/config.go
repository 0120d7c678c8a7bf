package config

import (
	"time"

	redisclient "github.com/vietddude/framerpc/internal/infra/redis"
	"github.com/vietddude/framerpc/internal/infra/rpc"
	"github.com/vietddude/framerpc/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Client   ClientConfig       `yaml:"client"`
	Server   ServerConfig       `yaml:"server"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
	Journal  JournalConfig      `yaml:"journal"`
}

// JournalConfig holds call journal settings.
type JournalConfig struct {
	Retention time.Duration `yaml:"retention"` // 0 = keep forever
}

// ClientConfig holds settings for the resilient RPC client.
type ClientConfig struct {
	Endpoints       []string `yaml:"endpoints"`
	MaxAttempts     int      `yaml:"max_attempts"`     // clamped to [1, 10]
	BackoffMs       int      `yaml:"backoff_ms"`       // first retry delay
	MaxBackoffMs    int      `yaml:"max_backoff_ms"`   // cap for exponential growth
	ConstantBackoff bool     `yaml:"constant_backoff"` // disable exponential growth
	JitterPercent   uint64   `yaml:"jitter_percent"`
	ReceiveTimeoutS float64  `yaml:"receive_timeout_s"`
	ConnectTimeoutS float64  `yaml:"connect_timeout_s"`
}

// ServerConfig holds settings for the frame server and its HTTP side.
type ServerConfig struct {
	Listen     string `yaml:"listen"`
	HealthPort int    `yaml:"health_port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RPCConfig converts the client section into rpc.Config.
func (c ClientConfig) RPCConfig() rpc.Config {
	strategy := rpc.BackoffExponential
	if c.ConstantBackoff {
		strategy = rpc.BackoffConstant
	}

	return rpc.Config{
		Endpoints: c.Endpoints,
		Retry: rpc.RetryConfig{
			MaxAttempts:    c.MaxAttempts,
			InitialBackoff: time.Duration(c.BackoffMs) * time.Millisecond,
			MaxBackoff:     time.Duration(c.MaxBackoffMs) * time.Millisecond,
			Strategy:       strategy,
			JitterPercent:  c.JitterPercent,
		}.WithDefaults(),
		ReceiveTimeout: seconds(c.ReceiveTimeoutS),
		ConnectTimeout: seconds(c.ConnectTimeoutS),
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
