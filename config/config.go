// Package config loads forestz settings for binaries that embed the engine.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zoobzio/forestz"
)

// EnvPrefix is prepended to every environment override, e.g. FORESTZ_SINK_POLICY.
const EnvPrefix = "FORESTZ"

// Config is the root configuration.
type Config struct {
	Sink    SinkConfig    `mapstructure:"sink"`
	Output  OutputConfig  `mapstructure:"output"`
	Log     LogConfig     `mapstructure:"log"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// SinkConfig sizes the queue between the engine and the processor.
type SinkConfig struct {
	PolicyName      string        `mapstructure:"policy"`
	Capacity        int           `mapstructure:"capacity"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// OutputConfig selects how trees are rendered and where they go.
type OutputConfig struct {
	// Format is "pretty", "json" or "json-indent".
	Format string `mapstructure:"format"`
	// Target is "stdout", "stderr" or a file path.
	Target     string `mapstructure:"target"`
	Timestamps bool   `mapstructure:"timestamps"`
	TraceIDs   bool   `mapstructure:"trace_ids"`
}

// LogConfig configures the diagnostic logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EngineConfig tunes the engine.
type EngineConfig struct {
	Tombstones int  `mapstructure:"tombstones"`
	OTel       bool `mapstructure:"otel"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr    string `mapstructure:"addr"`
	Enabled bool   `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sink.capacity", 1024)
	v.SetDefault("sink.policy", "block")
	v.SetDefault("sink.shutdown_timeout", "5s")
	v.SetDefault("output.format", "pretty")
	v.SetDefault("output.target", "stdout")
	v.SetDefault("output.timestamps", false)
	v.SetDefault("output.trace_ids", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("engine.tombstones", 1024)
	v.SetDefault("engine.otel", false)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9464")
}

// Load reads configuration from path, or from forestz.yaml in the working
// directory when path is empty. A missing file is not an error. Environment
// variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("forestz")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Sink.Capacity < 1 {
		return fmt.Errorf("config: sink.capacity must be positive, got %d", c.Sink.Capacity)
	}
	if _, err := forestz.ParsePolicy(c.Sink.PolicyName); err != nil {
		return fmt.Errorf("config: sink.policy: %w", err)
	}
	if c.Sink.ShutdownTimeout < 0 {
		return fmt.Errorf("config: sink.shutdown_timeout must not be negative")
	}
	switch c.Output.Format {
	case "pretty", "json", "json-indent":
	default:
		return fmt.Errorf("config: unknown output.format %q", c.Output.Format)
	}
	if c.Output.Target == "" {
		return errors.New("config: output.target is empty")
	}
	if _, err := parseLogLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	if c.Engine.Tombstones < 0 {
		return fmt.Errorf("config: engine.tombstones must not be negative")
	}
	return nil
}

// Policy returns the parsed overflow policy.
func (c *SinkConfig) Policy() forestz.Policy {
	p, _ := forestz.ParsePolicy(c.PolicyName)
	return p
}

// LogLevel returns the slog level for the diagnostic logger.
func (c *LogConfig) LogLevel() slog.Level {
	l, _ := parseLogLevel(c.Level)
	return l
}

func parseLogLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: log.level: %w", err)
	}
	return l, nil
}
