// Package config loads configuration from config.yaml and the
// environment and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/talentsignal/sourcing-cli/internal/limiter"
	"github.com/talentsignal/sourcing-cli/internal/store"
)

// Config is the root configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Directory DirectoryConfig `yaml:"directory" mapstructure:"directory"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Screening ScreeningConfig `yaml:"screening" mapstructure:"screening"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Limiter   limiter.Config  `yaml:"limiter" mapstructure:"limiter"`
	Stream    StreamConfig    `yaml:"stream" mapstructure:"stream"`
	Sweep     SweepConfig     `yaml:"sweep" mapstructure:"sweep"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Path        string           `yaml:"path" mapstructure:"path"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// DirectoryConfig configures the talent directory API client.
type DirectoryConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds the Anthropic API key and model names.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
}

// ScreeningConfig configures candidate scoring.
type ScreeningConfig struct {
	WeightsPath string `yaml:"weights_path" mapstructure:"weights_path"`
}

// PipelineConfig configures batch execution and retry behavior.
type PipelineConfig struct {
	BatchSize            int `yaml:"batch_size" mapstructure:"batch_size"`
	EnrichFanout         int `yaml:"enrich_fanout" mapstructure:"enrich_fanout"`
	DefaultMaxCandidates int `yaml:"default_max_candidates" mapstructure:"default_max_candidates"`
	FailureBackoffSecs   int `yaml:"failure_backoff_secs" mapstructure:"failure_backoff_secs"`
	StaleAfterMins       int `yaml:"stale_after_mins" mapstructure:"stale_after_mins"`
}

// StreamConfig configures progress streaming.
type StreamConfig struct {
	PollIntervalSecs int `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
}

// SweepConfig configures the background sweeper that restarts
// interrupted jobs.
type SweepConfig struct {
	IntervalSecs int `yaml:"interval_secs" mapstructure:"interval_secs"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SOURCING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.path", "sourcing.db")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("directory.base_url", "https://api.talentdirectory.io/v1")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("pipeline.batch_size", 10)
	v.SetDefault("pipeline.enrich_fanout", 4)
	v.SetDefault("pipeline.default_max_candidates", 50)
	v.SetDefault("pipeline.failure_backoff_secs", 30)
	v.SetDefault("pipeline.stale_after_mins", 10)
	v.SetDefault("limiter.search_per_second", 2)
	v.SetDefault("limiter.enrich_per_second", 5)
	v.SetDefault("limiter.screen_per_second", 1)
	v.SetDefault("limiter.burst", 2)
	v.SetDefault("stream.poll_interval_secs", 2)
	v.SetDefault("sweep.interval_secs", 60)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields required for the given mode. Modes map to
// commands: "run" and "serve" need the full external stack, "local"
// covers commands that only touch the store.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	default:
		problems = append(problems, "store.driver must be postgres or sqlite")
	}

	switch mode {
	case "run", "serve":
		if c.Directory.Key == "" {
			problems = append(problems, "directory.key is required")
		}
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "local":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Pipeline.BatchSize < 1 || c.Pipeline.BatchSize > 100 {
		problems = append(problems, "pipeline.batch_size must be between 1 and 100")
	}
	if c.Pipeline.EnrichFanout < 1 || c.Pipeline.EnrichFanout > 32 {
		problems = append(problems, "pipeline.enrich_fanout must be between 1 and 32")
	}

	if len(problems) > 0 {
		return eris.New("config: invalid configuration:\n  - " + strings.Join(problems, "\n  - "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
