package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Catalog   CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Reasoner  ReasonerConfig  `yaml:"reasoner" mapstructure:"reasoner"`
	Alerts    AlertsConfig    `yaml:"alerts" mapstructure:"alerts"`
	Trend     TrendConfig     `yaml:"trend" mapstructure:"trend"`
	Schedule  ScheduleConfig  `yaml:"schedule" mapstructure:"schedule"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Report    ReportConfig    `yaml:"report" mapstructure:"report"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CatalogConfig locates the reference-data catalog file.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// SourceConfig configures adapter HTTP behavior.
type SourceConfig struct {
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxConcurrent  int    `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	RetryAttempts  int    `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	MaxPagesPerCat int    `yaml:"max_pages_per_category" mapstructure:"max_pages_per_category"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	VisionModel string `yaml:"vision_model" mapstructure:"vision_model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ReasonerConfig configures the advisory recommendation refinement.
type ReasonerConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Context     string `yaml:"context" mapstructure:"context"` // free-text domain context for the prompt
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AlertsConfig configures anomaly detection thresholds.
type AlertsConfig struct {
	PriceMoveThresholdPct float64 `yaml:"price_move_threshold_pct" mapstructure:"price_move_threshold_pct"`
}

// TrendConfig configures the historical trend window.
type TrendConfig struct {
	WindowDays int `yaml:"window_days" mapstructure:"window_days"`
}

// ScheduleConfig configures the daily wall-clock trigger.
type ScheduleConfig struct {
	Time       string `yaml:"time" mapstructure:"time"` // "HH:MM"
	Timezone   string `yaml:"timezone" mapstructure:"timezone"`
	RunOnStart bool   `yaml:"run_on_start" mapstructure:"run_on_start"`
}

// ServerConfig configures the on-demand trigger server.
type ServerConfig struct {
	Port            int `yaml:"port" mapstructure:"port"`
	MinIntervalMins int `yaml:"min_interval_mins" mapstructure:"min_interval_mins"`
}

// ReportConfig configures report artifact output.
type ReportConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
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
	v.SetEnvPrefix("PRICEMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/prices.db")
	v.SetDefault("catalog.path", "catalog.yaml")
	v.SetDefault("source.timeout_secs", 30)
	v.SetDefault("source.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("source.max_concurrent", 4)
	v.SetDefault("source.retry_attempts", 2)
	v.SetDefault("source.max_pages_per_category", 5)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.vision_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("reasoner.enabled", true)
	v.SetDefault("reasoner.timeout_secs", 120)
	v.SetDefault("alerts.price_move_threshold_pct", 15)
	v.SetDefault("trend.window_days", 7)
	v.SetDefault("schedule.time", "08:00")
	v.SetDefault("schedule.timezone", "America/Asuncion")
	v.SetDefault("schedule.run_on_start", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.min_interval_mins", 10)
	v.SetDefault("report.output_dir", "data/reports")
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
