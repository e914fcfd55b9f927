package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pantrysense/pantry-cli/internal/expiry"
	"github.com/pantrysense/pantry-cli/internal/model"
	"github.com/pantrysense/pantry-cli/internal/notify"
	"github.com/pantrysense/pantry-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Detection DetectionConfig `yaml:"detection" mapstructure:"detection"`
	Expiry    ExpiryConfig    `yaml:"expiry" mapstructure:"expiry"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	Path        string           `yaml:"path" mapstructure:"path"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// DetectionConfig configures normalization, fusion, and reconciliation.
type DetectionConfig struct {
	ConfidenceFloor float64 `yaml:"confidence_floor" mapstructure:"confidence_floor"`
	RetentionHours  int     `yaml:"retention_hours" mapstructure:"retention_hours"`
	CatalogPath     string  `yaml:"catalog_path" mapstructure:"catalog_path"`
}

// ExpiryConfig configures status thresholds and shelf-life overrides.
type ExpiryConfig struct {
	Thresholds  expiry.Thresholds            `yaml:"thresholds" mapstructure:"thresholds"`
	PerCategory map[string]expiry.Thresholds `yaml:"per_category" mapstructure:"per_category"`
	ShelfLife   map[string]int               `yaml:"shelf_life" mapstructure:"shelf_life"`
}

// ThresholdTable converts the config into the runtime threshold table.
func (c ExpiryConfig) ThresholdTable() expiry.ThresholdTable {
	tt := expiry.ThresholdTable{Base: c.Thresholds}
	if len(c.PerCategory) > 0 {
		tt.PerCategory = make(map[model.Category]expiry.Thresholds, len(c.PerCategory))
		for k, v := range c.PerCategory {
			tt.PerCategory[model.Category(k)] = v
		}
	}
	return tt
}

// ShelfLifeOverrides converts the shelf-life override map to model keys.
func (c ExpiryConfig) ShelfLifeOverrides() map[model.Category]int {
	if len(c.ShelfLife) == 0 {
		return nil
	}
	out := make(map[model.Category]int, len(c.ShelfLife))
	for k, v := range c.ShelfLife {
		out[model.Category(k)] = v
	}
	return out
}

// NotifyConfig selects and configures delivery channels.
type NotifyConfig struct {
	Channels   []string           `yaml:"channels" mapstructure:"channels"`
	Email      notify.EmailConfig `yaml:"email" mapstructure:"email"`
	SMS        notify.SMSConfig   `yaml:"sms" mapstructure:"sms"`
	WebhookURL string             `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// SchedulerConfig configures the periodic re-evaluation tick.
type SchedulerConfig struct {
	IntervalMinutes int `yaml:"interval_minutes" mapstructure:"interval_minutes"`
}

// AnthropicConfig holds Anthropic API settings for recipe suggestions.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.AddConfigPath("$HOME/.pantry")

	// Environment
	v.SetEnvPrefix("PANTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "pantry.db")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	// 0 keeps every detection; discarding is opt-in.
	v.SetDefault("detection.confidence_floor", 0.0)
	v.SetDefault("detection.retention_hours", 48)
	v.SetDefault("expiry.thresholds.critical", 1)
	v.SetDefault("expiry.thresholds.warning", 3)
	v.SetDefault("expiry.thresholds.normal", 7)
	v.SetDefault("notify.channels", []string{"desktop"})
	v.SetDefault("notify.email.port", 587)
	v.SetDefault("scheduler.interval_minutes", 60)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that would break engine invariants.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		return eris.New("config: postgres driver requires store.database_url")
	}

	if !c.Expiry.Thresholds.Monotonic() {
		return eris.Errorf("config: thresholds %+v are not monotonic", c.Expiry.Thresholds)
	}
	for cat, th := range c.Expiry.PerCategory {
		if !model.Category(cat).Valid() {
			return eris.Errorf("config: unknown category %q in per_category thresholds", cat)
		}
		if !th.Monotonic() {
			return eris.Errorf("config: thresholds for %s are not monotonic", cat)
		}
	}
	for cat, days := range c.Expiry.ShelfLife {
		if !model.Category(cat).Valid() {
			return eris.Errorf("config: unknown category %q in shelf_life overrides", cat)
		}
		if days <= 0 {
			return eris.Errorf("config: shelf life for %s must be positive", cat)
		}
	}

	for _, ch := range c.Notify.Channels {
		switch ch {
		case "desktop", "email", "sms", "webhook":
		default:
			return eris.Errorf("config: unknown notification channel %q", ch)
		}
	}

	if c.Detection.ConfidenceFloor < 0 || c.Detection.ConfidenceFloor > 1 {
		return eris.New("config: detection.confidence_floor must be within [0, 1]")
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
