// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/perm-crawler/internal/perm"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	DB       DBConfig       `mapstructure:"db"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Events   EventsConfig   `mapstructure:"events"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Harvest  HarvestConfig  `mapstructure:"harvest"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// SourceConfig describes the DOL grid and how politely to query it.
type SourceConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	VisaClassID    int     `mapstructure:"visa_class_id"`
	Rows           int     `mapstructure:"rows"`
	Timezone       string  `mapstructure:"timezone"`
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RespectRobots  bool    `mapstructure:"respect_robots"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Driver                 string `mapstructure:"driver"`
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
	Migrate                bool   `mapstructure:"migrate"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig guards the cookie ingestion endpoint.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// EventsConfig selects where crawl lifecycle events go.
type EventsConfig struct {
	Driver      string `mapstructure:"driver"`
	ProjectID   string `mapstructure:"project_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// ArchiveConfig selects where raw grid pages are kept.
type ArchiveConfig struct {
	Driver  string `mapstructure:"driver"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// NotifyConfig holds OneSignal credentials.
type NotifyConfig struct {
	BaseURL  string   `mapstructure:"base_url"`
	AppID    string   `mapstructure:"app_id"`
	APIKey   string   `mapstructure:"api_key"`
	Segments []string `mapstructure:"segments"`
}

// HarvestConfig controls the browser cookie harvester.
type HarvestConfig struct {
	URL               string `mapstructure:"url"`
	Headless          bool   `mapstructure:"headless"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	LoginWaitSeconds  int    `mapstructure:"login_wait_seconds"`
}

// ScheduleConfig drives the in-process cron used by serve.
type ScheduleConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Crawl   string `mapstructure:"crawl"`
	Notify  bool   `mapstructure:"notify"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PERM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Every key is defaulted, even to "", so AutomaticEnv can override it on Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("source.base_url", "https://lcr-pjr.doleta.gov/index.cfm")
	v.SetDefault("source.visa_class_id", 6)
	v.SetDefault("source.rows", 100)
	v.SetDefault("source.timezone", perm.SourceTimezone)
	v.SetDefault("source.user_agent", "Mozilla/5.0 (compatible; perm-crawler/1.0)")
	v.SetDefault("source.timeout_seconds", 30)
	v.SetDefault("source.respect_robots", false)
	v.SetDefault("source.rate_limit_rps", 1.0)
	v.SetDefault("source.rate_limit_burst", 1)
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_seconds", 1800)
	v.SetDefault("db.migrate", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("events.driver", "none")
	v.SetDefault("events.project_id", "")
	v.SetDefault("events.topic_prefix", "")
	v.SetDefault("archive.driver", "none")
	v.SetDefault("archive.base_dir", "")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("notify.base_url", "https://onesignal.com/api/v1")
	v.SetDefault("notify.app_id", "")
	v.SetDefault("notify.api_key", "")
	v.SetDefault("notify.segments", []string{"All"})
	v.SetDefault("harvest.url", "https://lcr-pjr.doleta.gov")
	v.SetDefault("harvest.headless", true)
	v.SetDefault("harvest.nav_timeout_seconds", 45)
	v.SetDefault("harvest.login_wait_seconds", 0)
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.crawl", "0 6 * * *")
	v.SetDefault("schedule.notify", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if _, err := perm.LoadLocation(c.Source.Timezone); err != nil {
		return fmt.Errorf("source.timezone: %w", err)
	}
	if c.Source.Rows <= 0 {
		return fmt.Errorf("source.rows must be > 0")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	switch c.DB.Driver {
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("db.driver must be postgres or memory, got %q", c.DB.Driver)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Events.Driver {
	case "none", "memory":
	case "pubsub":
		if c.Events.ProjectID == "" {
			return fmt.Errorf("events.project_id must be set for the pubsub driver")
		}
	default:
		return fmt.Errorf("events.driver must be none, memory or pubsub, got %q", c.Events.Driver)
	}
	switch c.Archive.Driver {
	case "none", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local driver")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set for the gcs driver")
		}
	default:
		return fmt.Errorf("archive.driver must be none, memory, local or gcs, got %q", c.Archive.Driver)
	}
	if c.Schedule.Enabled && strings.TrimSpace(c.Schedule.Crawl) == "" {
		return fmt.Errorf("schedule.crawl must be set when the schedule is enabled")
	}
	return nil
}

// Location resolves the source timezone.
func (c Config) Location() (*time.Location, error) {
	return perm.LoadLocation(c.Source.Timezone)
}

// SourceTimeout converts the source timeout into a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// NotifyConfigured reports whether OneSignal credentials are present.
func (c Config) NotifyConfigured() bool {
	return c.Notify.AppID != "" && c.Notify.APIKey != ""
}
