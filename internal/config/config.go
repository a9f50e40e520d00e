// Package config loads og-monitor settings from a YAML file, .env files and
// OGMON_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/lepinkainen/og-monitor/internal/lock"
	"github.com/lepinkainen/og-monitor/internal/notify"
	"github.com/lepinkainen/og-monitor/internal/storage"
	"github.com/lepinkainen/og-monitor/pkg/filesystem"
)

// EnvPrefix is prepended to every environment override, e.g. OGMON_SERVER_ADDR
const EnvPrefix = "OGMON"

// DefaultPath is the config file looked up when none is given
const DefaultPath = "config.yaml"

// Config holds the central application configuration
type Config struct {
	Server struct {
		Addr         string        `mapstructure:"addr"`
		CronSecret   string        `mapstructure:"cron_secret"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
		LogJSON      bool          `mapstructure:"log_json"`
	} `mapstructure:"server"`

	Storage struct {
		Driver string `mapstructure:"driver"` // memory, sqlite or postgres
		Path   string `mapstructure:"path"`   // SQLite file
		DSN    string `mapstructure:"dsn"`    // PostgreSQL connection string
	} `mapstructure:"storage"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Fetch struct {
		Timeout      time.Duration `mapstructure:"timeout"`
		MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
		UserAgent    string        `mapstructure:"user_agent"`
		HostDelay    time.Duration `mapstructure:"host_delay"` // minimum gap between fetches to one host
	} `mapstructure:"fetch"`

	Image struct {
		Timeout   time.Duration `mapstructure:"timeout"`
		CachePath string        `mapstructure:"cache_path"` // empty disables the probe cache
	} `mapstructure:"image"`

	Batch struct {
		Size  int           `mapstructure:"size"`
		Pause time.Duration `mapstructure:"pause"`
	} `mapstructure:"batch"`

	Notify struct {
		Channels    []string `mapstructure:"channels"`
		Destination string   `mapstructure:"destination"`
		Webhook     struct {
			URL     string        `mapstructure:"url"`
			Timeout time.Duration `mapstructure:"timeout"`
			OAuth2  struct {
				TokenURL     string   `mapstructure:"token_url"`
				ClientID     string   `mapstructure:"client_id"`
				ClientSecret string   `mapstructure:"client_secret"`
				Scopes       []string `mapstructure:"scopes"`
			} `mapstructure:"oauth2"`
		} `mapstructure:"webhook"`
		Email struct {
			Host     string `mapstructure:"host"`
			Port     int    `mapstructure:"port"`
			Username string `mapstructure:"username"`
			Password string `mapstructure:"password"`
			From     string `mapstructure:"from"`
			To       string `mapstructure:"to"`
		} `mapstructure:"email"`
	} `mapstructure:"notify"`

	Platforms struct {
		OverrideURL  string `mapstructure:"override_url"`
		OverridePath string `mapstructure:"override_path"`
	} `mapstructure:"platforms"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cron_secret", "")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.log_json", false)

	v.SetDefault("storage.driver", storage.DriverSQLite)
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.dsn", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("fetch.timeout", 10*time.Second)
	v.SetDefault("fetch.max_body_bytes", 2<<20)
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.host_delay", 500*time.Millisecond)

	v.SetDefault("image.timeout", 5*time.Second)
	v.SetDefault("image.cache_path", "")

	v.SetDefault("batch.size", 10)
	v.SetDefault("batch.pause", time.Second)

	v.SetDefault("notify.channels", []string{notify.ChannelLog})
	v.SetDefault("notify.destination", "")
	v.SetDefault("notify.webhook.url", "")
	v.SetDefault("notify.webhook.timeout", 10*time.Second)
	v.SetDefault("notify.webhook.oauth2.token_url", "")
	v.SetDefault("notify.webhook.oauth2.client_id", "")
	v.SetDefault("notify.webhook.oauth2.client_secret", "")
	v.SetDefault("notify.webhook.oauth2.scopes", []string{})
	v.SetDefault("notify.email.host", "")
	v.SetDefault("notify.email.port", 587)
	v.SetDefault("notify.email.username", "")
	v.SetDefault("notify.email.password", "")
	v.SetDefault("notify.email.from", "")
	v.SetDefault("notify.email.to", "")

	v.SetDefault("platforms.override_url", "")
	v.SetDefault("platforms.override_path", "")
}

// LoadConfig loads the configuration from path. A missing file is fine:
// defaults and environment variables still apply.
func LoadConfig(path string) (*Config, error) {
	for _, envFile := range []string{".env.local", ".env"} {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error loading %s: %w", envFile, err)
		}
	}

	v := newViper()
	path = resolvePath(path)
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// SaveConfig writes cfg to path as YAML
func SaveConfig(cfg *Config, path string) error {
	if path == "" {
		path = DefaultPath
	}
	if err := filesystem.EnsureDirectoryExists(path); err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server.addr", cfg.Server.Addr)
	v.Set("server.cron_secret", cfg.Server.CronSecret)
	v.Set("server.read_timeout", cfg.Server.ReadTimeout.String())
	v.Set("server.write_timeout", cfg.Server.WriteTimeout.String())
	v.Set("server.log_json", cfg.Server.LogJSON)
	v.Set("storage.driver", cfg.Storage.Driver)
	v.Set("storage.path", cfg.Storage.Path)
	v.Set("storage.dsn", cfg.Storage.DSN)
	v.Set("redis.addr", cfg.Redis.Addr)
	v.Set("redis.db", cfg.Redis.DB)
	v.Set("fetch.timeout", cfg.Fetch.Timeout.String())
	v.Set("fetch.max_body_bytes", cfg.Fetch.MaxBodyBytes)
	v.Set("fetch.host_delay", cfg.Fetch.HostDelay.String())
	v.Set("image.timeout", cfg.Image.Timeout.String())
	v.Set("image.cache_path", cfg.Image.CachePath)
	v.Set("batch.size", cfg.Batch.Size)
	v.Set("batch.pause", cfg.Batch.Pause.String())
	v.Set("notify.channels", cfg.Notify.Channels)
	v.Set("notify.destination", cfg.Notify.Destination)
	v.Set("notify.webhook.url", cfg.Notify.Webhook.URL)
	v.Set("notify.email.host", cfg.Notify.Email.Host)
	v.Set("notify.email.port", cfg.Notify.Email.Port)
	v.Set("notify.email.from", cfg.Notify.Email.From)
	v.Set("notify.email.to", cfg.Notify.Email.To)

	return v.WriteConfig()
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	v := newViper()
	var config Config
	// Defaults always decode
	_ = v.Unmarshal(&config)
	return &config
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// resolvePath tries the working directory first, then the og-monitor data
// directory, for relative paths
func resolvePath(path string) string {
	if path == "" {
		path = DefaultPath
	}
	if filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	if dataPath, err := filesystem.DefaultDataPath(path); err == nil {
		if _, err := os.Stat(dataPath); err == nil {
			return dataPath
		}
	}
	return path
}

// StorageConfig maps the storage section onto storage.Config
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{Driver: c.Storage.Driver, Path: c.Storage.Path, DSN: c.Storage.DSN}
}

// RedisConfig maps the redis section onto lock.RedisConfig
func (c *Config) RedisConfig() lock.RedisConfig {
	return lock.RedisConfig{Address: c.Redis.Addr, Password: c.Redis.Password, DB: c.Redis.DB}
}

// NotifyConfig maps the notify section onto notify.Config
func (c *Config) NotifyConfig() notify.Config {
	n := c.Notify
	return notify.Config{
		Channels: n.Channels,
		Webhook: notify.WebhookConfig{
			URL:     n.Webhook.URL,
			Timeout: n.Webhook.Timeout,
			OAuth2: notify.OAuth2Config{
				TokenURL:     n.Webhook.OAuth2.TokenURL,
				ClientID:     n.Webhook.OAuth2.ClientID,
				ClientSecret: n.Webhook.OAuth2.ClientSecret,
				Scopes:       n.Webhook.OAuth2.Scopes,
			},
		},
		Email: notify.EmailConfig{
			Host:     n.Email.Host,
			Port:     n.Email.Port,
			Username: n.Email.Username,
			Password: n.Email.Password,
			From:     n.Email.From,
			To:       n.Email.To,
		},
	}
}
