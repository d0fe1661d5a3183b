// Package config loads provdash settings from defaults, an optional YAML
// file, PROVDASH_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/modoterra/provdash/pkg/api"
)

const (
	EnvPrefix = "PROVDASH"
	appDir    = "provdash"
)

// Config is the resolved configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Session SessionConfig `mapstructure:"session"`
	UI      UIConfig      `mapstructure:"ui"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logs    LogsConfig    `mapstructure:"logs"`
	Log     LogConfig     `mapstructure:"log"`
	Stats   StatsConfig   `mapstructure:"stats"`

	// Source is the config file that was read, or "" if none was.
	Source string `mapstructure:"-"`
}

type APIConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

type SessionConfig struct {
	Path string `mapstructure:"path"`
}

type UIConfig struct {
	PageSize int           `mapstructure:"page_size"`
	Refresh  time.Duration `mapstructure:"refresh"`
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// LogsConfig tunes the live log viewer.
type LogsConfig struct {
	Buffer    int           `mapstructure:"buffer"`
	Reconnect bool          `mapstructure:"reconnect"`
	Backoff   time.Duration `mapstructure:"backoff"`
}

// LogConfig is provdash's own diagnostic log.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Journal bool   `mapstructure:"journal"`
}

type StatsConfig struct {
	GroupBy string `mapstructure:"group_by"`
	From    string `mapstructure:"from"`
	To      string `mapstructure:"to"`
}

// Dir returns the per-user provdash directory.
func Dir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, appDir)
}

// DefaultFile is where config init writes and Load looks by default.
func DefaultFile() string {
	return filepath.Join(Dir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	dir := Dir()
	v.SetDefault("api.base_url", "http://localhost:8000/api")
	v.SetDefault("api.timeout", time.Duration(0))
	v.SetDefault("api.insecure_skip_verify", false)
	v.SetDefault("session.path", filepath.Join(dir, "session.yaml"))
	v.SetDefault("ui.page_size", 10)
	v.SetDefault("ui.refresh", 30*time.Second)
	v.SetDefault("cache.ttl", 30*time.Second)
	v.SetDefault("logs.buffer", 100)
	v.SetDefault("logs.reconnect", true)
	v.SetDefault("logs.backoff", time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", filepath.Join(dir, "provdash.log"))
	v.SetDefault("log.journal", false)
	v.SetDefault("stats.group_by", api.DefaultGroupBy)
	v.SetDefault("stats.from", api.DefaultStatsFrom)
	v.SetDefault("stats.to", api.DefaultStatsTo)
}

// flagKeys maps persistent flag names to config keys.
var flagKeys = map[string]string{
	"api":       "api.base_url",
	"log-level": "log.level",
	"session":   "session.path",
	"page-size": "ui.page_size",
}

// Default returns the built-in configuration with no file or environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	// Defaults are typed values; decoding them cannot fail.
	_ = v.Unmarshal(&c)
	return &c
}

// Load resolves the configuration. An explicit cfgFile must exist; the
// default file is optional. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		path, err := expandTilde(cfgFile)
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	} else {
		v.AddConfigPath(Dir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag --%s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.Source = v.ConfigFileUsed()
	if _, err := os.Stat(c.Source); err != nil {
		c.Source = ""
	}

	var err error
	if c.Session.Path, err = expandTilde(c.Session.Path); err != nil {
		return nil, err
	}
	if c.Log.File, err = expandTilde(c.Log.File); err != nil {
		return nil, err
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	return &c, nil
}

func expandTilde(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	return filepath.Join(home, path[1:]), nil
}
