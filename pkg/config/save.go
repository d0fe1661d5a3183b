package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type fileAPI struct {
	BaseURL            string `yaml:"base_url"`
	Timeout            string `yaml:"timeout"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

type fileUI struct {
	PageSize int    `yaml:"page_size"`
	Refresh  string `yaml:"refresh"`
}

type fileLogs struct {
	Buffer    int    `yaml:"buffer"`
	Reconnect bool   `yaml:"reconnect"`
	Backoff   string `yaml:"backoff"`
}

// file is the on-disk layout. Durations are written in Go duration syntax
// so the file stays readable and round-trips through Load.
type file struct {
	API     fileAPI `yaml:"api"`
	Session struct {
		Path string `yaml:"path"`
	} `yaml:"session"`
	UI    fileUI `yaml:"ui"`
	Cache struct {
		TTL string `yaml:"ttl"`
	} `yaml:"cache"`
	Logs fileLogs `yaml:"logs"`
	Log  struct {
		Level   string `yaml:"level"`
		File    string `yaml:"file"`
		Journal bool   `yaml:"journal"`
	} `yaml:"log"`
	Stats struct {
		GroupBy string `yaml:"group_by"`
		From    string `yaml:"from"`
		To      string `yaml:"to"`
	} `yaml:"stats"`
}

func toFile(c *Config) file {
	var f file
	f.API = fileAPI{
		BaseURL:            c.API.BaseURL,
		Timeout:            c.API.Timeout.String(),
		InsecureSkipVerify: c.API.InsecureSkipVerify,
	}
	f.Session.Path = c.Session.Path
	f.UI = fileUI{PageSize: c.UI.PageSize, Refresh: c.UI.Refresh.String()}
	f.Cache.TTL = c.Cache.TTL.String()
	f.Logs = fileLogs{Buffer: c.Logs.Buffer, Reconnect: c.Logs.Reconnect, Backoff: c.Logs.Backoff.String()}
	f.Log.Level = c.Log.Level
	f.Log.File = c.Log.File
	f.Log.Journal = c.Log.Journal
	f.Stats.GroupBy = c.Stats.GroupBy
	f.Stats.From = c.Stats.From
	f.Stats.To = c.Stats.To
	return f
}

// Marshal encodes c as YAML.
func Marshal(c *Config) ([]byte, error) {
	return yaml.Marshal(toFile(c))
}

// Save writes c to path, creating parent directories. It refuses to
// overwrite an existing file unless force is set.
func Save(c *Config, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	data, err := Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
