package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/modoterra/provdash/pkg/api"
)

const (
	maxPageSize = 500
	dateLayout  = "2006-01-02"
)

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration for values the rest of provdash
// cannot work with.
func Validate(c *Config) []error {
	var errs []error

	u, err := url.Parse(c.API.BaseURL)
	switch {
	case c.API.BaseURL == "":
		errs = append(errs, fmt.Errorf("api.base_url is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("api.base_url: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("api.base_url must be http or https, got %q", u.Scheme))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("api.base_url has no host"))
	}
	if c.API.Timeout < 0 {
		errs = append(errs, fmt.Errorf("api.timeout must not be negative"))
	}

	if c.Session.Path == "" {
		errs = append(errs, fmt.Errorf("session.path is required"))
	}

	if c.UI.PageSize < 1 || c.UI.PageSize > maxPageSize {
		errs = append(errs, fmt.Errorf("ui.page_size must be between 1 and %d, got %d", maxPageSize, c.UI.PageSize))
	}
	if c.UI.Refresh < 0 {
		errs = append(errs, fmt.Errorf("ui.refresh must not be negative"))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must not be negative"))
	}

	if c.Logs.Buffer < 1 {
		errs = append(errs, fmt.Errorf("logs.buffer must be at least 1, got %d", c.Logs.Buffer))
	}
	if c.Logs.Reconnect && c.Logs.Backoff <= 0 {
		errs = append(errs, fmt.Errorf("logs.backoff must be positive when logs.reconnect is set"))
	}

	if !logLevels[c.Log.Level] {
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error; got %q", c.Log.Level))
	}

	if err := (api.StatsQuery{GroupBy: c.Stats.GroupBy}).Validate(); err != nil {
		errs = append(errs, fmt.Errorf("stats.%w", err))
	}
	from, ferr := time.Parse(dateLayout, c.Stats.From)
	if ferr != nil {
		errs = append(errs, fmt.Errorf("stats.from must be YYYY-MM-DD, got %q", c.Stats.From))
	}
	to, terr := time.Parse(dateLayout, c.Stats.To)
	if terr != nil {
		errs = append(errs, fmt.Errorf("stats.to must be YYYY-MM-DD, got %q", c.Stats.To))
	}
	if ferr == nil && terr == nil && to.Before(from) {
		errs = append(errs, fmt.Errorf("stats.to %s is before stats.from %s", c.Stats.To, c.Stats.From))
	}

	return errs
}
