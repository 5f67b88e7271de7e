package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Config is the full process configuration. It is loaded once at startup and
// passed to components explicitly; there is no global settings object.
type Config struct {
	Telegram    TelegramConfig    `yaml:"telegram"`
	Leaguepedia LeaguepediaConfig `yaml:"leaguepedia"`
	Database    DatabaseConfig    `yaml:"database"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Notify      NotifyConfig      `yaml:"notify"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	APIURL string `yaml:"api_url"`
	// Bot enables the interactive command surface (long polling).
	Bot bool `yaml:"bot"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `yaml:"poll_timeout"`
}

type LeaguepediaConfig struct {
	APIURL    string `yaml:"api_url"`
	UserAgent string `yaml:"user_agent"`
	// Timeout is a Go duration string; applies per HTTP call.
	Timeout string `yaml:"timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
	// BusyTimeout is a Go duration string (sqlite busy_timeout pragma).
	BusyTimeout string `yaml:"busy_timeout"`
}

type SchedulerConfig struct {
	// FetchIntervalMinutes controls the match-data fetch job (default 30).
	FetchIntervalMinutes int `yaml:"fetch_interval_minutes"`
	// CheckIntervalMinutes controls the detect+notify job (default 5).
	CheckIntervalMinutes int `yaml:"check_interval_minutes"`
	// FetchDays is the lookahead window passed to the schedule source (default 2).
	FetchDays int `yaml:"fetch_days"`
	// Timezone is used when rendering match times in alert messages.
	Timezone string `yaml:"timezone"`
}

type NotifyConfig struct {
	// MaxRetries is the per-notification retry budget (default 3).
	MaxRetries int `yaml:"max_retries"`
	// RetryWindow bounds how old a failed record may be and still get retried
	// (Go duration string, default "24h").
	RetryWindow string `yaml:"retry_window"`
}

type LoggingConfig struct {
	Level   string      `yaml:"level"`
	Console bool        `yaml:"console"`
	File    LoggingFile `yaml:"file"`
}

type LoggingFile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]{35,}$`)

// Load reads, strictly decodes, defaults, and validates the config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	// Unknown keys are caught early rather than silently ignored.
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with all defaults applied and no credentials set.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Telegram.APIURL) == "" {
		c.Telegram.APIURL = "https://api.telegram.org/bot"
	}
	if strings.TrimSpace(c.Telegram.PollTimeout) == "" {
		c.Telegram.PollTimeout = "10s"
	}
	if strings.TrimSpace(c.Leaguepedia.APIURL) == "" {
		c.Leaguepedia.APIURL = "https://lol.fandom.com/api.php"
	}
	if strings.TrimSpace(c.Leaguepedia.UserAgent) == "" {
		c.Leaguepedia.UserAgent = "matchbell/1.0"
	}
	if strings.TrimSpace(c.Leaguepedia.Timeout) == "" {
		c.Leaguepedia.Timeout = "30s"
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		c.Database.Path = "data/matchbell.db"
	}
	if strings.TrimSpace(c.Database.BusyTimeout) == "" {
		c.Database.BusyTimeout = "5s"
	}
	if c.Scheduler.FetchIntervalMinutes <= 0 {
		c.Scheduler.FetchIntervalMinutes = 30
	}
	if c.Scheduler.CheckIntervalMinutes <= 0 {
		c.Scheduler.CheckIntervalMinutes = 5
	}
	if c.Scheduler.FetchDays <= 0 {
		c.Scheduler.FetchDays = 2
	}
	if c.Notify.MaxRetries <= 0 {
		c.Notify.MaxRetries = 3
	}
	if strings.TrimSpace(c.Notify.RetryWindow) == "" {
		c.Notify.RetryWindow = "24h"
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks ranges and required fields.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	} else if !tokenPattern.MatchString(strings.TrimSpace(c.Telegram.Token)) {
		errs = append(errs, errors.New("telegram.token does not look like a bot token"))
	}
	if c.Scheduler.FetchIntervalMinutes < 1 || c.Scheduler.FetchIntervalMinutes > 1440 {
		errs = append(errs, errors.New("scheduler.fetch_interval_minutes must be within 1-1440"))
	}
	if c.Scheduler.CheckIntervalMinutes < 1 || c.Scheduler.CheckIntervalMinutes > 60 {
		errs = append(errs, errors.New("scheduler.check_interval_minutes must be within 1-60"))
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := timeLoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"leaguepedia.timeout", c.Leaguepedia.Timeout},
		{"database.busy_timeout", c.Database.BusyTimeout},
		{"notify.retry_window", c.Notify.RetryWindow},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ParseDurationField parses one of the Go-duration string fields above
// (poll_timeout, busy_timeout, retry_window, ...). Empty input means "not
// set" and yields 0 without an error so callers can apply their own default;
// negative durations are rejected. path names the field in the error.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault resolves an optional duration field, substituting
// def when the field is unset or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

func timeLoadLocation(name string) (*time.Location, error) { return time.LoadLocation(name) }
