package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"postbot/internal/poster"
	"postbot/internal/scheduler"
	"postbot/internal/storage"
	"postbot/internal/transport/chatwork"
	"postbot/internal/transport/telegram"
	logx "postbot/pkg/logx"
)

// Location loads the configured zone, defaulting to Asia/Tokyo.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", name, err)
	}
	return loc, nil
}

func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
	}
}

func (c *Config) SchedulerConfig() (scheduler.Config, error) {
	var (
		out scheduler.Config
		err error
	)
	if out.Interval, err = ParseDuration("scheduler.interval", c.Scheduler.Interval); err != nil {
		return out, err
	}
	if out.StoreTimeout, err = ParseDuration("scheduler.store_timeout", c.Scheduler.StoreTimeout); err != nil {
		return out, err
	}
	if out.SinkTimeout, err = ParseDuration("scheduler.sink_timeout", c.Scheduler.SinkTimeout); err != nil {
		return out, err
	}
	out = out.WithDefaults()
	return out, out.Validate()
}

func (c *Config) StorageConfig() (storage.Config, error) {
	busy, err := ParseDuration("storage.busy_timeout", c.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	driver := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch driver {
	case "", "memory":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required for driver %q", driver)
		}
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return storage.Config{}, fmt.Errorf("storage.dsn is required for driver %q", driver)
		}
	default:
		return storage.Config{}, fmt.Errorf("storage.driver: unknown driver %q", driver)
	}
	return storage.Config{
		Driver:      driver,
		Path:        c.Storage.Path,
		DSN:         c.Storage.DSN,
		BusyTimeout: busy,
		MaxConns:    c.Storage.MaxConns,
	}, nil
}

func (c *Config) PosterConfig() (poster.Config, error) {
	p := c.Poster
	out := poster.Config{RatePerSec: p.RatePerSec, RetryMax: p.RetryMax}
	var err error
	if out.CallTimeout, err = ParseDuration("poster.call_timeout", p.CallTimeout); err != nil {
		return out, err
	}
	if out.RetryBase, err = ParseDuration("poster.retry_base", p.RetryBase); err != nil {
		return out, err
	}
	if out.RetryMaxDelay, err = ParseDuration("poster.retry_max_delay", p.RetryMaxDelay); err != nil {
		return out, err
	}
	if p.RatePerSec < 0 || p.RetryMax < 0 {
		return out, errors.New("poster: rate_per_sec and retry_max must be >= 0")
	}
	return out, nil
}

// TransportName normalizes poster.transport; empty means chatwork.
func (c *Config) TransportName() (string, error) {
	switch t := strings.ToLower(strings.TrimSpace(c.Poster.Transport)); t {
	case "", "chatwork":
		return "chatwork", nil
	case "telegram":
		return "telegram", nil
	default:
		return "", fmt.Errorf("poster.transport: unknown transport %q", t)
	}
}

func (c *Config) ChatworkConfig() (chatwork.Config, error) {
	d, err := ParseDuration("poster.call_timeout", c.Poster.CallTimeout)
	if err != nil {
		return chatwork.Config{}, err
	}
	return chatwork.Config{BaseURL: c.Poster.Chatwork.BaseURL, Token: c.Poster.Chatwork.Token, Timeout: d}, nil
}

func (c *Config) TelegramConfig() (telegram.Config, error) {
	d, err := ParseDuration("poster.call_timeout", c.Poster.CallTimeout)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:     c.Poster.Telegram.Token,
		ParseMode: c.Poster.Telegram.ParseMode,
		URL:       c.Poster.Telegram.URL,
		Timeout:   d,
	}, nil
}

// HTTPSettings is the resolved HTTP section.
type HTTPSettings struct {
	Enabled        bool
	Addr           string
	Token          string
	AllowInsecure  bool
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Pprof          bool
}

func (c *Config) HTTPSettings() (HTTPSettings, error) {
	out := HTTPSettings{
		Enabled:        c.HTTP.Enabled,
		Addr:           strings.TrimSpace(c.HTTP.Addr),
		Token:          strings.TrimSpace(c.HTTP.Token),
		AllowInsecure:  c.HTTP.AllowInsecure,
		AllowedOrigins: c.HTTP.AllowedOrigins,
		Pprof:          c.HTTP.Pprof,
	}
	if out.Addr == "" {
		out.Addr = DefaultHTTPAddr
	}
	var err error
	if out.ReadTimeout, err = ParseDurationOr("http.read_timeout", c.HTTP.ReadTimeout, 10*time.Second); err != nil {
		return out, err
	}
	if out.WriteTimeout, err = ParseDurationOr("http.write_timeout", c.HTTP.WriteTimeout, 15*time.Second); err != nil {
		return out, err
	}
	return out, nil
}

// Validate resolves every section and joins the errors.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.SchedulerConfig(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.StorageConfig(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.PosterConfig(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.TransportName(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.HTTPSettings(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
