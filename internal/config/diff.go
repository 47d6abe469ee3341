package config

import (
	"slices"
	"strings"

	logx "postbot/pkg/logx"
)

// SummarizeChange lists the changed sections and returns safe log fields for
// them. Tokens and the DSN are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		changed = append(changed, "timezone")
		attrs = append(attrs, logx.String("timezone", newCfg.Timezone))
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.interval", newCfg.Scheduler.Interval),
			logx.String("scheduler.store_timeout", newCfg.Scheduler.StoreTimeout),
			logx.String("scheduler.sink_timeout", newCfg.Scheduler.SinkTimeout),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}

	if oldCfg.Poster != newCfg.Poster {
		changed = append(changed, "poster")
		attrs = append(attrs,
			logx.String("poster.transport", newCfg.Poster.Transport),
			logx.Int("poster.rate_per_sec", newCfg.Poster.RatePerSec),
			logx.Int("poster.retry_max", newCfg.Poster.RetryMax),
			logx.Bool("poster.chatwork_token_set", newCfg.Poster.Chatwork.Token != ""),
			logx.Bool("poster.telegram_token_set", newCfg.Poster.Telegram.Token != ""),
		)
	}

	if oldCfg.HTTP.Enabled != newCfg.HTTP.Enabled ||
		oldCfg.HTTP.Addr != newCfg.HTTP.Addr ||
		oldCfg.HTTP.Token != newCfg.HTTP.Token ||
		oldCfg.HTTP.AllowInsecure != newCfg.HTTP.AllowInsecure ||
		oldCfg.HTTP.Pprof != newCfg.HTTP.Pprof ||
		oldCfg.HTTP.ReadTimeout != newCfg.HTTP.ReadTimeout ||
		oldCfg.HTTP.WriteTimeout != newCfg.HTTP.WriteTimeout ||
		!slices.Equal(oldCfg.HTTP.AllowedOrigins, newCfg.HTTP.AllowedOrigins) {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", newCfg.HTTP.Addr),
			logx.Bool("http.token_set", newCfg.HTTP.Token != ""),
			logx.Bool("http.pprof", newCfg.HTTP.Pprof),
			logx.Int("http.origins", len(newCfg.HTTP.AllowedOrigins)),
		)
	}

	return changed, attrs
}

// RequiresRestart reports whether the change touches settings that are only
// read at startup.
func RequiresRestart(oldCfg, newCfg *Config) bool {
	if oldCfg == nil || newCfg == nil {
		return false
	}
	oldT, _ := oldCfg.TransportName()
	newT, _ := newCfg.TransportName()
	return strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) ||
		oldCfg.Storage != newCfg.Storage ||
		oldT != newT ||
		oldCfg.Poster.Chatwork != newCfg.Poster.Chatwork ||
		oldCfg.Poster.Telegram != newCfg.Poster.Telegram
}
