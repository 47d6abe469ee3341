package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings ("500ms", "10s", "1m").
type Config struct {
	// Timezone is the reference zone for trigger calendar math (IANA name).
	// Default: "Asia/Tokyo".
	Timezone string `json:"timezone,omitempty"`

	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   StorageConfig   `json:"storage"`
	Poster    PosterConfig    `json:"poster"`
	HTTP      HTTPConfig      `json:"http"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the polling loop.
//
// Defaults: interval "30s" (allowed 1s..60s), store_timeout "5s",
// sink_timeout "30s".
type SchedulerConfig struct {
	Interval     string `json:"interval,omitempty"`
	StoreTimeout string `json:"store_timeout,omitempty"`
	SinkTimeout  string `json:"sink_timeout,omitempty"`
}

// StorageConfig selects the record store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/postbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // memory | file | sqlite | postgres
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"` // postgres (do not log)
	BusyTimeout string `json:"busy_timeout,omitempty"`
	MaxConns    int32  `json:"max_conns,omitempty"`
}

// PosterConfig selects the chat transport and its throttling.
type PosterConfig struct {
	Transport     string         `json:"transport"` // chatwork | telegram
	RatePerSec    int            `json:"rate_per_sec,omitempty"`
	CallTimeout   string         `json:"call_timeout,omitempty"`
	RetryMax      int            `json:"retry_max,omitempty"`
	RetryBase     string         `json:"retry_base,omitempty"`
	RetryMaxDelay string         `json:"retry_max_delay,omitempty"`
	Chatwork      ChatworkConfig `json:"chatwork"`
	Telegram      TelegramConfig `json:"telegram"`
}

type ChatworkConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	Token   string `json:"token,omitempty"` // fallback when a post has none (do not log)
}

type TelegramConfig struct {
	Token     string `json:"token,omitempty"` // fallback bot token (do not log)
	ParseMode string `json:"parse_mode,omitempty"`
	URL       string `json:"url,omitempty"`
}

// HTTPConfig controls the registration API.
//
// A non-loopback addr requires token unless allow_insecure is set.
type HTTPConfig struct {
	Enabled        bool     `json:"enabled"`
	Addr           string   `json:"addr,omitempty"`  // default: "127.0.0.1:8080"
	Token          string   `json:"token,omitempty"` // bearer token (do not log)
	AllowInsecure  bool     `json:"allow_insecure,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
	ReadTimeout    string   `json:"read_timeout,omitempty"`
	WriteTimeout   string   `json:"write_timeout,omitempty"`
	// Pprof mounts net/http/pprof under /debug/pprof/ behind the same token.
	Pprof bool `json:"pprof,omitempty"`
}

const (
	DefaultTimezone = "Asia/Tokyo"
	DefaultHTTPAddr = "127.0.0.1:8080"
)
