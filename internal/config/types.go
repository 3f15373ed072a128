package config

import (
	"bytes"
	"encoding/json"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Triggers  TriggersConfig  `json:"triggers"`

	// TriggerRatePerSec paces dispatches inside one trigger run. 0 disables pacing.
	TriggerRatePerSec float64 `json:"trigger_rate_per_sec,omitempty"`

	HTTP     HTTPConfig      `json:"http"`
	Realtime *RealtimeConfig `json:"realtime,omitempty"`
	MailQ    *MailQConfig    `json:"mailq,omitempty"`
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

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./notifyd.db" }
type StorageConfig struct {
	Driver       string `json:"driver"`
	Path         string `json:"path,omitempty"`
	DSN          string `json:"dsn,omitempty"` // postgres; do not log
	BusyTimeout  string `json:"busy_timeout,omitempty"`
	MaxOpenConns int    `json:"max_open_conns,omitempty"`
}

// DispatchConfig fills Params fields a caller leaves empty.
type DispatchConfig struct {
	DefaultCategory string   `json:"default_category,omitempty"`
	DefaultPriority string   `json:"default_priority,omitempty"`
	DefaultChannels []string `json:"default_channels,omitempty"`
	BaseURL         string   `json:"base_url,omitempty"`
}

type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`
}

type TriggersConfig struct {
	Compliance TriggerConfig `json:"compliance"`
	Inactivity TriggerConfig `json:"inactivity"`
	Profile    TriggerConfig `json:"profile"`
}

// TriggerConfig tunes one scanner. Durations are Go duration strings; zero
// values keep the built-in defaults.
type TriggerConfig struct {
	Enabled   bool   `json:"enabled"`
	Schedule  string `json:"schedule,omitempty"`
	Window    string `json:"window,omitempty"`
	Cooldown  string `json:"cooldown,omitempty"`
	Match     string `json:"match,omitempty"` // "type" | "type+resource"
	Batch     int    `json:"batch,omitempty"`
	Threshold int    `json:"threshold,omitempty"`
	Timeout   string `json:"timeout,omitempty"`

	// NoCooldown disables suppression; a zero Cooldown string means default.
	NoCooldown bool `json:"no_cooldown,omitempty"`
}

// HTTPConfig controls the ops/settings API.
type HTTPConfig struct {
	Enabled     bool     `json:"enabled"`
	Addr        string   `json:"addr,omitempty"` // default: "127.0.0.1:8087"
	CORSOrigins []string `json:"cors_origins,omitempty"`
	Token       string   `json:"token,omitempty"` // optional bearer token (do not log)
	// AllowInsecure permits a non-loopback addr without a token.
	AllowInsecure bool `json:"allow_insecure,omitempty"`
	// Pprof mounts /debug/pprof on the same server.
	Pprof bool `json:"pprof,omitempty"`

	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

// RealtimeConfig publishes unread counts to Redis pub/sub.
type RealtimeConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr"`
	Password      string `json:"password,omitempty"` // do not log
	DB            int    `json:"db,omitempty"`
	ChannelPrefix string `json:"channel_prefix,omitempty"` // default: "notifications:"
}

// MailQConfig wakes the mail worker over AMQP when an email is queued.
type MailQConfig struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url"` // do not log
	Exchange string `json:"exchange,omitempty"`
	Queue    string `json:"queue,omitempty"` // default: "email_queue"
}

// Clone deep-copies cfg through JSON.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	var out Config
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&out); err != nil {
		return nil
	}
	return &out
}
