package config

import (
	"reflect"
	"strings"

	logx "github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/pkg/logx"
)

// SummarizeConfigChange lists changed sections plus log-safe attrs. Secrets
// (DSN, tokens, passwords, AMQP URL) are reported only as *_set flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Dispatch, newCfg.Dispatch) {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.String("dispatch.default_category", newCfg.Dispatch.DefaultCategory),
			logx.Strs("dispatch.default_channels", newCfg.Dispatch.DefaultChannels),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}
	if oldCfg.Triggers != newCfg.Triggers || oldCfg.TriggerRatePerSec != newCfg.TriggerRatePerSec {
		changed = append(changed, "triggers")
		attrs = append(attrs,
			logx.Bool("triggers.compliance", newCfg.Triggers.Compliance.Enabled),
			logx.Bool("triggers.inactivity", newCfg.Triggers.Inactivity.Enabled),
			logx.Bool("triggers.profile", newCfg.Triggers.Profile.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", newCfg.HTTP.Addr),
			logx.Bool("http.token_set", strings.TrimSpace(newCfg.HTTP.Token) != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Realtime, newCfg.Realtime) {
		changed = append(changed, "realtime")
	}
	if !reflect.DeepEqual(oldCfg.MailQ, newCfg.MailQ) {
		changed = append(changed, "mailq")
	}
	return changed, attrs
}

// RestartRequired reports sections that only take effect on restart.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "storage", "dispatch", "http", "realtime", "mailq":
			out = append(out, s)
		}
	}
	return out
}
