package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/config"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/httpapi"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/notify"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/scheduler"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/storage"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/trigger"
	logx "github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/pkg/logx"
)

const defaultJobTimeout = 10 * time.Minute

// defaultSchedules run the scanners early in the working day.
var defaultSchedules = map[string]string{
	trigger.NameCompliance: "0 6 * * *",
	trigger.NameInactivity: "30 6 * * *",
	trigger.NameProfile:    "0 7 * * 1",
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapStorageConfig defaults an empty driver to memory; notifyd cannot run
// without a store.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "":
		driver = "memory"
	case "none":
		return storage.Config{}, fmt.Errorf("storage.driver=none is not supported by notifyd")
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:       driver,
		Path:         strings.TrimSpace(sc.Path),
		DSN:          strings.TrimSpace(sc.DSN),
		BusyTimeout:  busy,
		MaxOpenConns: sc.MaxOpenConns,
	}, nil
}

func mapDefaults(cfg *config.Config) notify.Defaults {
	d := notify.Defaults{BaseURL: cfg.Dispatch.BaseURL}
	if c, ok := domain.ParseCategory(cfg.Dispatch.DefaultCategory); ok {
		d.Category = c
	}
	if p, ok := domain.ParsePriority(cfg.Dispatch.DefaultPriority); ok {
		d.Priority = p
	}
	for _, raw := range cfg.Dispatch.DefaultChannels {
		if ch, ok := domain.ParseChannel(raw); ok {
			d.Channels = append(d.Channels, ch)
		}
	}
	return d
}

func mapRules(cfg *config.Config) (trigger.Rules, error) {
	def := trigger.DefaultRules()
	var (
		out trigger.Rules
		err error
	)
	if out.Compliance, err = mapRule("triggers.compliance", cfg.Triggers.Compliance, def.Compliance); err != nil {
		return trigger.Rules{}, err
	}
	if out.Inactivity, err = mapRule("triggers.inactivity", cfg.Triggers.Inactivity, def.Inactivity); err != nil {
		return trigger.Rules{}, err
	}
	if out.Profile, err = mapRule("triggers.profile", cfg.Triggers.Profile, def.Profile); err != nil {
		return trigger.Rules{}, err
	}
	return out, out.Validate()
}

func mapRule(path string, tc config.TriggerConfig, def trigger.Rule) (trigger.Rule, error) {
	r := def
	var err error
	if r.Window, err = config.ParseDurationOrDefault(path+".window", tc.Window, def.Window); err != nil {
		return r, err
	}
	if tc.NoCooldown {
		r.Cooldown = 0
	} else if r.Cooldown, err = config.ParseDurationOrDefault(path+".cooldown", tc.Cooldown, def.Cooldown); err != nil {
		return r, err
	}
	if strings.TrimSpace(tc.Match) != "" {
		if r.Match, err = trigger.ParseMatch(tc.Match); err != nil {
			return r, fmt.Errorf("%s.match: %w", path, err)
		}
	}
	if tc.Batch > 0 {
		r.Batch = tc.Batch
	}
	if tc.Threshold > 0 {
		r.Threshold = tc.Threshold
	}
	return r, nil
}

type jobSpec struct {
	name     string
	enabled  bool
	schedule string
	timeout  time.Duration
}

func mapJobs(cfg *config.Config) ([]jobSpec, error) {
	byName := map[string]config.TriggerConfig{
		trigger.NameCompliance: cfg.Triggers.Compliance,
		trigger.NameInactivity: cfg.Triggers.Inactivity,
		trigger.NameProfile:    cfg.Triggers.Profile,
	}
	out := make([]jobSpec, 0, len(byName))
	for _, name := range trigger.Names() {
		tc := byName[name]
		timeout, err := config.ParseDurationOrDefault("triggers."+name+".timeout", tc.Timeout, defaultJobTimeout)
		if err != nil {
			return nil, err
		}
		sched := strings.TrimSpace(tc.Schedule)
		if sched == "" {
			sched = defaultSchedules[name]
		}
		out = append(out, jobSpec{name: name, enabled: tc.Enabled, schedule: sched, timeout: timeout})
	}
	return out, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Enabled: cfg.Scheduler.Enabled, Timezone: cfg.Scheduler.Timezone}
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, error) {
	hc := cfg.HTTP
	rt, err := config.ParseDurationOrDefault("http.read_timeout", hc.ReadTimeout, 10*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	// Trigger runs can be long; 0 leaves writes unbounded.
	wt, err := config.ParseDurationField("http.write_timeout", hc.WriteTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	st, err := config.ParseDurationOrDefault("http.shutdown_timeout", hc.ShutdownTimeout, 5*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	return httpapi.Config{
		Addr:            strings.TrimSpace(hc.Addr),
		Token:           strings.TrimSpace(hc.Token),
		AllowInsecure:   hc.AllowInsecure,
		Pprof:           hc.Pprof,
		CORSOrigins:     hc.CORSOrigins,
		ReadTimeout:     rt,
		WriteTimeout:    wt,
		ShutdownTimeout: st,
	}, nil
}
