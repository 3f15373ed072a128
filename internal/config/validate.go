package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/scheduler"
)

// Validate checks everything that can be checked without opening connections.
// A hot reload that fails here keeps the previous config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "none", "memory":
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add(errors.New("storage.path is required when storage.driver=sqlite"))
		}
	case "postgres", "postgresql":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			add(errors.New("storage.dsn (or NOTIFYD_DATABASE_DSN) is required when storage.driver=postgres"))
		}
	default:
		add(fmt.Errorf("unknown storage.driver: %s", cfg.Storage.Driver))
	}
	_, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	add(err)
	if cfg.Storage.MaxOpenConns < 0 {
		add(errors.New("storage.max_open_conns must be >= 0"))
	}

	if c := strings.TrimSpace(cfg.Dispatch.DefaultCategory); c != "" {
		if _, ok := domain.ParseCategory(c); !ok {
			add(fmt.Errorf("dispatch.default_category: unknown %q", c))
		}
	}
	if p := strings.TrimSpace(cfg.Dispatch.DefaultPriority); p != "" {
		if _, ok := domain.ParsePriority(p); !ok {
			add(fmt.Errorf("dispatch.default_priority: unknown %q", p))
		}
	}
	for _, ch := range cfg.Dispatch.DefaultChannels {
		if _, ok := domain.ParseChannel(ch); !ok {
			add(fmt.Errorf("dispatch.default_channels: unknown %q", ch))
		}
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err))
		}
	}
	add(validateTrigger("triggers.compliance", cfg.Triggers.Compliance))
	add(validateTrigger("triggers.inactivity", cfg.Triggers.Inactivity))
	add(validateTrigger("triggers.profile", cfg.Triggers.Profile))
	if t := cfg.Triggers.Profile.Threshold; t < 0 || t > 100 {
		add(errors.New("triggers.profile.threshold must be in 0..100"))
	}
	if cfg.TriggerRatePerSec < 0 {
		add(errors.New("trigger_rate_per_sec must be >= 0"))
	}

	for _, k := range [][2]string{
		{"http.read_timeout", cfg.HTTP.ReadTimeout},
		{"http.write_timeout", cfg.HTTP.WriteTimeout},
		{"http.shutdown_timeout", cfg.HTTP.ShutdownTimeout},
	} {
		_, err := ParseDurationField(k[0], k[1])
		add(err)
	}
	if r := cfg.Realtime; r != nil && r.Enabled && strings.TrimSpace(r.Addr) == "" {
		add(errors.New("realtime.addr is required when realtime.enabled=true"))
	}
	if q := cfg.MailQ; q != nil && q.Enabled && strings.TrimSpace(q.URL) == "" {
		add(errors.New("mailq.url (or NOTIFYD_AMQP_URL) is required when mailq.enabled=true"))
	}
	return errors.Join(errs...)
}

func validateTrigger(path string, t TriggerConfig) error {
	var errs []error
	if strings.TrimSpace(t.Schedule) != "" {
		if _, err := scheduler.ParseSchedule(t.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("%s.schedule: %w", path, err))
		}
	}
	for _, k := range [][2]string{{"window", t.Window}, {"cooldown", t.Cooldown}, {"timeout", t.Timeout}} {
		if _, err := ParseDurationField(path+"."+k[0], k[1]); err != nil {
			errs = append(errs, err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(t.Match)) {
	case "", "type", "type+resource", "resource":
	default:
		errs = append(errs, fmt.Errorf("%s.match: unknown %q", path, t.Match))
	}
	if t.Batch < 0 {
		errs = append(errs, fmt.Errorf("%s.batch must be >= 0", path))
	}
	return errors.Join(errs...)
}
