package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./notifyd.db
  busy_timeout: 2s
dispatch:
  default_category: SYSTEM
  default_channels: [IN_APP, EMAIL]
  base_url: https://verified.example.org
scheduler:
  enabled: true
  timezone: UTC
triggers:
  compliance:
    enabled: true
    schedule: "0 6 * * *"
    window: 30d
    cooldown: 30d
    match: type+resource
  inactivity:
    enabled: true
    schedule: "@daily"
    batch: 100
  profile:
    enabled: false
    threshold: 80
trigger_rate_per_sec: 20
http:
  enabled: true
  addr: 127.0.0.1:8087
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	m := NewConfigManager(writeFile(t, "notifyd.yaml", sampleYAML))
	m.SetValidator(func(_ context.Context, cfg *Config) error { return Validate(cfg) })
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Triggers.Compliance.Match != "type+resource" || cfg.TriggerRatePerSec != 20 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if m.Get() != cfg {
		t.Fatal("Load did not commit")
	}
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	if _, err := Decode("c.json", []byte(`{"logging":{},"telegram":{}}`)); err == nil {
		t.Fatal("expected unknown field error")
	}
	if _, err := Decode("c.json", []byte(`{} {}`)); err == nil {
		t.Fatal("expected trailing data error")
	}
	if _, err := Decode("c.yml", []byte("storage:\n  driver: memory\n")); err != nil {
		t.Fatalf("yml decode: %v", err)
	}
}

func TestDecodeAppliesEnvSecrets(t *testing.T) {
	t.Setenv("NOTIFYD_DATABASE_DSN", "postgres://u:p@db/notify")
	cfg, err := Decode("c.json", []byte(`{"storage":{"driver":"postgres"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Storage.DSN != "postgres://u:p@db/notify" {
		t.Fatalf("DSN = %q", cfg.Storage.DSN)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mut  func(c *Config)
		want string
	}{
		{name: "ok", mut: func(c *Config) {}},
		{name: "bad driver", mut: func(c *Config) { c.Storage.Driver = "mongo" }, want: "unknown storage.driver"},
		{name: "sqlite needs path", mut: func(c *Config) { c.Storage = StorageConfig{Driver: "sqlite"} }, want: "storage.path"},
		{name: "bad category", mut: func(c *Config) { c.Dispatch.DefaultCategory = "NEWS" }, want: "default_category"},
		{name: "bad channel", mut: func(c *Config) { c.Dispatch.DefaultChannels = []string{"PIGEON"} }, want: "default_channels"},
		{name: "bad tz", mut: func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, want: "scheduler.timezone"},
		{name: "bad schedule", mut: func(c *Config) { c.Triggers.Compliance.Schedule = "sometimes" }, want: "triggers.compliance.schedule"},
		{name: "bad window", mut: func(c *Config) { c.Triggers.Inactivity.Window = "soon" }, want: "triggers.inactivity.window"},
		{name: "bad match", mut: func(c *Config) { c.Triggers.Profile.Match = "user" }, want: "triggers.profile.match"},
		{name: "bad threshold", mut: func(c *Config) { c.Triggers.Profile.Threshold = 120 }, want: "threshold"},
		{name: "realtime addr", mut: func(c *Config) { c.Realtime = &RealtimeConfig{Enabled: true} }, want: "realtime.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Decode("c.yaml", []byte(sampleYAML))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			tt.mut(cfg)
			err = Validate(cfg)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: "90s", want: 90 * time.Second},
		{raw: "30d", want: 30 * 24 * time.Hour},
		{raw: "xd", wantErr: true},
		{raw: "-1s", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDurationField("k", tt.raw)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("ParseDurationField(%q) = %v, %v", tt.raw, got, err)
		}
	}
	if d, _ := ParseDurationOrDefault("k", "", time.Minute); d != time.Minute {
		t.Fatalf("default not applied: %v", d)
	}
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	oldCfg := &Config{Storage: StorageConfig{Driver: "postgres", DSN: "a"}}
	newCfg := &Config{Storage: StorageConfig{Driver: "postgres", DSN: "b"}, Scheduler: SchedulerConfig{Timezone: "UTC"}}
	sections, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(sections, ",") != "storage,scheduler" {
		t.Fatalf("sections = %v", sections)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
	if got := RestartRequired(sections); len(got) != 1 || got[0] != "storage" {
		t.Fatalf("RestartRequired = %v", got)
	}
}

func TestPublishKeepsNewest(t *testing.T) {
	m := NewConfigManager("unused.json")
	ch := m.Subscribe(1)
	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)
	if got := <-ch; got != b {
		t.Fatal("slow subscriber should receive the newest config")
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
}

func TestWatchPublishesChange(t *testing.T) {
	p := writeFile(t, "notifyd.json", `{"logging":{"level":"info"}}`)
	m := NewConfigManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-sub:
			if cfg.Logging.Level != "debug" {
				t.Fatalf("level = %q", cfg.Logging.Level)
			}
			return
		case <-tick.C:
			_ = os.WriteFile(p, []byte(`{"logging":{"level":"debug"}}`), 0o600)
		case <-deadline:
			t.Fatal("no reload published")
		}
	}
}

func TestLoadEnvAndResolvePath(t *testing.T) {
	envFile := writeFile(t, ".env", "NOTIFYD_TEST_VALUE=from-file\n")
	t.Setenv("NOTIFYD_TEST_VALUE", "")
	os.Unsetenv("NOTIFYD_TEST_VALUE")
	if err := LoadEnv(envFile, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv("NOTIFYD_TEST_VALUE"); got != "from-file" {
		t.Fatalf("env = %q", got)
	}
	t.Setenv(EnvConfigPath, "/etc/notifyd.yaml")
	if got := ResolvePath("", "./config.yaml"); got != "/etc/notifyd.yaml" {
		t.Fatalf("ResolvePath = %q", got)
	}
	if got := ResolvePath("x.json", "./config.yaml"); got != "x.json" {
		t.Fatalf("ResolvePath flag = %q", got)
	}
}
