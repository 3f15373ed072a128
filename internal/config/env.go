package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// EnvConfigPath names the variable that selects the config file.
const EnvConfigPath = "NOTIFYD_CONFIG"

// LoadEnv reads .env files into the process environment without overriding
// variables already set. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ResolvePath returns flagPath, else $NOTIFYD_CONFIG, else def.
func ResolvePath(flagPath, def string) string {
	if p := strings.TrimSpace(flagPath); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return def
}

// applyEnv overlays secrets that deployments keep out of config files.
func applyEnv(cfg *Config) {
	if v := os.Getenv("NOTIFYD_DATABASE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("NOTIFYD_HTTP_TOKEN"); v != "" {
		cfg.HTTP.Token = v
	}
	if v := os.Getenv("NOTIFYD_REDIS_PASSWORD"); v != "" && cfg.Realtime != nil {
		cfg.Realtime.Password = v
	}
	if v := os.Getenv("NOTIFYD_AMQP_URL"); v != "" && cfg.MailQ != nil {
		cfg.MailQ.URL = v
	}
	if v := os.Getenv("NOTIFYD_BASE_URL"); v != "" {
		cfg.Dispatch.BaseURL = v
	}
}
