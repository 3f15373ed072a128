package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/app"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/config"
)

func main() {
	var (
		cfgPath string
		envFile string
		once    string
	)
	flag.StringVar(&cfgPath, "config", "", "path to config json/yaml (default $NOTIFYD_CONFIG or ./config.yaml)")
	flag.StringVar(&envFile, "env", ".env", "dotenv file loaded before the config")
	flag.StringVar(&once, "once", "", "run one trigger (compliance|inactivity|profile|all) and exit")
	flag.Parse()

	if err := config.LoadEnv(envFile); err != nil {
		fmt.Fprintln(os.Stderr, "fatal env:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(config.ResolvePath(cfgPath, "./config.yaml"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if once != "" {
		os.Exit(runOnce(ctx, a, once))
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func runOnce(ctx context.Context, a *app.App, name string) int {
	stats, runErr := a.RunOnce(ctx, name)
	_ = a.Stop(context.Background(), app.StopOnceDone)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{"trigger": name, "stats": stats})
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "trigger failed:", runErr)
		return 1
	}
	return 0
}
