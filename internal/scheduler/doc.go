// Package scheduler is the host's cron loop for trigger runs.
//
// Jobs are registered under stable names and replaced on re-registration, so
// a config reload can re-add every job without duplicates. A job that is
// still running when its next tick fires is skipped for that tick.
//
// Schedule strings accept:
//   - cron expressions with optional seconds: "0 6 * * *", "0 */5 * * * *"
//   - descriptors: "@daily", "@every 6h"
//   - Go durations as intervals: "6h", "90m"
//   - HH:MM intervals: "02:30" runs every 2h30m
//
// Prefix with "cron:" or "interval:"/"every:" to force the interpretation.
package scheduler
