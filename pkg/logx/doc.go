// Package logx is notifyd's structured logging facade over zerolog.
//
// Every component receives a Logger value rather than a global. Loggers
// derived with With keep their fixed fields and, when they come from a
// Service, follow the Service's current sinks and level, so a config reload
// that changes the level or the log file reaches loggers handed out at boot.
//
// Output:
//   - console: zerolog's human-readable writer with a short file:line caller
//   - file: JSON lines, one record per event, appended to the configured path
//
// The zero Logger discards everything, so optional loggers in constructors
// can be checked with IsZero and replaced with Nop.
package logx
