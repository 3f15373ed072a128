// Package notify decides who is told about an event and through which
// channels, then persists the in-app row and enqueues the email.
//
// Send is the single dispatch entry point. It runs the recipient gate, then
// resolves channels against stored preferences, then writes. Nothing is
// written when the gate refuses a recipient. Send never panics and never
// returns a bare error: every outcome is a Result, and failed results are
// logged here whether or not the caller looks at them.
//
// The package owns no goroutines; callers (HTTP handlers, trigger runs) drive it.
package notify
