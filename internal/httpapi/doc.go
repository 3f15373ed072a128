// Package httpapi is the ops and settings HTTP surface of notifyd: preference
// reads and updates, notification history and read state, direct and legacy
// dispatch, and on-demand trigger runs.
//
// Security: the server binds to loopback by default. A non-loopback address
// requires a bearer token or an explicit allow_insecure.
package httpapi
