// Package broker forwards dispatch events from the in-process bus to external
// systems: unread counts to Redis pub/sub for realtime badges, and queued
// email ids to an AMQP queue so the mail worker wakes without polling.
//
// Forwarders are best-effort. The database rows written by notify remain the
// source of truth; a lost broker message only delays a badge or an email.
package broker
