// Package domain holds the notification subsystem's data model: the closed
// enums (Category, Priority, Channel), the persisted rows (Notification,
// Preference, EmailQueueEntry) and the read-only views of platform entities
// (User, Institution, ComplianceRecord) that dispatch and triggers consume.
package domain
