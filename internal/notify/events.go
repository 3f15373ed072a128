package notify

import "github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"

// Event types published on the bus after each dispatch.
const (
	EventNotificationCreated = "notification.created"
	EventEmailQueued         = "email.queued"
	EventDispatchSkipped     = "dispatch.skipped"
	EventDispatchFailed      = "dispatch.failed"
)

type NotificationCreated struct {
	NotificationID string          `json:"notification_id"`
	UserID         string          `json:"user_id"`
	Type           string          `json:"type"`
	Category       domain.Category `json:"category"`
	Priority       domain.Priority `json:"priority"`
}

type EmailQueued struct {
	EmailID  string               `json:"email_id"`
	UserID   string               `json:"user_id"`
	Type     string               `json:"type"`
	Priority domain.EmailPriority `json:"priority"`
}

type DispatchSkipped struct {
	UserID string     `json:"user_id"`
	Type   string     `json:"type"`
	Reason SkipReason `json:"reason"`
}

type DispatchFailed struct {
	UserID string `json:"user_id"`
	Type   string `json:"type"`
	Error  string `json:"error"`
}
