package httpapi

import (
	"time"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/notify"
)

type preferenceDTO struct {
	Category     domain.Category `json:"category"`
	EmailEnabled bool            `json:"email_enabled"`
	InAppEnabled bool            `json:"in_app_enabled"`
	SMSEnabled   bool            `json:"sms_enabled"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toPreferenceDTO(p domain.Preference) preferenceDTO {
	return preferenceDTO{
		Category:     p.Category,
		EmailEnabled: p.EmailEnabled,
		InAppEnabled: p.InAppEnabled,
		SMSEnabled:   p.SMSEnabled,
		UpdatedAt:    p.UpdatedAt,
	}
}

type notificationDTO struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Title        string          `json:"title"`
	Message      string          `json:"message"`
	Category     domain.Category `json:"category"`
	Priority     domain.Priority `json:"priority"`
	Channels     []string        `json:"channels"`
	ResourceType string          `json:"resource_type,omitempty"`
	ResourceID   string          `json:"resource_id,omitempty"`
	ActionURL    string          `json:"action_url,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	ReadAt       *time.Time      `json:"read_at,omitempty"`
}

func toNotificationDTO(n domain.Notification) notificationDTO {
	return notificationDTO{
		ID:           n.ID,
		Type:         n.Type,
		Title:        n.Title,
		Message:      n.Message,
		Category:     n.Category,
		Priority:     n.Priority,
		Channels:     domain.ChannelStrings(n.Channels),
		ResourceType: n.ResourceType,
		ResourceID:   n.ResourceID,
		ActionURL:    n.ActionURL,
		CreatedAt:    n.CreatedAt,
		ReadAt:       n.ReadAt,
	}
}

// sendRequest targets one user, or every admin and staff member of an
// institution when UserID is empty and InstitutionID is set.
type sendRequest struct {
	UserID        string   `json:"user_id"`
	Type          string   `json:"type" binding:"required"`
	Title         string   `json:"title" binding:"required"`
	Message       string   `json:"message" binding:"required"`
	Category      string   `json:"category"`
	Priority      string   `json:"priority"`
	Channels      []string `json:"channels"`
	ResourceType  string   `json:"resource_type"`
	ResourceID    string   `json:"resource_id"`
	RecipientRole string   `json:"recipient_role"`
	InstitutionID string   `json:"institution_id"`
	ActionURL     string   `json:"action_url"`
}

func (r sendRequest) params() notify.Params {
	p := notify.Params{
		UserID:        r.UserID,
		Type:          r.Type,
		Title:         r.Title,
		Message:       r.Message,
		Category:      domain.Category(r.Category),
		Priority:      domain.Priority(r.Priority),
		ResourceType:  r.ResourceType,
		ResourceID:    r.ResourceID,
		RecipientRole: domain.Role(r.RecipientRole),
		InstitutionID: r.InstitutionID,
		ActionURL:     r.ActionURL,
	}
	for _, ch := range r.Channels {
		p.Channels = append(p.Channels, domain.Channel(ch))
	}
	return p
}

type legacyRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	Type       string `json:"type" binding:"required"`
	Title      string `json:"title" binding:"required"`
	Message    string `json:"message" binding:"required"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

type markReadRequest struct {
	IDs []string `json:"ids"`
}

type resultDTO struct {
	NotificationID  string            `json:"notification_id,omitempty"`
	EmailQueued     bool              `json:"email_queued"`
	EmailID         string            `json:"email_id,omitempty"`
	Skipped         bool              `json:"skipped"`
	SkipReason      notify.SkipReason `json:"skip_reason,omitempty"`
	EmailSkipReason notify.SkipReason `json:"email_skip_reason,omitempty"`
	Channels        []string          `json:"channels"`
	Error           string            `json:"error,omitempty"`
}

func toResultDTO(r notify.Result) resultDTO {
	out := resultDTO{
		NotificationID:  r.NotificationID,
		EmailQueued:     r.EmailQueued,
		EmailID:         r.EmailID,
		Skipped:         r.Skipped,
		SkipReason:      r.SkipReason,
		EmailSkipReason: r.EmailSkipReason,
		Channels:        domain.ChannelStrings(r.Channels),
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}
