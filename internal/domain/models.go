package domain

import "time"

// Notification is one in-app alert row.
//
// Category, Priority and Channels are fixed at creation; only ReadAt changes.
// EntityType/EntityID mirror ResourceType/ResourceID for older display code
// that still reads the legacy column pair.
type Notification struct {
	ID            string
	UserID        string
	Type          string
	Title         string
	Message       string
	Category      Category
	Priority      Priority
	Channels      []Channel
	ResourceType  string
	ResourceID    string
	EntityType    string
	EntityID      string
	RecipientRole Role
	InstitutionID string
	ActionURL     string
	CreatedAt     time.Time
	ReadAt        *time.Time
}

func (n Notification) IsRead() bool { return n.ReadAt != nil }

// Preference is a per (user, category) channel switch.
type Preference struct {
	UserID       string
	Category     Category
	EmailEnabled bool
	InAppEnabled bool
	SMSEnabled   bool
	UpdatedAt    time.Time
}

// DefaultPreference is the row created on the first explicit change.
func DefaultPreference(userID string, cat Category) Preference {
	return Preference{
		UserID:       userID,
		Category:     cat,
		EmailEnabled: true,
		InAppEnabled: true,
		SMSEnabled:   false,
	}
}

// Allows reports the flag for ch. Unknown channels are allowed.
func (p Preference) Allows(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelInApp:
		return p.InAppEnabled
	case ChannelSMS:
		return p.SMSEnabled
	default:
		return true
	}
}

// PreferenceChanges is a partial update; nil fields are left untouched.
type PreferenceChanges struct {
	Email *bool `json:"email,omitempty"`
	InApp *bool `json:"in_app,omitempty"`
	SMS   *bool `json:"sms,omitempty"`
}

func (c PreferenceChanges) Empty() bool { return c.Email == nil && c.InApp == nil && c.SMS == nil }

// Apply writes the supplied fields onto p.
func (c PreferenceChanges) Apply(p *Preference) {
	if c.Email != nil {
		p.EmailEnabled = *c.Email
	}
	if c.InApp != nil {
		p.InAppEnabled = *c.InApp
	}
	if c.SMS != nil {
		p.SMSEnabled = *c.SMS
	}
}

// EmailQueueEntry is one outbound email awaiting the mail transport.
//
// EventType and ResourceID are kept so trigger cooldowns also see email-only
// deliveries.
type EmailQueueEntry struct {
	ID         string
	UserID     string
	To         string
	Subject    string
	TextBody   string
	HTMLBody   string
	Status     EmailStatus
	Priority   EmailPriority
	EventType  string
	ResourceID string
	CreatedAt  time.Time
}

// User is the subset of the platform user record the subsystem reads.
type User struct {
	ID                  string
	Name                string
	Email               string
	Role                Role
	InstitutionID       string
	Active              bool
	DeletedAt           *time.Time
	LastActiveAt        *time.Time
	OnboardingCompleted bool
	ProfileCompleteness int
}

// Deliverable reports whether the user may receive notifications at all.
func (u User) Deliverable() bool { return u.Active && u.DeletedAt == nil }

type Institution struct {
	ID   string
	Name string
}

// ComplianceRecord is an accreditation or compliance row with an expiry.
type ComplianceRecord struct {
	ID              string
	InstitutionID   string
	InstitutionName string
	Kind            string
	Active          bool
	ExpiresAt       time.Time
}

// HistoryQuery selects prior deliveries for cooldown checks.
// An empty ResourceID matches any resource.
type HistoryQuery struct {
	UserID       string
	Type         string
	ResourceID   string
	CreatedAfter time.Time
}

// ListOptions pages a user's notifications, newest first.
type ListOptions struct {
	Limit      int
	Offset     int
	UnreadOnly bool
}
