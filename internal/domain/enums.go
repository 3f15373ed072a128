package domain

import "strings"

// Category is the coarse topic used as the key for channel preferences.
type Category string

const (
	CategoryAcademic      Category = "ACADEMIC"
	CategoryCompliance    Category = "COMPLIANCE"
	CategorySystem        Category = "SYSTEM"
	CategoryMarketing     Category = "MARKETING"
	CategorySecurity      Category = "SECURITY"
	CategoryCommunication Category = "COMMUNICATION"
)

// Categories lists every category in declaration order.
func Categories() []Category {
	return []Category{
		CategoryAcademic,
		CategoryCompliance,
		CategorySystem,
		CategoryMarketing,
		CategorySecurity,
		CategoryCommunication,
	}
}

func (c Category) Valid() bool {
	for _, v := range Categories() {
		if v == c {
			return true
		}
	}
	return false
}

// ParseCategory accepts any letter case.
func ParseCategory(raw string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(raw)))
	return c, c.Valid()
}

// Priority is a severity tag. Only PriorityCritical bypasses preferences.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityNormal   Priority = "NORMAL"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Rank orders priorities ascending; unknown values rank below LOW.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityNormal:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	default:
		return 0
	}
}

func (p Priority) Valid() bool { return p.Rank() > 0 }

func ParsePriority(raw string) (Priority, bool) {
	p := Priority(strings.ToUpper(strings.TrimSpace(raw)))
	return p, p.Valid()
}

// EmailPriority maps the notification priority onto the coarser mail queue scale.
func (p Priority) EmailPriority() EmailPriority {
	if p.Rank() >= PriorityHigh.Rank() {
		return EmailPriorityHigh
	}
	return EmailPriorityNormal
}

// Channel is a delivery medium.
type Channel string

const (
	ChannelInApp Channel = "IN_APP"
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelSMS:
		return true
	}
	return false
}

func ParseChannel(raw string) (Channel, bool) {
	c := Channel(strings.ToUpper(strings.TrimSpace(raw)))
	return c, c.Valid()
}

// DefaultChannels is used when a caller does not request any channel.
func DefaultChannels() []Channel { return []Channel{ChannelInApp, ChannelEmail} }

// HasChannel reports whether ch is present in set.
func HasChannel(set []Channel, ch Channel) bool {
	for _, c := range set {
		if c == ch {
			return true
		}
	}
	return false
}

// ChannelStrings is a convenience for logging and persistence.
func ChannelStrings(set []Channel) []string {
	out := make([]string, 0, len(set))
	for _, c := range set {
		out = append(out, string(c))
	}
	return out
}

// EmailPriority is the mail queue's priority scale.
type EmailPriority string

const (
	EmailPriorityHigh   EmailPriority = "HIGH"
	EmailPriorityNormal EmailPriority = "NORMAL"
)

// EmailStatus values past PENDING are owned by the mail transport.
type EmailStatus string

const (
	EmailStatusPending EmailStatus = "PENDING"
)

// Role is the platform role a user currently holds. Compared by exact match.
type Role string

const (
	RolePlatformAdmin    Role = "PLATFORM_ADMIN"
	RoleQCTOAdmin        Role = "QCTO_ADMIN"
	RoleQCTOUser         Role = "QCTO_USER"
	RoleInstitutionAdmin Role = "INSTITUTION_ADMIN"
	RoleInstitutionStaff Role = "INSTITUTION_STAFF"
	RoleStudent          Role = "STUDENT"
)
