package trigger

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/notify"
)

const complianceResourceType = "ComplianceRecord"

func complianceParams(rec domain.ComplianceRecord, admin domain.User, now time.Time) notify.Params {
	name := rec.InstitutionName
	if name == "" {
		name = "your institution"
	}
	kind := strings.ToLower(strings.ReplaceAll(rec.Kind, "_", " "))
	if kind == "" {
		kind = "compliance record"
	}
	days := int(math.Ceil(rec.ExpiresAt.Sub(now).Hours() / 24))
	return notify.Params{
		UserID:   admin.ID,
		Type:     TypeComplianceExpiry,
		Title:    "Compliance record expiring soon",
		Message:  fmt.Sprintf("The %s for %s expires on %s (%s).", kind, name, rec.ExpiresAt.Format("2 January 2006"), daysLabel(days)),
		Category: domain.CategoryCompliance,
		Priority: domain.PriorityHigh,
		Channels: []domain.Channel{domain.ChannelEmail, domain.ChannelInApp},

		ResourceType:  complianceResourceType,
		ResourceID:    rec.ID,
		RecipientRole: domain.RoleInstitutionAdmin,
		InstitutionID: rec.InstitutionID,
		ActionURL:     "/institution/compliance/" + rec.ID,
	}
}

func inactivityParams(u domain.User, now time.Time) notify.Params {
	msg := "We noticed you have not signed in for a while. Sign in to review updates on your account."
	if u.LastActiveAt != nil {
		days := int(now.Sub(*u.LastActiveAt).Hours() / 24)
		msg = fmt.Sprintf("You have not signed in for %d days. Sign in to review updates on your account.", days)
	}
	return notify.Params{
		UserID:   u.ID,
		Type:     TypeInactivityWarning,
		Title:    "We miss you",
		Message:  msg,
		Category: domain.CategorySystem,
		Priority: domain.PriorityNormal,
		Channels: []domain.Channel{domain.ChannelEmail, domain.ChannelInApp},

		RecipientRole: u.Role,
		InstitutionID: u.InstitutionID,
		ActionURL:     "/login",
	}
}

func profileParams(u domain.User) notify.Params {
	return notify.Params{
		UserID:   u.ID,
		Type:     TypeProfileIncomplete,
		Title:    "Complete your profile",
		Message:  fmt.Sprintf("Your profile is %d%% complete. Add the missing details so institutions and reviewers can verify you.", u.ProfileCompleteness),
		Category: domain.CategorySystem,
		Priority: domain.PriorityLow,
		Channels: []domain.Channel{domain.ChannelInApp, domain.ChannelEmail},

		InstitutionID: u.InstitutionID,
		ActionURL:     "/profile/edit",
	}
}

func daysLabel(days int) string {
	switch {
	case days <= 0:
		return "today"
	case days == 1:
		return "in 1 day"
	default:
		return fmt.Sprintf("in %d days", days)
	}
}
