package notify

import (
	"context"
	"strings"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"
	logx "github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/pkg/logx"
)

// LegacyType is an event tag used by older call sites.
type LegacyType string

const (
	LegacySubmissionCreated   LegacyType = "SUBMISSION_CREATED"
	LegacySubmissionSubmitted LegacyType = "SUBMISSION_SUBMITTED"
	LegacySubmissionReviewed  LegacyType = "SUBMISSION_REVIEWED"
	LegacySubmissionApproved  LegacyType = "SUBMISSION_APPROVED"
	LegacySubmissionRejected  LegacyType = "SUBMISSION_REJECTED"
	LegacySubmissionReturned  LegacyType = "SUBMISSION_RETURNED"

	LegacyReadinessSubmitted   LegacyType = "READINESS_SUBMITTED"
	LegacyReadinessReviewed    LegacyType = "READINESS_REVIEWED"
	LegacyReadinessRecommended LegacyType = "READINESS_RECOMMENDED"
	LegacyReadinessRejected    LegacyType = "READINESS_REJECTED"

	// Carries both SUBMISSION and INSTITUTION; it is a compliance event.
	LegacyInstitutionSubmissionReceived LegacyType = "INSTITUTION_SUBMISSION_RECEIVED"

	LegacyInstitutionInvite   LegacyType = "INSTITUTION_INVITE"
	LegacyInstitutionApproved LegacyType = "INSTITUTION_APPROVED"
	LegacyInstitutionUpdated  LegacyType = "INSTITUTION_UPDATED"
	LegacyInviteSent          LegacyType = "INVITE_SENT"
	LegacyInviteAccepted      LegacyType = "INVITE_ACCEPTED"
	LegacyInviteExpired       LegacyType = "INVITE_EXPIRED"

	LegacyDocumentUploaded   LegacyType = "DOCUMENT_UPLOADED"
	LegacyAccountUpdated     LegacyType = "ACCOUNT_UPDATED"
	LegacyPasswordChanged    LegacyType = "PASSWORD_CHANGED"
	LegacySystemAnnouncement LegacyType = "SYSTEM_ANNOUNCEMENT"
	LegacyServiceRequest     LegacyType = "SERVICE_REQUEST"
	LegacyLeadReceived       LegacyType = "LEAD_RECEIVED"
)

// AllLegacyTypes lists every tag legacyCategories must cover.
func AllLegacyTypes() []LegacyType {
	return []LegacyType{
		LegacySubmissionCreated, LegacySubmissionSubmitted, LegacySubmissionReviewed,
		LegacySubmissionApproved, LegacySubmissionRejected, LegacySubmissionReturned,
		LegacyReadinessSubmitted, LegacyReadinessReviewed, LegacyReadinessRecommended, LegacyReadinessRejected,
		LegacyInstitutionSubmissionReceived,
		LegacyInstitutionInvite, LegacyInstitutionApproved, LegacyInstitutionUpdated,
		LegacyInviteSent, LegacyInviteAccepted, LegacyInviteExpired,
		LegacyDocumentUploaded, LegacyAccountUpdated, LegacyPasswordChanged,
		LegacySystemAnnouncement, LegacyServiceRequest, LegacyLeadReceived,
	}
}

var legacyCategories = map[LegacyType]domain.Category{
	LegacySubmissionCreated:   domain.CategoryCompliance,
	LegacySubmissionSubmitted: domain.CategoryCompliance,
	LegacySubmissionReviewed:  domain.CategoryCompliance,
	LegacySubmissionApproved:  domain.CategoryCompliance,
	LegacySubmissionRejected:  domain.CategoryCompliance,
	LegacySubmissionReturned:  domain.CategoryCompliance,

	LegacyReadinessSubmitted:   domain.CategoryCompliance,
	LegacyReadinessReviewed:    domain.CategoryCompliance,
	LegacyReadinessRecommended: domain.CategoryCompliance,
	LegacyReadinessRejected:    domain.CategoryCompliance,

	LegacyInstitutionSubmissionReceived: domain.CategoryCompliance,

	LegacyInstitutionInvite:   domain.CategoryCommunication,
	LegacyInstitutionApproved: domain.CategoryCommunication,
	LegacyInstitutionUpdated:  domain.CategoryCommunication,
	LegacyInviteSent:          domain.CategoryCommunication,
	LegacyInviteAccepted:      domain.CategoryCommunication,
	LegacyInviteExpired:       domain.CategoryCommunication,

	LegacyDocumentUploaded:   domain.CategorySystem,
	LegacyAccountUpdated:     domain.CategorySystem,
	LegacyPasswordChanged:    domain.CategorySystem,
	LegacySystemAnnouncement: domain.CategorySystem,
	LegacyServiceRequest:     domain.CategorySystem,
	LegacyLeadReceived:       domain.CategorySystem,
}

// LegacyCategory returns the category for tag; ok is false for unknown tags.
func LegacyCategory(tag string) (domain.Category, bool) {
	c, ok := legacyCategories[LegacyType(tag)]
	return c, ok
}

// inferLegacyCategory classifies a tag missing from legacyCategories by its
// name. First match wins: SUBMISSION/READINESS, then INVITE/INSTITUTION.
func inferLegacyCategory(tag string) domain.Category {
	t := strings.ToUpper(tag)
	switch {
	case strings.Contains(t, "SUBMISSION"), strings.Contains(t, "READINESS"):
		return domain.CategoryCompliance
	case strings.Contains(t, "INVITE"), strings.Contains(t, "INSTITUTION"):
		return domain.CategoryCommunication
	default:
		return domain.CategorySystem
	}
}

// Sender is what Legacy forwards to.
type Sender interface {
	Send(ctx context.Context, p Params) Result
}

// Legacy maps the old (user, type, title, message, entity) call shape onto Send.
// New call sites should call Send directly.
type Legacy struct {
	sender Sender
	log    logx.Logger
}

func NewLegacy(sender Sender, log logx.Logger) *Legacy {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Legacy{sender: sender, log: log}
}

// CreateNotification dispatches with the mapped category and default
// priority and channels. Tags missing from the table are classified by name.
func (l *Legacy) CreateNotification(ctx context.Context, userID, legacyType, title, message, entityType, entityID string) Result {
	cat, ok := LegacyCategory(legacyType)
	if !ok {
		cat = inferLegacyCategory(legacyType)
		l.log.Warn("unmapped legacy notification type",
			logx.String("type", legacyType),
			logx.String("category", string(cat)),
		)
	}
	return l.sender.Send(ctx, Params{
		UserID:       userID,
		Type:         legacyType,
		Title:        title,
		Message:      message,
		Category:     cat,
		ResourceType: entityType,
		ResourceID:   entityID,
	})
}
