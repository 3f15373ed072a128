package notify

import "github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"

// SkipReason explains an expected non-delivery. Skips are not errors.
type SkipReason string

const (
	SkipRoleMismatch      SkipReason = "role_mismatch"
	SkipRecipientNotFound SkipReason = "recipient_not_found"
	SkipNoEmailAddress    SkipReason = "no_email_address"
	SkipNoChannels        SkipReason = "no_channels"
)

// Result is the outcome of one dispatch.
//
// Skipped is set only when the recipient gate refused the user; in that case
// nothing was written. SkipReason is SkipNoChannels, with Skipped false, when
// preferences removed every channel. A missing email address only skips the
// email leg and is reported through EmailSkipReason. Err may be set alongside
// a NotificationID or EmailQueued when one leg succeeded and the other failed.
type Result struct {
	NotificationID  string
	EmailQueued     bool
	EmailID         string
	Skipped         bool
	SkipReason      SkipReason
	EmailSkipReason SkipReason
	Channels        []domain.Channel
	Err             error
}

// OK reports whether the dispatch finished without error. Skips are OK.
func (r Result) OK() bool { return r.Err == nil }

// Delivered reports whether anything was written for the recipient.
func (r Result) Delivered() bool { return r.NotificationID != "" || r.EmailQueued }
