package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/storage"
	logx "github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/pkg/logx"
)

// Preferences answers channel opt-out questions. Absent rows allow
// everything and lookup failures allow everything (logged).
type Preferences struct {
	store storage.Preferences
	log   logx.Logger
	now   func() time.Time
}

func NewPreferences(store storage.Preferences, log logx.Logger) *Preferences {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Preferences{store: store, log: log, now: time.Now}
}

// lookup returns the stored row, or ok=false when absent or unreadable.
func (p *Preferences) lookup(ctx context.Context, userID string, cat domain.Category) (domain.Preference, bool) {
	pref, ok, err := p.store.GetPreference(ctx, userID, cat)
	if err != nil {
		p.log.Warn("preference lookup failed; allowing all channels",
			logx.String("user_id", userID),
			logx.String("category", string(cat)),
			logx.Err(err),
		)
		return domain.Preference{}, false
	}
	return pref, ok
}

// IsChannelAllowed reports whether userID accepts ch for cat.
func (p *Preferences) IsChannelAllowed(ctx context.Context, userID string, cat domain.Category, ch domain.Channel) bool {
	pref, ok := p.lookup(ctx, userID, cat)
	if !ok {
		return true
	}
	return pref.Allows(ch)
}

// ListPreferences returns the explicit rows for userID. Categories without a
// row are implicitly fully enabled.
func (p *Preferences) ListPreferences(ctx context.Context, userID string) ([]domain.Preference, error) {
	return p.store.ListPreferences(ctx, userID)
}

// UpsertPreference creates the row with defaults (email and in-app on, SMS
// off) when absent, then applies the supplied fields only.
func (p *Preferences) UpsertPreference(ctx context.Context, userID string, cat domain.Category, changes domain.PreferenceChanges) (domain.Preference, error) {
	if userID == "" {
		return domain.Preference{}, ErrMissingUser
	}
	if !cat.Valid() {
		return domain.Preference{}, fmt.Errorf("category %q: %w", cat, ErrInvalidCategory)
	}
	pref, err := p.store.UpsertPreference(ctx, userID, cat, changes, p.now())
	if err != nil {
		return domain.Preference{}, fmt.Errorf("upsert preference: %w", err)
	}
	p.log.Debug("preference updated",
		logx.String("user_id", userID),
		logx.String("category", string(cat)),
		logx.Bool("email", pref.EmailEnabled),
		logx.Bool("in_app", pref.InAppEnabled),
		logx.Bool("sms", pref.SMSEnabled),
	)
	return pref, nil
}
