package notify

import (
	"context"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"
)

// Resolver computes the permitted channel set for one dispatch.
type Resolver struct {
	prefs    *Preferences
	fallback []domain.Channel
}

func NewResolver(prefs *Preferences, fallback []domain.Channel) *Resolver {
	if len(fallback) == 0 {
		fallback = domain.DefaultChannels()
	}
	return &Resolver{prefs: prefs, fallback: fallback}
}

// ResolveChannels keeps requested order and drops duplicates. CRITICAL keeps
// every channel; otherwise each channel must be allowed for (user, category).
// An empty request means the fallback set. An empty result is valid.
func (r *Resolver) ResolveChannels(ctx context.Context, userID string, cat domain.Category, prio domain.Priority, requested []domain.Channel) []domain.Channel {
	if len(requested) == 0 {
		requested = r.fallback
	}
	bypass := prio == domain.PriorityCritical

	var (
		pref   domain.Preference
		stored bool
		looked bool
	)
	out := make([]domain.Channel, 0, len(requested))
	for _, ch := range requested {
		if domain.HasChannel(out, ch) {
			continue
		}
		if !bypass {
			// One preference read per dispatch.
			if !looked {
				pref, stored = r.prefs.lookup(ctx, userID, cat)
				looked = true
			}
			if stored && !pref.Allows(ch) {
				continue
			}
		}
		out = append(out, ch)
	}
	return out
}
