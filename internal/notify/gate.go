package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/storage"
)

// Gate keeps role-targeted notifications away from users who no longer hold
// that role.
type Gate struct {
	users storage.Users
}

func NewGate(users storage.Users) *Gate { return &Gate{users: users} }

// CanDeliver reports whether userID currently holds expected. An empty
// expected role needs no lookup. A missing user yields
// (false, SkipRecipientNotFound, nil); store failures are returned as errors.
func (g *Gate) CanDeliver(ctx context.Context, userID string, expected domain.Role) (bool, SkipReason, error) {
	if expected == "" {
		return true, "", nil
	}
	u, err := g.users.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, SkipRecipientNotFound, nil
	}
	if err != nil {
		return false, "", fmt.Errorf("load user: %w", err)
	}
	if u.Role != expected {
		return false, SkipRoleMismatch, nil
	}
	return true, "", nil
}
