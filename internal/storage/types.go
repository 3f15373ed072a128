package storage

import (
	"context"
	"errors"
	"time"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("not found")
)

// Config configures storage.
//
// Driver values:
//   - "memory": in-process maps, nothing survives a restart
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL reached through DSN
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver       string
	Path         string
	DSN          string
	BusyTimeout  time.Duration // sqlite only; 0 means default
	MaxOpenConns int           // postgres only; 0 means default
}

// Users reads platform users.
type Users interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	// ListUsersByRole returns deliverable users holding one of roles.
	// An empty institutionID matches users of any institution.
	ListUsersByRole(ctx context.Context, institutionID string, roles []domain.Role) ([]domain.User, error)
	// ListInactiveUsers returns deliverable users last active before the cutoff,
	// oldest activity first. Users who never logged in are not candidates.
	ListInactiveUsers(ctx context.Context, before time.Time, limit int) ([]domain.User, error)
	// ListIncompleteProfiles returns deliverable, onboarded users whose
	// completeness score is below the threshold.
	ListIncompleteProfiles(ctx context.Context, below int, limit int) ([]domain.User, error)
}

// Notifications persists in-app notification rows.
type Notifications interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	// FindNotification returns the newest match, or (nil, nil).
	FindNotification(ctx context.Context, q domain.HistoryQuery) (*domain.Notification, error)
	ListNotifications(ctx context.Context, userID string, opt domain.ListOptions) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	// MarkRead sets read_at on unread rows owned by userID and returns how many changed.
	MarkRead(ctx context.Context, userID string, ids []string, at time.Time) (int, error)
}

// Preferences stores per (user, category) channel flags.
type Preferences interface {
	// GetPreference returns ok=false when no row exists.
	GetPreference(ctx context.Context, userID string, cat domain.Category) (p domain.Preference, ok bool, err error)
	ListPreferences(ctx context.Context, userID string) ([]domain.Preference, error)
	// UpsertPreference creates the row from domain.DefaultPreference when absent,
	// then applies changes.
	UpsertPreference(ctx context.Context, userID string, cat domain.Category, changes domain.PreferenceChanges, at time.Time) (domain.Preference, error)
}

// EmailQueue is the durable outbox the mail worker drains.
type EmailQueue interface {
	EnqueueEmail(ctx context.Context, e *domain.EmailQueueEntry) error
	// FindQueuedEmail returns the newest entry matching q, or (nil, nil).
	FindQueuedEmail(ctx context.Context, q domain.HistoryQuery) (*domain.EmailQueueEntry, error)
}

// Compliance reads accreditation/compliance rows.
type Compliance interface {
	// ListExpiringCompliance returns active records with from <= expires_at <= to.
	ListExpiringCompliance(ctx context.Context, from, to time.Time) ([]domain.ComplianceRecord, error)
}

// Fixtures writes the rows the platform's CRUD layer normally owns.
// Used by tests and local seeding.
type Fixtures interface {
	SaveUser(ctx context.Context, u domain.User) error
	SaveInstitution(ctx context.Context, i domain.Institution) error
	SaveComplianceRecord(ctx context.Context, r domain.ComplianceRecord) error
}

// Store is the full persistence API.
type Store interface {
	Users
	Notifications
	Preferences
	EmailQueue
	Compliance
	Fixtures
	Close() error
}
