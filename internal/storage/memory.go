package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"
)

type prefKey struct {
	userID string
	cat    domain.Category
}

// memoryStore keeps every table in maps guarded by one mutex.
type memoryStore struct {
	mu sync.RWMutex

	users        map[string]domain.User
	institutions map[string]domain.Institution
	compliance   map[string]domain.ComplianceRecord

	notifications []domain.Notification
	emails        []domain.EmailQueueEntry
	prefs         map[prefKey]domain.Preference
}

// NewMemory returns an empty process-local store.
func NewMemory() Store {
	return &memoryStore{
		users:        map[string]domain.User{},
		institutions: map[string]domain.Institution{},
		compliance:   map[string]domain.ComplianceRecord{},
		prefs:        map[prefKey]domain.Preference{},
	}
}

func (s *memoryStore) Close() error { return nil }

// ---- fixtures ----

func (s *memoryStore) SaveUser(ctx context.Context, u domain.User) error {
	_ = ctx
	if strings.TrimSpace(u.ID) == "" {
		u.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) SaveInstitution(ctx context.Context, i domain.Institution) error {
	_ = ctx
	if strings.TrimSpace(i.ID) == "" {
		i.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.institutions[i.ID] = i
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) SaveComplianceRecord(ctx context.Context, r domain.ComplianceRecord) error {
	_ = ctx
	if strings.TrimSpace(r.ID) == "" {
		r.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.compliance[r.ID] = r
	s.mu.Unlock()
	return nil
}

// ---- users ----

func (s *memoryStore) GetUser(ctx context.Context, id string) (domain.User, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return u, nil
}

func (s *memoryStore) ListUsersByRole(ctx context.Context, institutionID string, roles []domain.Role) ([]domain.User, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.User
	for _, u := range s.users {
		if !u.Deliverable() || !hasRole(roles, u.Role) {
			continue
		}
		if institutionID != "" && u.InstitutionID != institutionID {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) ListInactiveUsers(ctx context.Context, before time.Time, limit int) ([]domain.User, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.User
	for _, u := range s.users {
		if !u.Deliverable() || u.LastActiveAt == nil || !u.LastActiveAt.Before(before) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActiveAt.Equal(*out[j].LastActiveAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastActiveAt.Before(*out[j].LastActiveAt)
	})
	return capUsers(out, limit), nil
}

func (s *memoryStore) ListIncompleteProfiles(ctx context.Context, below int, limit int) ([]domain.User, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.User
	for _, u := range s.users {
		if !u.Deliverable() || !u.OnboardingCompleted || u.ProfileCompleteness >= below {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProfileCompleteness == out[j].ProfileCompleteness {
			return out[i].ID < out[j].ID
		}
		return out[i].ProfileCompleteness < out[j].ProfileCompleteness
	})
	return capUsers(out, limit), nil
}

func hasRole(roles []domain.Role, r domain.Role) bool {
	for _, v := range roles {
		if v == r {
			return true
		}
	}
	return false
}

func capUsers(in []domain.User, limit int) []domain.User {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}

// ---- notifications ----

func (s *memoryStore) CreateNotification(ctx context.Context, n *domain.Notification) error {
	_ = ctx
	if n == nil {
		return nil
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	cp := *n
	cp.Channels = append([]domain.Channel(nil), n.Channels...)
	s.mu.Lock()
	s.notifications = append(s.notifications, cp)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) FindNotification(ctx context.Context, q domain.HistoryQuery) (*domain.Notification, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *domain.Notification
	for i := range s.notifications {
		n := s.notifications[i]
		if n.UserID != q.UserID || n.Type != q.Type || !n.CreatedAt.After(q.CreatedAfter) {
			continue
		}
		if q.ResourceID != "" && n.ResourceID != q.ResourceID {
			continue
		}
		if best == nil || n.CreatedAt.After(best.CreatedAt) {
			cp := n
			best = &cp
		}
	}
	return best, nil
}

func (s *memoryStore) ListNotifications(ctx context.Context, userID string, opt domain.ListOptions) ([]domain.Notification, error) {
	_ = ctx
	s.mu.RLock()
	var out []domain.Notification
	for _, n := range s.notifications {
		if n.UserID != userID {
			continue
		}
		if opt.UnreadOnly && n.IsRead() {
			continue
		}
		out = append(out, n)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if opt.Offset > 0 {
		if opt.Offset >= len(out) {
			return nil, nil
		}
		out = out[opt.Offset:]
	}
	if opt.Limit > 0 && len(out) > opt.Limit {
		out = out[:opt.Limit]
	}
	return out, nil
}

func (s *memoryStore) CountUnread(ctx context.Context, userID string) (int, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, row := range s.notifications {
		if row.UserID == userID && !row.IsRead() {
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) MarkRead(ctx context.Context, userID string, ids []string, at time.Time) (int, error) {
	_ = ctx
	if len(ids) == 0 {
		return 0, nil
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for i := range s.notifications {
		n := &s.notifications[i]
		if n.UserID != userID || n.IsRead() {
			continue
		}
		if _, ok := want[n.ID]; !ok {
			continue
		}
		t := at
		n.ReadAt = &t
		changed++
	}
	return changed, nil
}

// ---- preferences ----

func (s *memoryStore) GetPreference(ctx context.Context, userID string, cat domain.Category) (domain.Preference, bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[prefKey{userID: userID, cat: cat}]
	return p, ok, nil
}

func (s *memoryStore) ListPreferences(ctx context.Context, userID string) ([]domain.Preference, error) {
	_ = ctx
	s.mu.RLock()
	var out []domain.Preference
	for k, p := range s.prefs {
		if k.userID == userID {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (s *memoryStore) UpsertPreference(ctx context.Context, userID string, cat domain.Category, changes domain.PreferenceChanges, at time.Time) (domain.Preference, error) {
	_ = ctx
	k := prefKey{userID: userID, cat: cat}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prefs[k]
	if !ok {
		p = domain.DefaultPreference(userID, cat)
	}
	changes.Apply(&p)
	p.UpdatedAt = at
	s.prefs[k] = p
	return p, nil
}

// ---- email queue ----

func (s *memoryStore) EnqueueEmail(ctx context.Context, e *domain.EmailQueueEntry) error {
	_ = ctx
	if e == nil {
		return nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Status == "" {
		e.Status = domain.EmailStatusPending
	}
	s.mu.Lock()
	s.emails = append(s.emails, *e)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) FindQueuedEmail(ctx context.Context, q domain.HistoryQuery) (*domain.EmailQueueEntry, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *domain.EmailQueueEntry
	for i := range s.emails {
		e := s.emails[i]
		if e.UserID != q.UserID || e.EventType != q.Type || !e.CreatedAt.After(q.CreatedAfter) {
			continue
		}
		if q.ResourceID != "" && e.ResourceID != q.ResourceID {
			continue
		}
		if best == nil || e.CreatedAt.After(best.CreatedAt) {
			cp := e
			best = &cp
		}
	}
	return best, nil
}

// ---- compliance ----

func (s *memoryStore) ListExpiringCompliance(ctx context.Context, from, to time.Time) ([]domain.ComplianceRecord, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ComplianceRecord
	for _, r := range s.compliance {
		if !r.Active || r.ExpiresAt.Before(from) || r.ExpiresAt.After(to) {
			continue
		}
		if inst, ok := s.institutions[r.InstitutionID]; ok && inst.Name != "" {
			r.InstitutionName = inst.Name
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	return out, nil
}
