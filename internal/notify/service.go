package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/eventbus"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/storage"
	logx "github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/pkg/logx"
)

// Store is the persistence surface the dispatcher needs.
type Store interface {
	storage.Users
	storage.Notifications
	storage.Preferences
	storage.EmailQueue
}

// Params describes one dispatch. Zero Category, Priority and Channels are
// filled from Defaults.
type Params struct {
	UserID   string
	Type     string
	Title    string
	Message  string
	Category domain.Category
	Priority domain.Priority
	Channels []domain.Channel

	ResourceType string
	ResourceID   string

	// RecipientRole, when set, must equal the user's current role.
	RecipientRole domain.Role
	InstitutionID string
	ActionURL     string
}

// Service is the dispatcher. It is safe for concurrent use; the only shared
// mutable state is the store.
type Service struct {
	store    Store
	bus      eventbus.Bus
	log      logx.Logger
	defaults Defaults
	now      func() time.Time

	prefs    *Preferences
	gate     *Gate
	resolver *Resolver
}

// New builds the dispatcher. bus may be nil.
func New(store Store, defaults Defaults, log logx.Logger, bus eventbus.Bus) (*Service, error) {
	if store == nil {
		return nil, storage.ErrDisabled
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	d, err := defaults.normalize()
	if err != nil {
		return nil, err
	}
	prefs := NewPreferences(store, log.With(logx.Component("notify.prefs")))
	return &Service{
		store:    store,
		bus:      bus,
		log:      log,
		defaults: d,
		now:      time.Now,
		prefs:    prefs,
		gate:     NewGate(store),
		resolver: NewResolver(prefs, d.Channels),
	}, nil
}

func (s *Service) Preferences() *Preferences { return s.prefs }

func (s *Service) Defaults() Defaults { return s.defaults }

// Send dispatches one notification: gate, then channel resolution, then the
// in-app row, then the email enqueue. The two writes are independent; a
// failure in one does not undo the other.
func (s *Service) Send(ctx context.Context, p Params) Result {
	res := s.send(ctx, p)
	s.report(p, res)
	return res
}

func (s *Service) send(ctx context.Context, in Params) Result {
	p, err := s.defaults.apply(in)
	if err != nil {
		return Result{Err: &DispatchError{Op: "validate", UserID: in.UserID, Err: err}}
	}

	ok, reason, err := s.gate.CanDeliver(ctx, p.UserID, p.RecipientRole)
	if err != nil {
		return Result{Err: &DispatchError{Op: "gate", UserID: p.UserID, Err: err}}
	}
	if !ok {
		return Result{Skipped: true, SkipReason: reason}
	}

	channels := s.resolver.ResolveChannels(ctx, p.UserID, p.Category, p.Priority, p.Channels)
	res := Result{Channels: channels}
	if len(channels) == 0 {
		res.SkipReason = SkipNoChannels
		return res
	}

	var errs []error
	if domain.HasChannel(channels, domain.ChannelInApp) {
		id, err := s.createInApp(ctx, p, channels)
		if err != nil {
			errs = append(errs, fmt.Errorf("in-app: %w", err))
		} else {
			res.NotificationID = id
		}
	}
	if domain.HasChannel(channels, domain.ChannelEmail) {
		id, skip, err := s.enqueueEmail(ctx, p)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("email: %w", err))
		case skip != "":
			res.EmailSkipReason = skip
		default:
			res.EmailQueued = true
			res.EmailID = id
		}
	}
	// SMS has no transport; a resolved SMS channel has no side effect.

	if len(errs) > 0 {
		res.Err = &DispatchError{Op: "send", UserID: p.UserID, Err: errors.Join(errs...)}
	}
	return res
}

func (s *Service) createInApp(ctx context.Context, p Params, channels []domain.Channel) (string, error) {
	n := &domain.Notification{
		UserID:       p.UserID,
		Type:         p.Type,
		Title:        p.Title,
		Message:      p.Message,
		Category:     p.Category,
		Priority:     p.Priority,
		Channels:     append([]domain.Channel(nil), channels...),
		ResourceType: p.ResourceType,
		ResourceID:   p.ResourceID,
		// Older display code reads the entity_* pair.
		EntityType:    p.ResourceType,
		EntityID:      p.ResourceID,
		RecipientRole: p.RecipientRole,
		InstitutionID: p.InstitutionID,
		ActionURL:     p.ActionURL,
		CreatedAt:     s.now(),
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return "", err
	}
	s.publish(EventNotificationCreated, NotificationCreated{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           n.Type,
		Category:       n.Category,
		Priority:       n.Priority,
	})
	return n.ID, nil
}

func (s *Service) enqueueEmail(ctx context.Context, p Params) (string, SkipReason, error) {
	u, err := s.store.GetUser(ctx, p.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", SkipNoEmailAddress, nil
	}
	if err != nil {
		return "", "", fmt.Errorf("load user: %w", err)
	}
	if u.Email == "" {
		return "", SkipNoEmailAddress, nil
	}

	html, err := renderEmailHTML(p.Title, p.Message, s.defaults.absoluteURL(p.ActionURL))
	if err != nil {
		return "", "", fmt.Errorf("render: %w", err)
	}
	e := &domain.EmailQueueEntry{
		UserID:     u.ID,
		To:         u.Email,
		Subject:    p.Title,
		TextBody:   p.Message,
		HTMLBody:   html,
		Status:     domain.EmailStatusPending,
		Priority:   p.Priority.EmailPriority(),
		EventType:  p.Type,
		ResourceID: p.ResourceID,
		CreatedAt:  s.now(),
	}
	if err := s.store.EnqueueEmail(ctx, e); err != nil {
		return "", "", err
	}
	s.publish(EventEmailQueued, EmailQueued{EmailID: e.ID, UserID: e.UserID, Type: p.Type, Priority: e.Priority})
	return e.ID, "", nil
}

// report is the single place dispatch outcomes are logged.
func (s *Service) report(p Params, res Result) {
	switch {
	case res.Err != nil:
		s.log.Error("dispatch failed",
			logx.String("user_id", p.UserID),
			logx.String("type", p.Type),
			logx.String("notification_id", res.NotificationID),
			logx.Bool("email_queued", res.EmailQueued),
			logx.Err(res.Err),
		)
		s.publish(EventDispatchFailed, DispatchFailed{UserID: p.UserID, Type: p.Type, Error: res.Err.Error()})
	case res.Skipped:
		s.log.Debug("dispatch skipped",
			logx.String("user_id", p.UserID),
			logx.String("type", p.Type),
			logx.String("reason", string(res.SkipReason)),
		)
		s.publish(EventDispatchSkipped, DispatchSkipped{UserID: p.UserID, Type: p.Type, Reason: res.SkipReason})
	case res.SkipReason == SkipNoChannels:
		s.log.Debug("no channel left after preferences",
			logx.String("user_id", p.UserID),
			logx.String("type", p.Type),
			logx.String("category", string(p.Category)),
		)
	default:
		s.log.Debug("dispatched",
			logx.String("user_id", p.UserID),
			logx.String("type", p.Type),
			logx.Strs("channels", domain.ChannelStrings(res.Channels)),
			logx.String("notification_id", res.NotificationID),
			logx.Bool("email_queued", res.EmailQueued),
		)
	}
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: data})
}

// SendToInstitution fans p out to the institution's active admins and staff,
// falling back to platform admins when the institution has none. Each
// recipient is pinned to their current role.
func (s *Service) SendToInstitution(ctx context.Context, institutionID string, p Params) ([]Result, error) {
	users, err := s.store.ListUsersByRole(ctx, institutionID, []domain.Role{domain.RoleInstitutionAdmin, domain.RoleInstitutionStaff})
	if err != nil {
		return nil, fmt.Errorf("list institution users: %w", err)
	}
	if len(users) == 0 {
		users, err = s.store.ListUsersByRole(ctx, "", []domain.Role{domain.RolePlatformAdmin})
		if err != nil {
			return nil, fmt.Errorf("list platform admins: %w", err)
		}
		if len(users) > 0 {
			s.log.Info("no institution recipients; falling back to platform admins",
				logx.String("institution_id", institutionID),
				logx.Int("recipients", len(users)),
			)
		}
	}

	out := make([]Result, 0, len(users))
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		up := p
		up.UserID = u.ID
		up.RecipientRole = u.Role
		if up.InstitutionID == "" {
			up.InstitutionID = institutionID
		}
		out = append(out, s.Send(ctx, up))
	}
	return out, nil
}

// ListForUser pages userID's notifications, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string, opt domain.ListOptions) ([]domain.Notification, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	return s.store.ListNotifications(ctx, userID, opt)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrMissingUser
	}
	return s.store.CountUnread(ctx, userID)
}

// MarkRead sets read_at on the given unread notifications owned by userID.
func (s *Service) MarkRead(ctx context.Context, userID string, ids []string) (int, error) {
	if userID == "" {
		return 0, ErrMissingUser
	}
	return s.store.MarkRead(ctx, userID, ids, s.now())
}
