package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/notify"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/storage"
	logx "github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/pkg/logx"
)

var ErrUnknownTrigger = errors.New("unknown trigger")

// Trigger names accepted by RunByName.
const (
	NameCompliance = "compliance"
	NameInactivity = "inactivity"
	NameProfile    = "profile"
)

// Event types written by the scanners.
const (
	TypeComplianceExpiry  = "COMPLIANCE_EXPIRY"
	TypeInactivityWarning = "INACTIVITY_WARNING"
	TypeProfileIncomplete = "PROFILE_INCOMPLETE"
)

// Names lists the scanners in run order.
func Names() []string { return []string{NameCompliance, NameInactivity, NameProfile} }

// Store is the read surface the scanners need.
type Store interface {
	storage.Users
	storage.Compliance
	// History for cooldown checks.
	FindNotification(ctx context.Context, q domain.HistoryQuery) (*domain.Notification, error)
	FindQueuedEmail(ctx context.Context, q domain.HistoryQuery) (*domain.EmailQueueEntry, error)
}

// Dispatcher is satisfied by *notify.Service.
type Dispatcher interface {
	Send(ctx context.Context, p notify.Params) notify.Result
}

// Stats summarizes one run. Processed counts candidates selected; Sent counts
// dispatches that wrote an in-app row or queued an email.
type Stats struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func (s *Stats) add(o Stats) {
	s.Processed += o.Processed
	s.Sent += o.Sent
	s.Skipped += o.Skipped
	s.Failed += o.Failed
}

type Engine struct {
	store Store
	disp  Dispatcher
	log   logx.Logger
	now   func() time.Time

	mu      sync.RWMutex
	rules   Rules
	limiter *rate.Limiter
}

func New(store Store, disp Dispatcher, rules Rules, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{store: store, disp: disp, log: log, now: time.Now, rules: rules}
}

// SetRules swaps the rules used by subsequent runs.
func (e *Engine) SetRules(r Rules) {
	e.mu.Lock()
	e.rules = r
	e.mu.Unlock()
}

func (e *Engine) Rules() Rules {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rules
}

// SetRate paces dispatches to perSec; 0 disables pacing.
func (e *Engine) SetRate(perSec float64) {
	var lim *rate.Limiter
	if perSec > 0 {
		lim = rate.NewLimiter(rate.Limit(perSec), 1)
	}
	e.mu.Lock()
	e.limiter = lim
	e.mu.Unlock()
}

func (e *Engine) snapshot() (Rules, *rate.Limiter) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rules, e.limiter
}

// RunByName runs one scanner, or all of them for "all".
func (e *Engine) RunByName(ctx context.Context, name string) (Stats, error) {
	switch name {
	case NameCompliance:
		return e.ProcessComplianceTriggers(ctx)
	case NameInactivity:
		return e.ProcessInactivityTriggers(ctx)
	case NameProfile:
		return e.ProcessProfileTriggers(ctx)
	case "all":
		var total Stats
		for _, n := range Names() {
			st, err := e.RunByName(ctx, n)
			total.add(st)
			if err != nil {
				return total, err
			}
		}
		return total, nil
	default:
		return Stats{}, fmt.Errorf("%w: %s", ErrUnknownTrigger, name)
	}
}

// ProcessComplianceTriggers warns institution admins about active compliance
// records expiring within the lookahead window.
func (e *Engine) ProcessComplianceTriggers(ctx context.Context) (Stats, error) {
	rules, lim := e.snapshot()
	rule := rules.Compliance
	now := e.now()
	r := e.newRun(NameCompliance, rule, lim, now)

	records, err := e.store.ListExpiringCompliance(ctx, now, now.Add(rule.Window))
	if err != nil {
		return r.stats, fmt.Errorf("select expiring compliance: %w", err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return r.finish(err)
		}
		r.stats.Processed++

		admins, err := e.store.ListUsersByRole(ctx, rec.InstitutionID, []domain.Role{domain.RoleInstitutionAdmin})
		if err != nil {
			r.stats.Failed++
			r.log.Warn("list institution admins failed", logx.String("record_id", rec.ID), logx.Err(err))
			continue
		}
		for _, admin := range admins {
			p := complianceParams(rec, admin, now)
			if err := r.dispatch(ctx, p); err != nil {
				return r.finish(err)
			}
		}
	}
	return r.finish(nil)
}

// ProcessInactivityTriggers nudges users who have not been active within the
// threshold.
func (e *Engine) ProcessInactivityTriggers(ctx context.Context) (Stats, error) {
	rules, lim := e.snapshot()
	rule := rules.Inactivity
	now := e.now()
	r := e.newRun(NameInactivity, rule, lim, now)

	users, err := e.store.ListInactiveUsers(ctx, now.Add(-rule.Window), rule.Batch)
	if err != nil {
		return r.stats, fmt.Errorf("select inactive users: %w", err)
	}
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return r.finish(err)
		}
		r.stats.Processed++
		if err := r.dispatch(ctx, inactivityParams(u, now)); err != nil {
			return r.finish(err)
		}
	}
	return r.finish(nil)
}

// ProcessProfileTriggers reminds onboarded users whose profile completeness
// is below the threshold.
func (e *Engine) ProcessProfileTriggers(ctx context.Context) (Stats, error) {
	rules, lim := e.snapshot()
	rule := rules.Profile
	now := e.now()
	r := e.newRun(NameProfile, rule, lim, now)

	users, err := e.store.ListIncompleteProfiles(ctx, rule.Threshold, rule.Batch)
	if err != nil {
		return r.stats, fmt.Errorf("select incomplete profiles: %w", err)
	}
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return r.finish(err)
		}
		r.stats.Processed++
		if err := r.dispatch(ctx, profileParams(u)); err != nil {
			return r.finish(err)
		}
	}
	return r.finish(nil)
}

// run carries the state of one scanner invocation.
type run struct {
	e       *Engine
	name    string
	rule    Rule
	limiter *rate.Limiter
	now     time.Time
	started time.Time
	log     logx.Logger
	stats   Stats
}

func (e *Engine) newRun(name string, rule Rule, lim *rate.Limiter, now time.Time) *run {
	return &run{
		e:       e,
		name:    name,
		rule:    rule,
		limiter: lim,
		now:     now,
		started: time.Now(),
		log:     e.log.With(logx.String("trigger", name)),
	}
}

// dispatch applies the cooldown check and sends p. Only context errors are
// returned; everything else is counted.
func (r *run) dispatch(ctx context.Context, p notify.Params) error {
	hit, err := r.inCooldown(ctx, p)
	if err != nil {
		r.stats.Failed++
		r.log.Warn("cooldown lookup failed", logx.String("user_id", p.UserID), logx.String("resource_id", p.ResourceID), logx.Err(err))
		return nil
	}
	if hit {
		r.stats.Skipped++
		return nil
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	res := r.e.disp.Send(ctx, p)
	if res.Delivered() {
		r.stats.Sent++
	}
	switch {
	case res.Err != nil:
		r.stats.Failed++
	case !res.Delivered():
		r.stats.Skipped++
	}
	return nil
}

// inCooldown looks for a delivery of the same kind created after
// now - cooldown, in-app rows first, then queued emails.
func (r *run) inCooldown(ctx context.Context, p notify.Params) (bool, error) {
	if r.rule.Cooldown <= 0 {
		return false, nil
	}
	q := domain.HistoryQuery{
		UserID:       p.UserID,
		Type:         p.Type,
		CreatedAfter: r.now.Add(-r.rule.Cooldown),
	}
	if r.rule.Match == MatchTypeResource {
		q.ResourceID = p.ResourceID
	}
	n, err := r.e.store.FindNotification(ctx, q)
	if err != nil {
		return false, err
	}
	if n != nil {
		return true, nil
	}
	em, err := r.e.store.FindQueuedEmail(ctx, q)
	if err != nil {
		return false, err
	}
	return em != nil, nil
}

func (r *run) finish(err error) (Stats, error) {
	fields := []logx.Field{
		logx.Int("processed", r.stats.Processed),
		logx.Int("sent", r.stats.Sent),
		logx.Int("skipped", r.stats.Skipped),
		logx.Int("failed", r.stats.Failed),
		logx.Duration("took", time.Since(r.started)),
	}
	if err != nil {
		r.log.Warn("trigger run interrupted", append(fields, logx.Err(err))...)
		return r.stats, err
	}
	r.log.Info("trigger run complete", fields...)
	return r.stats, nil
}
