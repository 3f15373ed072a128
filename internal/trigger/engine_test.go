package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/notify"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/storage"
	logx "github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/pkg/logx"
)

func discardLogger() logx.Logger { return logx.Nop() }

func ptrTime(t time.Time) *time.Time { return &t }

type fixture struct {
	store  storage.Store
	svc    *notify.Service
	engine *Engine
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storage.NewMemory()
	svc, err := notify.New(st, notify.DefaultDefaults(), discardLogger(), nil)
	if err != nil {
		t.Fatalf("notify.New: %v", err)
	}
	// Notification rows are stamped with the wall clock, so the engine clock
	// must be close to it for cooldown windows to line up.
	now := time.Now()
	eng := New(st, svc, DefaultRules(), discardLogger())
	eng.now = func() time.Time { return now }
	return &fixture{store: st, svc: svc, engine: eng, now: now}
}

func (f *fixture) save(t *testing.T, items ...any) {
	t.Helper()
	ctx := context.Background()
	for _, it := range items {
		var err error
		switch v := it.(type) {
		case domain.User:
			err = f.store.SaveUser(ctx, v)
		case domain.Institution:
			err = f.store.SaveInstitution(ctx, v)
		case domain.ComplianceRecord:
			err = f.store.SaveComplianceRecord(ctx, v)
		default:
			t.Fatalf("unsupported fixture %T", it)
		}
		if err != nil {
			t.Fatalf("save %T: %v", it, err)
		}
	}
}

func TestComplianceTriggerIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.save(t,
		domain.Institution{ID: "inst-1", Name: "Acme College"},
		domain.User{ID: "admin-1", Email: "admin@acme.example.org", Role: domain.RoleInstitutionAdmin, InstitutionID: "inst-1", Active: true},
		domain.ComplianceRecord{ID: "rec-1", InstitutionID: "inst-1", Kind: "ACCREDITATION", Active: true, ExpiresAt: f.now.Add(10 * 24 * time.Hour)},
	)
	ctx := context.Background()

	st, err := f.engine.ProcessComplianceTriggers(ctx)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if st.Processed != 1 || st.Sent != 1 {
		t.Fatalf("first run = %+v, want processed=1 sent=1", st)
	}

	rows, err := f.store.ListNotifications(ctx, "admin-1", domain.ListOptions{})
	if err != nil || len(rows) != 1 {
		t.Fatalf("notifications = %+v, %v", rows, err)
	}
	n := rows[0]
	if n.Type != TypeComplianceExpiry || n.Category != domain.CategoryCompliance || n.Priority != domain.PriorityHigh {
		t.Fatalf("notification = %+v", n)
	}
	if n.ResourceType != complianceResourceType || n.ResourceID != "rec-1" || n.RecipientRole != domain.RoleInstitutionAdmin {
		t.Fatalf("notification resource/role = %+v", n)
	}

	st, err = f.engine.ProcessComplianceTriggers(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if st.Processed != 1 || st.Sent != 0 || st.Skipped != 1 {
		t.Fatalf("second run = %+v, want processed=1 sent=0 skipped=1", st)
	}
}

func TestComplianceCooldownIsPerRecord(t *testing.T) {
	f := newFixture(t)
	f.save(t,
		domain.User{ID: "admin-1", Email: "a@example.org", Role: domain.RoleInstitutionAdmin, InstitutionID: "inst-1", Active: true},
		domain.ComplianceRecord{ID: "rec-1", InstitutionID: "inst-1", Active: true, ExpiresAt: f.now.Add(5 * 24 * time.Hour)},
	)
	ctx := context.Background()
	if st, _ := f.engine.ProcessComplianceTriggers(ctx); st.Sent != 1 {
		t.Fatalf("first run = %+v", st)
	}

	f.save(t, domain.ComplianceRecord{ID: "rec-2", InstitutionID: "inst-1", Active: true, ExpiresAt: f.now.Add(20 * 24 * time.Hour)})
	st, err := f.engine.ProcessComplianceTriggers(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if st.Processed != 2 || st.Sent != 1 {
		t.Fatalf("run = %+v, want new record sent and old one cooled down", st)
	}
}

func TestComplianceSelectsWindowOnly(t *testing.T) {
	f := newFixture(t)
	f.save(t,
		domain.User{ID: "admin-1", Email: "a@example.org", Role: domain.RoleInstitutionAdmin, InstitutionID: "inst-1", Active: true},
		domain.User{ID: "staff-1", Email: "s@example.org", Role: domain.RoleInstitutionStaff, InstitutionID: "inst-1", Active: true},
		domain.ComplianceRecord{ID: "late", InstitutionID: "inst-1", Active: true, ExpiresAt: f.now.Add(45 * 24 * time.Hour)},
		domain.ComplianceRecord{ID: "past", InstitutionID: "inst-1", Active: true, ExpiresAt: f.now.Add(-24 * time.Hour)},
		domain.ComplianceRecord{ID: "off", InstitutionID: "inst-1", Active: false, ExpiresAt: f.now.Add(24 * time.Hour)},
		domain.ComplianceRecord{ID: "soon", InstitutionID: "inst-1", Active: true, ExpiresAt: f.now.Add(24 * time.Hour)},
	)
	st, err := f.engine.ProcessComplianceTriggers(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if st.Processed != 1 || st.Sent != 1 {
		t.Fatalf("run = %+v, want only the record inside the window", st)
	}
	rows, _ := f.store.ListNotifications(context.Background(), "staff-1", domain.ListOptions{})
	if len(rows) != 0 {
		t.Fatalf("staff received %d notifications, want 0", len(rows))
	}
}

func TestInactivityTrigger(t *testing.T) {
	f := newFixture(t)
	f.save(t,
		domain.User{ID: "idle", Email: "idle@example.org", Role: domain.RoleStudent, Active: true, LastActiveAt: ptrTime(f.now.Add(-40 * 24 * time.Hour))},
		domain.User{ID: "fresh", Email: "fresh@example.org", Role: domain.RoleStudent, Active: true, LastActiveAt: ptrTime(f.now.Add(-2 * 24 * time.Hour))},
		domain.User{ID: "deleted", Email: "d@example.org", Role: domain.RoleStudent, Active: true, DeletedAt: ptrTime(f.now), LastActiveAt: ptrTime(f.now.Add(-90 * 24 * time.Hour))},
	)
	ctx := context.Background()
	st, err := f.engine.ProcessInactivityTriggers(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if st.Processed != 1 || st.Sent != 1 {
		t.Fatalf("run = %+v, want processed=1 sent=1", st)
	}
	rows, _ := f.store.ListNotifications(ctx, "idle", domain.ListOptions{})
	if len(rows) != 1 || rows[0].ActionURL != "/login" || rows[0].RecipientRole != domain.RoleStudent || rows[0].Priority != domain.PriorityNormal {
		t.Fatalf("notification = %+v", rows)
	}

	st, _ = f.engine.ProcessInactivityTriggers(ctx)
	if st.Processed != 1 || st.Sent != 0 {
		t.Fatalf("second run = %+v, want sent=0", st)
	}
}

func TestInactivityBatchLimit(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"a", "b", "c"} {
		f.save(t, domain.User{ID: id, Active: true, LastActiveAt: ptrTime(f.now.Add(-60 * 24 * time.Hour))})
	}
	rules := DefaultRules()
	rules.Inactivity.Batch = 2
	f.engine.SetRules(rules)
	st, err := f.engine.ProcessInactivityTriggers(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if st.Processed != 2 {
		t.Fatalf("processed = %d, want 2", st.Processed)
	}
}

func TestProfileTrigger(t *testing.T) {
	f := newFixture(t)
	f.save(t,
		domain.User{ID: "low", Email: "low@example.org", Active: true, OnboardingCompleted: true, ProfileCompleteness: 40},
		domain.User{ID: "done", Email: "done@example.org", Active: true, OnboardingCompleted: true, ProfileCompleteness: 95},
		domain.User{ID: "new", Email: "new@example.org", Active: true, OnboardingCompleted: false, ProfileCompleteness: 5},
	)
	ctx := context.Background()
	st, err := f.engine.ProcessProfileTriggers(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if st.Processed != 1 || st.Sent != 1 {
		t.Fatalf("run = %+v, want processed=1 sent=1", st)
	}
	rows, _ := f.store.ListNotifications(ctx, "low", domain.ListOptions{})
	if len(rows) != 1 || rows[0].Priority != domain.PriorityLow || rows[0].ActionURL != "/profile/edit" {
		t.Fatalf("notification = %+v", rows)
	}
	if st, _ := f.engine.ProcessProfileTriggers(ctx); st.Sent != 0 {
		t.Fatalf("second run = %+v, want sent=0", st)
	}
}

func TestCooldownSeesEmailOnlyDeliveries(t *testing.T) {
	f := newFixture(t)
	f.save(t, domain.User{ID: "u1", Email: "u1@example.org", Active: true, OnboardingCompleted: true, ProfileCompleteness: 10})
	ctx := context.Background()
	off := false
	if _, err := f.svc.Preferences().UpsertPreference(ctx, "u1", domain.CategorySystem, domain.PreferenceChanges{InApp: &off}); err != nil {
		t.Fatalf("UpsertPreference: %v", err)
	}
	if st, _ := f.engine.ProcessProfileTriggers(ctx); st.Sent != 1 {
		t.Fatalf("first run = %+v, want email-only send", st)
	}
	if st, _ := f.engine.ProcessProfileTriggers(ctx); st.Sent != 0 || st.Skipped != 1 {
		t.Fatalf("second run = %+v, want cooldown hit", st)
	}
}

func TestZeroCooldownAlwaysSends(t *testing.T) {
	f := newFixture(t)
	f.save(t, domain.User{ID: "u1", Active: true, OnboardingCompleted: true, ProfileCompleteness: 10})
	rules := DefaultRules()
	rules.Profile.Cooldown = 0
	f.engine.SetRules(rules)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if st, _ := f.engine.ProcessProfileTriggers(ctx); st.Sent != 1 {
			t.Fatalf("run %d = %+v, want sent=1", i, st)
		}
	}
}

// stubDispatcher returns canned results.
type stubDispatcher struct {
	results []notify.Result
	calls   int
}

func (s *stubDispatcher) Send(_ context.Context, _ notify.Params) notify.Result {
	r := s.results[s.calls%len(s.results)]
	s.calls++
	return r
}

func TestDispatchOutcomesAreCounted(t *testing.T) {
	st := storage.NewMemory()
	now := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		if err := st.SaveUser(context.Background(), domain.User{ID: id, Active: true, OnboardingCompleted: true, ProfileCompleteness: 10}); err != nil {
			t.Fatalf("SaveUser: %v", err)
		}
	}
	disp := &stubDispatcher{results: []notify.Result{
		{NotificationID: "n1"},
		{Err: errors.New("db down")},
		{Skipped: true, SkipReason: notify.SkipRoleMismatch},
	}}
	eng := New(st, disp, DefaultRules(), discardLogger())
	eng.now = func() time.Time { return now }

	stats, err := eng.ProcessProfileTriggers(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := Stats{Processed: 3, Sent: 1, Skipped: 1, Failed: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
}

type failingHistory struct {
	storage.Store
}

func (failingHistory) FindNotification(context.Context, domain.HistoryQuery) (*domain.Notification, error) {
	return nil, errors.New("history unavailable")
}

func TestHistoryFailureSkipsCandidate(t *testing.T) {
	mem := storage.NewMemory()
	if err := mem.SaveUser(context.Background(), domain.User{ID: "a", Active: true, OnboardingCompleted: true, ProfileCompleteness: 10}); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	disp := &stubDispatcher{results: []notify.Result{{NotificationID: "n1"}}}
	eng := New(failingHistory{Store: mem}, disp, DefaultRules(), discardLogger())
	stats, err := eng.ProcessProfileTriggers(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Failed != 1 || disp.calls != 0 {
		t.Fatalf("stats = %+v calls = %d, want failed=1 and no dispatch", stats, disp.calls)
	}
}

func TestCancelledContextStopsRun(t *testing.T) {
	f := newFixture(t)
	f.save(t, domain.User{ID: "a", Active: true, OnboardingCompleted: true, ProfileCompleteness: 10})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st, err := f.engine.ProcessProfileTriggers(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if st.Processed != 0 {
		t.Fatalf("processed = %d, want 0", st.Processed)
	}
}

func TestRunByName(t *testing.T) {
	f := newFixture(t)
	f.save(t, domain.User{ID: "a", Active: true, OnboardingCompleted: true, ProfileCompleteness: 10})
	ctx := context.Background()
	if _, err := f.engine.RunByName(ctx, "weekly"); !errors.Is(err, ErrUnknownTrigger) {
		t.Fatalf("err = %v, want ErrUnknownTrigger", err)
	}
	st, err := f.engine.RunByName(ctx, "all")
	if err != nil {
		t.Fatalf("RunByName(all): %v", err)
	}
	if st.Sent != 1 {
		t.Fatalf("stats = %+v, want one send from the profile scanner", st)
	}
}

func TestRulesValidate(t *testing.T) {
	if err := DefaultRules().Validate(); err != nil {
		t.Fatalf("DefaultRules invalid: %v", err)
	}
	r := DefaultRules()
	r.Profile.Threshold = 0
	if err := r.Validate(); err == nil {
		t.Fatal("expected threshold error")
	}
	r = DefaultRules()
	r.Compliance.Match = "fuzzy"
	if err := r.Validate(); err == nil {
		t.Fatal("expected match error")
	}
}

func TestRateLimitedRunStillCompletes(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"a", "b"} {
		f.save(t, domain.User{ID: id, Active: true, OnboardingCompleted: true, ProfileCompleteness: 10})
	}
	f.engine.SetRate(1000)
	st, err := f.engine.ProcessProfileTriggers(context.Background())
	if err != nil || st.Sent != 2 {
		t.Fatalf("run = %+v, %v", st, err)
	}
}
