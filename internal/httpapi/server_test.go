package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/notify"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/storage"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/trigger"
	logx "github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/pkg/logx"
)

type fixture struct {
	store storage.Store
	svc   *notify.Service
	h     http.Handler
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	st := storage.NewMemory()
	t.Cleanup(func() { _ = st.Close() })
	svc, err := notify.New(st, notify.DefaultDefaults(), logx.Nop(), nil)
	if err != nil {
		t.Fatalf("notify.New: %v", err)
	}
	eng := trigger.New(st, svc, trigger.DefaultRules(), logx.Nop())
	srv := New(Config{Token: token}, Deps{
		Dispatcher:  svc,
		Preferences: svc.Preferences(),
		Legacy:      notify.NewLegacy(svc, logx.Nop()),
		Triggers:    eng,
	}, logx.Nop())
	for _, u := range []domain.User{
		{ID: "u1", Email: "u1@example.org", Role: domain.RoleInstitutionAdmin, InstitutionID: "i1", Active: true},
		{ID: "u2", Email: "u2@example.org", Role: domain.RoleInstitutionStaff, InstitutionID: "i1", Active: true},
	} {
		if err := st.SaveUser(context.Background(), u); err != nil {
			t.Fatalf("SaveUser: %v", err)
		}
	}
	return &fixture{store: st, svc: svc, h: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, "secret")
	if rec := f.do(t, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	f := newFixture(t, "secret")
	if rec := f.do(t, http.MethodGet, "/v1/users/u1/preferences", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d, want 401", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/v1/users/u1/preferences", nil, "Authorization", "Bearer wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token = %d, want 401", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/v1/users/u1/preferences", nil, "Authorization", "Bearer secret"); rec.Code != http.StatusOK {
		t.Fatalf("good token = %d, want 200", rec.Code)
	}
}

func TestPreferenceRoutes(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodPut, "/v1/users/u1/preferences/COMPLIANCE", map[string]any{"email": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT = %d %s", rec.Code, rec.Body.String())
	}
	got := decode[preferenceDTO](t, rec)
	if got.EmailEnabled || !got.InAppEnabled || got.SMSEnabled {
		t.Fatalf("pref = %+v, want email off, in-app on, sms off", got)
	}

	if rec := f.do(t, http.MethodPut, "/v1/users/u1/preferences/NEWS", map[string]any{"email": false}); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad category = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPut, "/v1/users/u1/preferences/SYSTEM", map[string]any{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty changes = %d", rec.Code)
	}

	list := decode[struct {
		Items []preferenceDTO `json:"items"`
	}](t, f.do(t, http.MethodGet, "/v1/users/u1/preferences", nil))
	if len(list.Items) != 1 || list.Items[0].Category != domain.CategoryCompliance {
		t.Fatalf("list = %+v", list.Items)
	}
}

func TestSendListAndMarkRead(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodPost, "/v1/notifications", map[string]any{
		"user_id": "u1", "type": "SUBMISSION_APPROVED", "title": "Approved", "message": "Your submission was approved",
		"category": "ACADEMIC", "channels": []string{"IN_APP"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("send = %d %s", rec.Code, rec.Body.String())
	}
	res := decode[resultDTO](t, rec)
	if res.NotificationID == "" || res.EmailQueued {
		t.Fatalf("result = %+v", res)
	}

	page := decode[struct {
		Items  []notificationDTO `json:"items"`
		Unread int               `json:"unread"`
	}](t, f.do(t, http.MethodGet, "/v1/users/u1/notifications?limit=10", nil))
	if len(page.Items) != 1 || page.Unread != 1 {
		t.Fatalf("page = %+v", page)
	}

	rec = f.do(t, http.MethodPost, "/v1/users/u1/notifications/read", map[string]any{"ids": []string{res.NotificationID}})
	if rec.Code != http.StatusOK {
		t.Fatalf("mark read = %d", rec.Code)
	}
	if n, _ := f.svc.UnreadCount(context.Background(), "u1"); n != 0 {
		t.Fatalf("unread = %d after mark read", n)
	}
	if rec := f.do(t, http.MethodGet, "/v1/users/u1/notifications?limit=x", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit = %d", rec.Code)
	}
}

func TestListNotificationsPageSize(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	for i := 0; i < 60; i++ {
		res := f.svc.Send(ctx, notify.Params{UserID: "u1", Type: "T", Title: "t", Message: "m", Channels: []domain.Channel{domain.ChannelInApp}})
		if res.NotificationID == "" {
			t.Fatalf("send %d: %+v", i, res)
		}
	}
	tests := []struct {
		query string
		want  int
	}{
		{"", 50},
		{"?limit=0", 50},
		{"?limit=5", 5},
		{"?limit=1000", 60},
	}
	for _, tt := range tests {
		t.Run("limit"+tt.query, func(t *testing.T) {
			page := decode[struct {
				Items []notificationDTO `json:"items"`
			}](t, f.do(t, http.MethodGet, "/v1/users/u1/notifications"+tt.query, nil))
			if len(page.Items) != tt.want {
				t.Fatalf("items = %d, want %d", len(page.Items), tt.want)
			}
		})
	}
}

func TestSendValidationAndSkip(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodPost, "/v1/notifications", map[string]any{
		"user_id": "u1", "type": "X", "title": "t", "message": "m", "priority": "URGENT",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid priority = %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodPost, "/v1/notifications", map[string]any{"user_id": "u1"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing fields = %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/v1/notifications", map[string]any{
		"user_id": "u1", "type": "X", "title": "t", "message": "m", "recipient_role": "STUDENT",
	})
	res := decode[resultDTO](t, rec)
	if rec.Code != http.StatusOK || !res.Skipped || res.SkipReason != notify.SkipRoleMismatch {
		t.Fatalf("role mismatch = %d %+v", rec.Code, res)
	}
}

func TestSendToInstitution(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodPost, "/v1/notifications", map[string]any{
		"institution_id": "i1", "type": "READINESS_SUBMITTED", "title": "t", "message": "m",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("fan-out = %d %s", rec.Code, rec.Body.String())
	}
	out := decode[struct {
		Results []resultDTO `json:"results"`
	}](t, rec)
	if len(out.Results) != 2 {
		t.Fatalf("results = %+v, want 2", out.Results)
	}
}

func TestLegacyRoute(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodPost, "/v1/notifications/legacy", map[string]any{
		"user_id": "u1", "type": "INVITE_ACCEPTED", "title": "t", "message": "m", "entity_type": "Invite", "entity_id": "inv-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("legacy = %d %s", rec.Code, rec.Body.String())
	}
	items, err := f.svc.ListForUser(context.Background(), "u1", domain.ListOptions{})
	if err != nil || len(items) != 1 {
		t.Fatalf("items = %v, %v", items, err)
	}
	if items[0].ResourceID != "inv-1" || items[0].EntityID != "inv-1" {
		t.Fatalf("resource columns = %+v", items[0])
	}
}

func TestRunTrigger(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodPost, "/v1/triggers/compliance/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("run = %d %s", rec.Code, rec.Body.String())
	}
	if st := decode[trigger.Stats](t, rec); st.Processed != 0 {
		t.Fatalf("stats = %+v", st)
	}
	if rec := f.do(t, http.MethodPost, "/v1/triggers/nope/run", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown trigger = %d", rec.Code)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	tests := map[string]bool{
		"127.0.0.1:8087": true,
		"localhost:80":   true,
		"[::1]:9000":     true,
		":8087":          false,
		"0.0.0.0:8087":   false,
		"10.0.0.5:8087":  false,
	}
	for addr, want := range tests {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestServeRefusesPublicWithoutToken(t *testing.T) {
	srv := New(Config{Addr: "0.0.0.0:0"}, Deps{}, logx.Nop())
	if err := srv.Serve(context.Background()); err == nil {
		t.Fatal("expected refusal")
	}
}

func TestPprofMountedBehindAuth(t *testing.T) {
	srv := New(Config{Token: "secret", Pprof: true}, Deps{}, logx.Nop())
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/goroutine?debug=1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated pprof = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/debug/pprof/goroutine?debug=1", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("pprof goroutine = %d", rec.Code)
	}

	off := New(Config{}, Deps{}, logx.Nop()).Handler()
	rec = httptest.NewRecorder()
	off.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("pprof disabled = %d, want 404", rec.Code)
	}
}
