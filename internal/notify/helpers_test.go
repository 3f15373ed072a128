package notify

import (
	"context"
	"testing"
	"time"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/eventbus"
	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/storage"
	logx "github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/pkg/logx"
)

func discardLogger() logx.Logger { return logx.Nop() }

// faultyStore injects failures into selected calls.
type faultyStore struct {
	storage.Store
	getUserErr   error
	getPrefErr   error
	createErr    error
	enqueueErr   error
	getUserCalls int
}

func (f *faultyStore) GetUser(ctx context.Context, id string) (domain.User, error) {
	f.getUserCalls++
	if f.getUserErr != nil {
		return domain.User{}, f.getUserErr
	}
	return f.Store.GetUser(ctx, id)
}

func (f *faultyStore) GetPreference(ctx context.Context, userID string, cat domain.Category) (domain.Preference, bool, error) {
	if f.getPrefErr != nil {
		return domain.Preference{}, false, f.getPrefErr
	}
	return f.Store.GetPreference(ctx, userID, cat)
}

func (f *faultyStore) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.Store.CreateNotification(ctx, n)
}

func (f *faultyStore) EnqueueEmail(ctx context.Context, e *domain.EmailQueueEntry) error {
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	return f.Store.EnqueueEmail(ctx, e)
}

func newTestService(t *testing.T, st Store, bus eventbus.Bus) *Service {
	t.Helper()
	svc, err := New(st, Defaults{BaseURL: "https://verified.example.org"}, discardLogger(), bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func seedUser(t *testing.T, st storage.Store, u domain.User) {
	t.Helper()
	if err := st.SaveUser(context.Background(), u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
}

func countNotifications(t *testing.T, st storage.Store, userID string) int {
	t.Helper()
	rows, err := st.ListNotifications(context.Background(), userID, domain.ListOptions{})
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	return len(rows)
}

func queuedEmail(t *testing.T, st storage.Store, userID, typ string) *domain.EmailQueueEntry {
	t.Helper()
	e, err := st.FindQueuedEmail(context.Background(), domain.HistoryQuery{UserID: userID, Type: typ, CreatedAfter: time.Unix(0, 0)})
	if err != nil {
		t.Fatalf("FindQueuedEmail: %v", err)
	}
	return e
}

func ptrBool(v bool) *bool { return &v }
