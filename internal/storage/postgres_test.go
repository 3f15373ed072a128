package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"
	logx "github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/pkg/logx"
)

// dryRunPostgres returns a postgres store that never reaches a server.
// Statements are rendered with their arguments inlined and recorded in order.
func dryRunPostgres(t *testing.T) (*postgresStore, *[]string) {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 port=1 user=notifyd dbname=notifyd sslmode=disable",
	}), &gorm.Config{
		DryRun:                 true,
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 gormlogger.Discard,
	})
	if err != nil {
		t.Fatalf("open dry-run postgres: %v", err)
	}
	var stmts []string
	capture := func(tx *gorm.DB) {
		stmts = append(stmts, tx.Dialector.Explain(tx.Statement.SQL.String(), tx.Statement.Vars...))
	}
	if err := db.Callback().Create().After("gorm:create").Register("notifyd:capture", capture); err != nil {
		t.Fatalf("register create capture: %v", err)
	}
	if err := db.Callback().Query().After("gorm:query").Register("notifyd:capture", capture); err != nil {
		t.Fatalf("register query capture: %v", err)
	}
	return &postgresStore{db: db, log: logx.Nop()}, &stmts
}

func lastStmt(t *testing.T, stmts *[]string) string {
	t.Helper()
	if len(*stmts) == 0 {
		t.Fatal("no statement recorded")
	}
	return (*stmts)[len(*stmts)-1]
}

func assertContains(t *testing.T, sql string, parts ...string) {
	t.Helper()
	for _, p := range parts {
		if !strings.Contains(sql, p) {
			t.Fatalf("sql %q\nmissing %q", sql, p)
		}
	}
}

func TestPostgresFixturesWriteInactiveFlag(t *testing.T) {
	ctx := context.Background()
	st, stmts := dryRunPostgres(t)

	u := domain.User{
		ID: "u1", Name: "Ann", Email: "ann@example.org", Role: domain.RoleInstitutionStaff,
		InstitutionID: "inst-1", Active: false, OnboardingCompleted: true, ProfileCompleteness: 50,
	}
	if err := st.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	assertContains(t, lastStmt(t, stmts),
		`INSERT INTO "users"`,
		`'inst-1',false,`,
		`ON CONFLICT ("id") DO UPDATE SET`,
		`"active"="excluded"."active"`,
	)

	rec := domain.ComplianceRecord{
		ID: "r1", InstitutionID: "inst-1", Kind: "ACCREDITATION", Active: false,
		ExpiresAt: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := st.SaveComplianceRecord(ctx, rec); err != nil {
		t.Fatalf("SaveComplianceRecord: %v", err)
	}
	assertContains(t, lastStmt(t, stmts),
		`INSERT INTO "compliance_records"`,
		`'ACCREDITATION',false,`,
		`"active"="excluded"."active"`,
	)
}

func TestPostgresHistoryPredicates(t *testing.T) {
	ctx := context.Background()
	since := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		find     func(st *postgresStore, q domain.HistoryQuery) error
		table    string
		typeCol  string
		resource bool
	}{
		{
			name: "notification with resource",
			find: func(st *postgresStore, q domain.HistoryQuery) error {
				_, err := st.FindNotification(ctx, q)
				return err
			},
			table: `FROM "notifications"`, typeCol: "type = 'COMPLIANCE_EXPIRING'", resource: true,
		},
		{
			name: "notification without resource",
			find: func(st *postgresStore, q domain.HistoryQuery) error {
				_, err := st.FindNotification(ctx, q)
				return err
			},
			table: `FROM "notifications"`, typeCol: "type = 'COMPLIANCE_EXPIRING'",
		},
		{
			name: "queued email with resource",
			find: func(st *postgresStore, q domain.HistoryQuery) error {
				_, err := st.FindQueuedEmail(ctx, q)
				return err
			},
			table: `FROM "email_queue"`, typeCol: "event_type = 'COMPLIANCE_EXPIRING'", resource: true,
		},
		{
			name: "queued email without resource",
			find: func(st *postgresStore, q domain.HistoryQuery) error {
				_, err := st.FindQueuedEmail(ctx, q)
				return err
			},
			table: `FROM "email_queue"`, typeCol: "event_type = 'COMPLIANCE_EXPIRING'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, stmts := dryRunPostgres(t)
			q := domain.HistoryQuery{UserID: "u1", Type: "COMPLIANCE_EXPIRING", CreatedAfter: since}
			if tt.resource {
				q.ResourceID = "rec-1"
			}
			if err := tt.find(st, q); err != nil {
				t.Fatalf("find: %v", err)
			}
			sql := lastStmt(t, stmts)
			assertContains(t, sql, tt.table, "user_id = 'u1'", tt.typeCol, "created_at > '2025-03-01", "ORDER BY created_at DESC", "LIMIT 1")
			if got := strings.Contains(sql, "resource_id = 'rec-1'"); got != tt.resource {
				t.Fatalf("resource predicate present = %v, want %v\n%s", got, tt.resource, sql)
			}
		})
	}
}
