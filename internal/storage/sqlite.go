package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"
	logx "github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Times are stored as unix milliseconds so range predicates compare numerically.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer; this also serializes upsert transactions.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", "sqlite"), logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- fixtures ----

func (s *sqliteStore) SaveUser(ctx context.Context, u domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, name, email, role, institution_id, active, deleted_at, last_active_at, onboarding_completed, profile_completeness)
		 VALUES(?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, email=excluded.email, role=excluded.role, institution_id=excluded.institution_id,
		   active=excluded.active, deleted_at=excluded.deleted_at, last_active_at=excluded.last_active_at,
		   onboarding_completed=excluded.onboarding_completed, profile_completeness=excluded.profile_completeness`,
		u.ID, u.Name, u.Email, string(u.Role), u.InstitutionID, u.Active, nullTime(u.DeletedAt), nullTime(u.LastActiveAt),
		u.OnboardingCompleted, u.ProfileCompleteness,
	)
	return err
}

func (s *sqliteStore) SaveInstitution(ctx context.Context, i domain.Institution) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO institutions(id, name) VALUES(?,?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name`,
		i.ID, i.Name,
	)
	return err
}

func (s *sqliteStore) SaveComplianceRecord(ctx context.Context, r domain.ComplianceRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO compliance_records(id, institution_id, kind, active, expires_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   institution_id=excluded.institution_id, kind=excluded.kind, active=excluded.active, expires_at=excluded.expires_at`,
		r.ID, r.InstitutionID, r.Kind, r.Active, r.ExpiresAt.UnixMilli(),
	)
	return err
}

// ---- users ----

const userColumns = `id, name, email, role, institution_id, active, deleted_at, last_active_at, onboarding_completed, profile_completeness`

func (s *sqliteStore) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	return u, err
}

func (s *sqliteStore) ListUsersByRole(ctx context.Context, institutionID string, roles []domain.Role) ([]domain.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(roles)+1)
	ph := make([]string, 0, len(roles))
	for _, r := range roles {
		ph = append(ph, "?")
		args = append(args, string(r))
	}
	q := `SELECT ` + userColumns + ` FROM users
	      WHERE active = 1 AND deleted_at IS NULL AND role IN (` + strings.Join(ph, ",") + `)`
	if institutionID != "" {
		q += ` AND institution_id = ?`
		args = append(args, institutionID)
	}
	q += ` ORDER BY id`
	return s.queryUsers(ctx, q, args...)
}

func (s *sqliteStore) ListInactiveUsers(ctx context.Context, before time.Time, limit int) ([]domain.User, error) {
	return s.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE active = 1 AND deleted_at IS NULL AND last_active_at IS NOT NULL AND last_active_at < ?
		 ORDER BY last_active_at, id LIMIT ?`,
		before.UnixMilli(), sqlLimit(limit),
	)
}

func (s *sqliteStore) ListIncompleteProfiles(ctx context.Context, below int, limit int) ([]domain.User, error) {
	return s.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE active = 1 AND deleted_at IS NULL AND onboarding_completed = 1 AND profile_completeness < ?
		 ORDER BY profile_completeness, id LIMIT ?`,
		below, sqlLimit(limit),
	)
}

func (s *sqliteStore) queryUsers(ctx context.Context, q string, args ...any) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(sc scanner) (domain.User, error) {
	var (
		u          domain.User
		role       string
		deletedAt  sql.NullInt64
		lastActive sql.NullInt64
	)
	if err := sc.Scan(&u.ID, &u.Name, &u.Email, &role, &u.InstitutionID, &u.Active, &deletedAt, &lastActive,
		&u.OnboardingCompleted, &u.ProfileCompleteness); err != nil {
		return domain.User{}, err
	}
	u.Role = domain.Role(role)
	u.DeletedAt = timePtr(deletedAt)
	u.LastActiveAt = timePtr(lastActive)
	return u, nil
}

// ---- notifications ----

const notificationColumns = `id, user_id, type, title, message, category, priority, channels, resource_type, resource_id,
	entity_type, entity_id, recipient_role, institution_id, action_url, created_at, read_at`

func (s *sqliteStore) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if n == nil {
		return nil
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	ch, err := json.Marshal(domain.ChannelStrings(n.Channels))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notifications(`+notificationColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, string(n.Category), string(n.Priority), string(ch),
		nullStr(n.ResourceType), nullStr(n.ResourceID), nullStr(n.EntityType), nullStr(n.EntityID),
		nullStr(string(n.RecipientRole)), nullStr(n.InstitutionID), nullStr(n.ActionURL),
		n.CreatedAt.UnixMilli(), nullTime(n.ReadAt),
	)
	return err
}

func (s *sqliteStore) FindNotification(ctx context.Context, q domain.HistoryQuery) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = ? AND type = ? AND created_at > ?`
	args := []any{q.UserID, q.Type, q.CreatedAfter.UnixMilli()}
	if q.ResourceID != "" {
		query += ` AND resource_id = ?`
		args = append(args, q.ResourceID)
	}
	query += ` ORDER BY created_at DESC LIMIT 1`
	n, err := scanNotification(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *sqliteStore) ListNotifications(ctx context.Context, userID string, opt domain.ListOptions) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = ?`
	if opt.UnreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, userID, sqlLimit(opt.Limit), max(0, opt.Offset))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read_at IS NULL`, userID).Scan(&n)
	return n, err
}

func (s *sqliteStore) MarkRead(ctx context.Context, userID string, ids []string, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := []any{at.UnixMilli(), userID}
	ph := make([]string, 0, len(ids))
	for _, id := range ids {
		ph = append(ph, "?")
		args = append(args, id)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read_at = ? WHERE user_id = ? AND read_at IS NULL AND id IN (`+strings.Join(ph, ",")+`)`,
		args...,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanNotification(sc scanner) (domain.Notification, error) {
	var (
		n                              domain.Notification
		category, priority, channels   string
		resType, resID, entType, entID sql.NullString
		role, instID, actionURL        sql.NullString
		createdAt                      int64
		readAt                         sql.NullInt64
	)
	if err := sc.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &category, &priority, &channels,
		&resType, &resID, &entType, &entID, &role, &instID, &actionURL, &createdAt, &readAt); err != nil {
		return domain.Notification{}, err
	}
	n.Category = domain.Category(category)
	n.Priority = domain.Priority(priority)
	var chs []string
	if err := json.Unmarshal([]byte(channels), &chs); err != nil {
		return domain.Notification{}, fmt.Errorf("notification %s: channels: %w", n.ID, err)
	}
	for _, c := range chs {
		n.Channels = append(n.Channels, domain.Channel(c))
	}
	n.ResourceType = resType.String
	n.ResourceID = resID.String
	n.EntityType = entType.String
	n.EntityID = entID.String
	n.RecipientRole = domain.Role(role.String)
	n.InstitutionID = instID.String
	n.ActionURL = actionURL.String
	n.CreatedAt = time.UnixMilli(createdAt)
	n.ReadAt = timePtr(readAt)
	return n, nil
}

// ---- preferences ----

func (s *sqliteStore) GetPreference(ctx context.Context, userID string, cat domain.Category) (domain.Preference, bool, error) {
	p, err := scanPreference(s.db.QueryRowContext(ctx,
		`SELECT user_id, category, email_enabled, in_app_enabled, sms_enabled, updated_at
		 FROM notification_preferences WHERE user_id = ? AND category = ?`,
		userID, string(cat),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Preference{}, false, nil
	}
	if err != nil {
		return domain.Preference{}, false, err
	}
	return p, true, nil
}

func (s *sqliteStore) ListPreferences(ctx context.Context, userID string) ([]domain.Preference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, category, email_enabled, in_app_enabled, sms_enabled, updated_at
		 FROM notification_preferences WHERE user_id = ? ORDER BY category`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Preference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpsertPreference(ctx context.Context, userID string, cat domain.Category, changes domain.PreferenceChanges, at time.Time) (domain.Preference, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Preference{}, err
	}
	defer tx.Rollback()

	p, err := scanPreference(tx.QueryRowContext(ctx,
		`SELECT user_id, category, email_enabled, in_app_enabled, sms_enabled, updated_at
		 FROM notification_preferences WHERE user_id = ? AND category = ?`,
		userID, string(cat),
	))
	if errors.Is(err, sql.ErrNoRows) {
		p = domain.DefaultPreference(userID, cat)
	} else if err != nil {
		return domain.Preference{}, err
	}
	changes.Apply(&p)
	p.UpdatedAt = at

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO notification_preferences(user_id, category, email_enabled, in_app_enabled, sms_enabled, updated_at)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(user_id, category) DO UPDATE SET
		   email_enabled=excluded.email_enabled, in_app_enabled=excluded.in_app_enabled,
		   sms_enabled=excluded.sms_enabled, updated_at=excluded.updated_at`,
		p.UserID, string(p.Category), p.EmailEnabled, p.InAppEnabled, p.SMSEnabled, at.UnixMilli(),
	); err != nil {
		return domain.Preference{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Preference{}, err
	}
	return p, nil
}

func scanPreference(sc scanner) (domain.Preference, error) {
	var (
		p         domain.Preference
		cat       string
		updatedAt int64
	)
	if err := sc.Scan(&p.UserID, &cat, &p.EmailEnabled, &p.InAppEnabled, &p.SMSEnabled, &updatedAt); err != nil {
		return domain.Preference{}, err
	}
	p.Category = domain.Category(cat)
	p.UpdatedAt = time.UnixMilli(updatedAt)
	return p, nil
}

// ---- email queue ----

func (s *sqliteStore) EnqueueEmail(ctx context.Context, e *domain.EmailQueueEntry) error {
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO email_queue(id, user_id, to_address, subject, text_body, html_body, status, priority, event_type, resource_id, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.UserID, e.To, e.Subject, e.TextBody, e.HTMLBody, string(e.Status), string(e.Priority),
		nullStr(e.EventType), nullStr(e.ResourceID), e.CreatedAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) FindQueuedEmail(ctx context.Context, q domain.HistoryQuery) (*domain.EmailQueueEntry, error) {
	query := `SELECT id, user_id, to_address, subject, text_body, html_body, status, priority, event_type, resource_id, created_at
	          FROM email_queue WHERE user_id = ? AND event_type = ? AND created_at > ?`
	args := []any{q.UserID, q.Type, q.CreatedAfter.UnixMilli()}
	if q.ResourceID != "" {
		query += ` AND resource_id = ?`
		args = append(args, q.ResourceID)
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	var (
		e                domain.EmailQueueEntry
		status, priority string
		eventType, resID sql.NullString
		createdAt        int64
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&e.ID, &e.UserID, &e.To, &e.Subject, &e.TextBody, &e.HTMLBody,
		&status, &priority, &eventType, &resID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Status = domain.EmailStatus(status)
	e.Priority = domain.EmailPriority(priority)
	e.EventType = eventType.String
	e.ResourceID = resID.String
	e.CreatedAt = time.UnixMilli(createdAt)
	return &e, nil
}

// ---- compliance ----

func (s *sqliteStore) ListExpiringCompliance(ctx context.Context, from, to time.Time) ([]domain.ComplianceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.institution_id, COALESCE(i.name, ''), c.kind, c.active, c.expires_at
		 FROM compliance_records c LEFT JOIN institutions i ON i.id = c.institution_id
		 WHERE c.active = 1 AND c.expires_at >= ? AND c.expires_at <= ?
		 ORDER BY c.expires_at, c.id`,
		from.UnixMilli(), to.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ComplianceRecord
	for rows.Next() {
		var (
			r         domain.ComplianceRecord
			expiresAt int64
		)
		if err := rows.Scan(&r.ID, &r.InstitutionID, &r.InstitutionName, &r.Kind, &r.Active, &expiresAt); err != nil {
			return nil, err
		}
		r.ExpiresAt = time.UnixMilli(expiresAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- helpers ----

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

// sqlLimit maps "no limit" onto SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
