package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/domain"
	logx "github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/pkg/logx"
)

// ---- row models ----

type userRow struct {
	ID                  string     `gorm:"column:id;type:varchar(64);primaryKey"`
	Name                string     `gorm:"column:name"`
	Email               string     `gorm:"column:email"`
	Role                string     `gorm:"column:role;index:idx_users_inst_role,priority:2"`
	InstitutionID       string     `gorm:"column:institution_id;index:idx_users_inst_role,priority:1"`
	Active              bool       `gorm:"column:active;not null"`
	DeletedAt           *time.Time `gorm:"column:deleted_at"`
	LastActiveAt        *time.Time `gorm:"column:last_active_at;index"`
	OnboardingCompleted bool       `gorm:"column:onboarding_completed;not null;default:false"`
	ProfileCompleteness int        `gorm:"column:profile_completeness;not null;default:0"`
}

func (userRow) TableName() string { return "users" }

type institutionRow struct {
	ID   string `gorm:"column:id;type:varchar(64);primaryKey"`
	Name string `gorm:"column:name"`
}

func (institutionRow) TableName() string { return "institutions" }

type complianceRow struct {
	ID            string    `gorm:"column:id;type:varchar(64);primaryKey"`
	InstitutionID string    `gorm:"column:institution_id;index;not null"`
	Kind          string    `gorm:"column:kind"`
	Active        bool      `gorm:"column:active;not null"`
	ExpiresAt     time.Time `gorm:"column:expires_at;index;not null"`
}

func (complianceRow) TableName() string { return "compliance_records" }

type notificationRow struct {
	ID            string         `gorm:"column:id;type:varchar(64);primaryKey"`
	UserID        string         `gorm:"column:user_id;not null;index:idx_notifications_history,priority:1"`
	Type          string         `gorm:"column:type;not null;index:idx_notifications_history,priority:2"`
	Title         string         `gorm:"column:title;not null"`
	Message       string         `gorm:"column:message;type:text;not null"`
	Category      string         `gorm:"column:category;not null"`
	Priority      string         `gorm:"column:priority;not null"`
	Channels      datatypes.JSON `gorm:"column:channels;type:jsonb;not null"`
	ResourceType  *string        `gorm:"column:resource_type"`
	ResourceID    *string        `gorm:"column:resource_id"`
	EntityType    *string        `gorm:"column:entity_type"`
	EntityID      *string        `gorm:"column:entity_id"`
	RecipientRole *string        `gorm:"column:recipient_role"`
	InstitutionID *string        `gorm:"column:institution_id"`
	ActionURL     *string        `gorm:"column:action_url"`
	CreatedAt     time.Time      `gorm:"column:created_at;not null;index:idx_notifications_history,priority:3"`
	ReadAt        *time.Time     `gorm:"column:read_at"`
}

func (notificationRow) TableName() string { return "notifications" }

type preferenceRow struct {
	UserID       string    `gorm:"column:user_id;primaryKey"`
	Category     string    `gorm:"column:category;primaryKey"`
	EmailEnabled bool      `gorm:"column:email_enabled;not null"`
	InAppEnabled bool      `gorm:"column:in_app_enabled;not null"`
	SMSEnabled   bool      `gorm:"column:sms_enabled;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
}

func (preferenceRow) TableName() string { return "notification_preferences" }

type emailRow struct {
	ID         string    `gorm:"column:id;type:varchar(64);primaryKey"`
	UserID     string    `gorm:"column:user_id;not null;index:idx_email_queue_history,priority:1"`
	To         string    `gorm:"column:to_address;not null"`
	Subject    string    `gorm:"column:subject;not null"`
	TextBody   string    `gorm:"column:text_body;type:text;not null"`
	HTMLBody   string    `gorm:"column:html_body;type:text;not null"`
	Status     string    `gorm:"column:status;not null;index"`
	Priority   string    `gorm:"column:priority;not null"`
	EventType  *string   `gorm:"column:event_type;index:idx_email_queue_history,priority:2"`
	ResourceID *string   `gorm:"column:resource_id"`
	CreatedAt  time.Time `gorm:"column:created_at;not null;index:idx_email_queue_history,priority:3"`
}

func (emailRow) TableName() string { return "email_queue" }

// ---- store ----

type postgresStore struct {
	db  *gorm.DB
	log logx.Logger
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(log.With(logx.Component("gorm"))),
	})
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
	}
	if err := db.AutoMigrate(&institutionRow{}, &userRow{}, &complianceRow{}, &notificationRow{}, &preferenceRow{}, &emailRow{}); err != nil {
		closeGorm(db)
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	log.Info("storage opened", logx.String("driver", "postgres"))
	return &postgresStore{db: db, log: log}, nil
}

func closeGorm(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (s *postgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ---- fixtures ----

func (s *postgresStore) SaveUser(ctx context.Context, u domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	row := userRow{
		ID: u.ID, Name: u.Name, Email: u.Email, Role: string(u.Role), InstitutionID: u.InstitutionID,
		Active: u.Active, DeletedAt: u.DeletedAt, LastActiveAt: u.LastActiveAt,
		OnboardingCompleted: u.OnboardingCompleted, ProfileCompleteness: u.ProfileCompleteness,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (s *postgresStore) SaveInstitution(ctx context.Context, i domain.Institution) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	row := institutionRow{ID: i.ID, Name: i.Name}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (s *postgresStore) SaveComplianceRecord(ctx context.Context, r domain.ComplianceRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	row := complianceRow{ID: r.ID, InstitutionID: r.InstitutionID, Kind: r.Kind, Active: r.Active, ExpiresAt: r.ExpiresAt}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// ---- users ----

func (s *postgresStore) GetUser(ctx context.Context, id string) (domain.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return row.toDomain(), nil
}

func (s *postgresStore) ListUsersByRole(ctx context.Context, institutionID string, roles []domain.Role) ([]domain.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}
	q := s.deliverable(ctx).Where("role IN ?", names)
	if institutionID != "" {
		q = q.Where("institution_id = ?", institutionID)
	}
	var rows []userRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return usersToDomain(rows), nil
}

func (s *postgresStore) ListInactiveUsers(ctx context.Context, before time.Time, limit int) ([]domain.User, error) {
	var rows []userRow
	q := s.deliverable(ctx).
		Where("last_active_at IS NOT NULL AND last_active_at < ?", before).
		Order("last_active_at").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return usersToDomain(rows), nil
}

func (s *postgresStore) ListIncompleteProfiles(ctx context.Context, below int, limit int) ([]domain.User, error) {
	var rows []userRow
	q := s.deliverable(ctx).
		Where("onboarding_completed = ? AND profile_completeness < ?", true, below).
		Order("profile_completeness").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return usersToDomain(rows), nil
}

func (s *postgresStore) deliverable(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&userRow{}).Where("active = ? AND deleted_at IS NULL", true)
}

func (r userRow) toDomain() domain.User {
	return domain.User{
		ID: r.ID, Name: r.Name, Email: r.Email, Role: domain.Role(r.Role), InstitutionID: r.InstitutionID,
		Active: r.Active, DeletedAt: r.DeletedAt, LastActiveAt: r.LastActiveAt,
		OnboardingCompleted: r.OnboardingCompleted, ProfileCompleteness: r.ProfileCompleteness,
	}
}

func usersToDomain(rows []userRow) []domain.User {
	out := make([]domain.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}

// ---- notifications ----

func (s *postgresStore) CreateNotification(ctx context.Context, n *domain.Notification) error {
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
	row := notificationRow{
		ID: n.ID, UserID: n.UserID, Type: n.Type, Title: n.Title, Message: n.Message,
		Category: string(n.Category), Priority: string(n.Priority), Channels: datatypes.JSON(ch),
		ResourceType: optStr(n.ResourceType), ResourceID: optStr(n.ResourceID),
		EntityType: optStr(n.EntityType), EntityID: optStr(n.EntityID),
		RecipientRole: optStr(string(n.RecipientRole)), InstitutionID: optStr(n.InstitutionID),
		ActionURL: optStr(n.ActionURL), CreatedAt: n.CreatedAt, ReadAt: n.ReadAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *postgresStore) FindNotification(ctx context.Context, q domain.HistoryQuery) (*domain.Notification, error) {
	tx := s.db.WithContext(ctx).Where("user_id = ? AND type = ? AND created_at > ?", q.UserID, q.Type, q.CreatedAfter)
	if q.ResourceID != "" {
		tx = tx.Where("resource_id = ?", q.ResourceID)
	}
	var rows []notificationRow
	if err := tx.Order("created_at DESC").Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	n, err := rows[0].toDomain()
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *postgresStore) ListNotifications(ctx context.Context, userID string, opt domain.ListOptions) ([]domain.Notification, error) {
	tx := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if opt.UnreadOnly {
		tx = tx.Where("read_at IS NULL")
	}
	if opt.Limit > 0 {
		tx = tx.Limit(opt.Limit)
	}
	if opt.Offset > 0 {
		tx = tx.Offset(opt.Offset)
	}
	var rows []notificationRow
	if err := tx.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(rows))
	for _, r := range rows {
		n, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *postgresStore) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&notificationRow{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&n).Error
	return int(n), err
}

func (s *postgresStore) MarkRead(ctx context.Context, userID string, ids []string, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&notificationRow{}).
		Where("user_id = ? AND read_at IS NULL AND id IN ?", userID, ids).
		Update("read_at", at)
	return int(res.RowsAffected), res.Error
}

func (r notificationRow) toDomain() (domain.Notification, error) {
	n := domain.Notification{
		ID: r.ID, UserID: r.UserID, Type: r.Type, Title: r.Title, Message: r.Message,
		Category: domain.Category(r.Category), Priority: domain.Priority(r.Priority),
		ResourceType: derefStr(r.ResourceType), ResourceID: derefStr(r.ResourceID),
		EntityType: derefStr(r.EntityType), EntityID: derefStr(r.EntityID),
		RecipientRole: domain.Role(derefStr(r.RecipientRole)), InstitutionID: derefStr(r.InstitutionID),
		ActionURL: derefStr(r.ActionURL), CreatedAt: r.CreatedAt, ReadAt: r.ReadAt,
	}
	var chs []string
	if len(r.Channels) > 0 {
		if err := json.Unmarshal(r.Channels, &chs); err != nil {
			return domain.Notification{}, fmt.Errorf("notification %s: channels: %w", r.ID, err)
		}
	}
	for _, c := range chs {
		n.Channels = append(n.Channels, domain.Channel(c))
	}
	return n, nil
}

// ---- preferences ----

func (s *postgresStore) GetPreference(ctx context.Context, userID string, cat domain.Category) (domain.Preference, bool, error) {
	var rows []preferenceRow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND category = ?", userID, string(cat)).
		Limit(1).Find(&rows).Error
	if err != nil {
		return domain.Preference{}, false, err
	}
	if len(rows) == 0 {
		return domain.Preference{}, false, nil
	}
	return rows[0].toDomain(), true, nil
}

func (s *postgresStore) ListPreferences(ctx context.Context, userID string) ([]domain.Preference, error) {
	var rows []preferenceRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("category").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Preference, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *postgresStore) UpsertPreference(ctx context.Context, userID string, cat domain.Category, changes domain.PreferenceChanges, at time.Time) (domain.Preference, error) {
	var out domain.Preference
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []preferenceRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND category = ?", userID, string(cat)).
			Limit(1).Find(&rows).Error; err != nil {
			return err
		}
		p := domain.DefaultPreference(userID, cat)
		if len(rows) > 0 {
			p = rows[0].toDomain()
		}
		changes.Apply(&p)
		p.UpdatedAt = at

		row := preferenceRow{
			UserID: p.UserID, Category: string(p.Category),
			EmailEnabled: p.EmailEnabled, InAppEnabled: p.InAppEnabled, SMSEnabled: p.SMSEnabled,
			UpdatedAt: at,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "category"}},
			DoUpdates: clause.AssignmentColumns([]string{"email_enabled", "in_app_enabled", "sms_enabled", "updated_at"}),
		}).Create(&row).Error; err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (r preferenceRow) toDomain() domain.Preference {
	return domain.Preference{
		UserID: r.UserID, Category: domain.Category(r.Category),
		EmailEnabled: r.EmailEnabled, InAppEnabled: r.InAppEnabled, SMSEnabled: r.SMSEnabled,
		UpdatedAt: r.UpdatedAt,
	}
}

// ---- email queue ----

func (s *postgresStore) EnqueueEmail(ctx context.Context, e *domain.EmailQueueEntry) error {
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
	row := emailRow{
		ID: e.ID, UserID: e.UserID, To: e.To, Subject: e.Subject, TextBody: e.TextBody, HTMLBody: e.HTMLBody,
		Status: string(e.Status), Priority: string(e.Priority),
		EventType: optStr(e.EventType), ResourceID: optStr(e.ResourceID), CreatedAt: e.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *postgresStore) FindQueuedEmail(ctx context.Context, q domain.HistoryQuery) (*domain.EmailQueueEntry, error) {
	tx := s.db.WithContext(ctx).Where("user_id = ? AND event_type = ? AND created_at > ?", q.UserID, q.Type, q.CreatedAfter)
	if q.ResourceID != "" {
		tx = tx.Where("resource_id = ?", q.ResourceID)
	}
	var rows []emailRow
	if err := tx.Order("created_at DESC").Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	r := rows[0]
	return &domain.EmailQueueEntry{
		ID: r.ID, UserID: r.UserID, To: r.To, Subject: r.Subject, TextBody: r.TextBody, HTMLBody: r.HTMLBody,
		Status: domain.EmailStatus(r.Status), Priority: domain.EmailPriority(r.Priority),
		EventType: derefStr(r.EventType), ResourceID: derefStr(r.ResourceID), CreatedAt: r.CreatedAt,
	}, nil
}

// ---- compliance ----

type expiringRow struct {
	complianceRow
	InstitutionName string `gorm:"column:institution_name"`
}

func (s *postgresStore) ListExpiringCompliance(ctx context.Context, from, to time.Time) ([]domain.ComplianceRecord, error) {
	var rows []expiringRow
	err := s.db.WithContext(ctx).
		Table("compliance_records AS c").
		Select("c.*, COALESCE(i.name, '') AS institution_name").
		Joins("LEFT JOIN institutions i ON i.id = c.institution_id").
		Where("c.active = ? AND c.expires_at >= ? AND c.expires_at <= ?", true, from, to).
		Order("c.expires_at").Order("c.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.ComplianceRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.ComplianceRecord{
			ID: r.ID, InstitutionID: r.InstitutionID, InstitutionName: r.InstitutionName,
			Kind: r.Kind, Active: r.Active, ExpiresAt: r.ExpiresAt,
		})
	}
	return out, nil
}

func optStr(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

func derefStr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// ---- gorm logging ----

// gormLogger routes gorm's messages through logx.
type gormLogger struct {
	log           logx.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(log logx.Logger) gormlogger.Interface {
	return &gormLogger{log: log, level: gormlogger.Warn, slowThreshold: 500 * time.Millisecond}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *gormLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.log.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.log.Error(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		l.log.Error("query failed", logx.String("sql", sql), logx.Int64("rows", rows), logx.Duration("elapsed", elapsed), logx.Err(err))
	case elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.log.Warn("slow query", logx.String("sql", sql), logx.Int64("rows", rows), logx.Duration("elapsed", elapsed))
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.log.Debug("query", logx.String("sql", sql), logx.Int64("rows", rows), logx.Duration("elapsed", elapsed))
	}
}
