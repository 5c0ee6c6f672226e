package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/phasegate/types"
)

// auditRow is the relational projection of types.AuditRecord. Seq is the
// insertion order; timestamps alone cannot break ties.
type auditRow struct {
	Seq       int64     `gorm:"primaryKey;autoIncrement"`
	RecordID  string    `gorm:"uniqueIndex;size:64"`
	SessionID string    `gorm:"index;size:128"`
	Timestamp time.Time `gorm:"index"`
	Actor     string    `gorm:"size:128"`
	Phase     string    `gorm:"size:64"`
	Action    string    `gorm:"size:32"`
	Field     string    `gorm:"size:128"`
	Target    string    `gorm:"size:64"`
	Outcome   string    `gorm:"size:16"`
	Reason    string
	Revision  uint64
}

func (auditRow) TableName() string { return "audit_records" }

// GormAuditStore keeps the audit trail in a relational database through
// GORM. Supported drivers: postgres, mysql, sqlite.
type GormAuditStore struct {
	db *gorm.DB
}

// OpenAuditDB opens a GORM handle for cfg. The sqlite driver is the pure-Go
// one, so file- and memory-backed databases work without cgo.
func OpenAuditDB(cfg DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "mysql":
		dialector = mysql.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
	return gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// NewGormAuditStore migrates the schema and wraps the handle.
func NewGormAuditStore(db *gorm.DB) (*GormAuditStore, error) {
	if err := db.AutoMigrate(&auditRow{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate audit schema: %w", err)
	}
	return &GormAuditStore{db: db}, nil
}

// Append inserts one row. Rows are never updated or deleted.
func (s *GormAuditStore) Append(ctx context.Context, rec types.AuditRecord) error {
	row := auditRow{
		RecordID:  rec.ID,
		SessionID: rec.SessionID,
		Timestamp: rec.Timestamp,
		Actor:     rec.Actor,
		Phase:     string(rec.Phase),
		Action:    string(rec.Action),
		Field:     rec.Field,
		Target:    string(rec.Target),
		Outcome:   string(rec.Outcome),
		Reason:    rec.Reason,
		Revision:  rec.Revision,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return types.NewError(types.ErrAuditUnavailable, "audit insert failed").WithCause(err).WithRetryable(true)
	}
	return nil
}

// Query returns the session's rows in insertion order.
func (s *GormAuditStore) Query(ctx context.Context, sessionID string) ([]types.AuditRecord, error) {
	var rows []auditRow
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq asc").
		Find(&rows).Error
	if err != nil {
		return nil, types.NewError(types.ErrAuditUnavailable, "audit query failed").WithCause(err).WithRetryable(true)
	}

	out := make([]types.AuditRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.AuditRecord{
			ID:        r.RecordID,
			SessionID: r.SessionID,
			Timestamp: r.Timestamp,
			Actor:     r.Actor,
			Phase:     types.Phase(r.Phase),
			Action:    types.AuditAction(r.Action),
			Field:     r.Field,
			Target:    types.Phase(r.Target),
			Outcome:   types.AuditOutcome(r.Outcome),
			Reason:    r.Reason,
			Revision:  r.Revision,
		})
	}
	return out, nil
}

// Close closes the underlying connection pool.
func (s *GormAuditStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
