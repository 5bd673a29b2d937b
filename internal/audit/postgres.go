package audit

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type auditRow struct {
	ID            string `gorm:"primaryKey;size:36"`
	Operation     string `gorm:"size:64;index;not null"`
	EntityType    string `gorm:"size:32"`
	EntityID      string `gorm:"size:100;index"`
	BusinessID    string `gorm:"size:100;index"`
	UserID        string `gorm:"size:100"`
	CorrelationID string `gorm:"size:100"`
	Success       bool
	ErrorCode     string `gorm:"size:64"`
	ErrorMessage  string `gorm:"type:text"`
	At            time.Time
}

func (auditRow) TableName() string {
	return "payment_audit_log"
}

// PostgresSink appends audit records to postgres through gorm. Retention is
// the compliance pipeline's responsibility; this sink only inserts.
type PostgresSink struct {
	db *gorm.DB
}

// NewPostgresSink migrates the schema and wraps the connection.
func NewPostgresSink(db *gorm.DB) (*PostgresSink, error) {
	if err := db.AutoMigrate(&auditRow{}); err != nil {
		return nil, fmt.Errorf("migrating audit schema: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

func (s *PostgresSink) Write(ctx context.Context, rec Record) error {
	row := auditRow{
		ID:            rec.ID,
		Operation:     rec.Operation,
		EntityType:    rec.EntityType,
		EntityID:      rec.EntityID,
		BusinessID:    rec.BusinessID,
		UserID:        rec.UserID,
		CorrelationID: rec.CorrelationID,
		Success:       rec.Success,
		ErrorCode:     rec.ErrorCode,
		ErrorMessage:  rec.ErrorMessage,
		At:            rec.At,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}
	return nil
}
