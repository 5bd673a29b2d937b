package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/eabugauch/zenithpay-escrow/internal/domain"
)

// escrowRow is the gorm mapping of an escrow transaction. Amounts are in
// minor currency units.
type escrowRow struct {
	ID                  uint   `gorm:"primaryKey"`
	IntentID            string `gorm:"size:100;uniqueIndex;not null"`
	BusinessID          string `gorm:"size:100;index;not null"`
	CustomerID          string `gorm:"size:100"`
	AmountCents         int64  `gorm:"not null"`
	PlatformFeeCents    int64
	BusinessPayoutCents int64
	PlatformFeePercent  float64
	CapturedCents       int64
	RefundedCents       int64
	Status              string `gorm:"size:32;index;not null"`
	ScheduledReleaseAt  *time.Time
	ReleasedAt          *time.Time
	DisputedAt          *time.Time
	History             string `gorm:"type:text"`
	Metadata            string `gorm:"type:text"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (escrowRow) TableName() string {
	return "escrow_transactions"
}

// PostgresRepository backs the escrow ledger with postgres through gorm.
type PostgresRepository struct {
	db *gorm.DB
}

// NewPostgresRepository migrates the schema and wraps the connection.
func NewPostgresRepository(db *gorm.DB) (*PostgresRepository, error) {
	if err := db.AutoMigrate(&escrowRow{}); err != nil {
		return nil, fmt.Errorf("migrating escrow schema: %w", err)
	}
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Get(ctx context.Context, intentID string) (*domain.EscrowTransaction, error) {
	var row escrowRow
	err := r.db.WithContext(ctx).Where("intent_id = ?", intentID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading escrow transaction: %w", err)
	}
	return rowToTransaction(&row)
}

func (r *PostgresRepository) Create(ctx context.Context, tx *domain.EscrowTransaction) error {
	row, err := transactionToRow(tx)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("creating escrow transaction: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, tx *domain.EscrowTransaction) error {
	row, err := transactionToRow(tx)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Model(&escrowRow{}).
		Where("intent_id = ?", tx.IntentID).
		Updates(map[string]any{
			"platform_fee_cents":    row.PlatformFeeCents,
			"business_payout_cents": row.BusinessPayoutCents,
			"captured_cents":        row.CapturedCents,
			"refunded_cents":        row.RefundedCents,
			"status":                row.Status,
			"scheduled_release_at":  row.ScheduledReleaseAt,
			"released_at":           row.ReleasedAt,
			"disputed_at":           row.DisputedAt,
			"history":               row.History,
			"metadata":              row.Metadata,
		})
	if result.Error != nil {
		return fmt.Errorf("updating escrow transaction: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, status domain.EscrowStatus) ([]*domain.EscrowTransaction, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", string(status))
	}
	var rows []escrowRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing escrow transactions: %w", err)
	}
	return rowsToTransactions(rows)
}

func (r *PostgresRepository) ListDueReleases(ctx context.Context, now time.Time) ([]*domain.EscrowTransaction, error) {
	var rows []escrowRow
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_release_at <= ?", string(domain.EscrowScheduledRelease), now).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing due releases: %w", err)
	}
	return rowsToTransactions(rows)
}

func rowsToTransactions(rows []escrowRow) ([]*domain.EscrowTransaction, error) {
	result := make([]*domain.EscrowTransaction, 0, len(rows))
	for i := range rows {
		tx, err := rowToTransaction(&rows[i])
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, nil
}

func rowToTransaction(row *escrowRow) (*domain.EscrowTransaction, error) {
	tx := &domain.EscrowTransaction{
		IntentID:            row.IntentID,
		BusinessID:          row.BusinessID,
		CustomerID:          row.CustomerID,
		AmountCents:         row.AmountCents,
		PlatformFeeCents:    row.PlatformFeeCents,
		BusinessPayoutCents: row.BusinessPayoutCents,
		PlatformFeePercent:  row.PlatformFeePercent,
		CapturedCents:       row.CapturedCents,
		RefundedCents:       row.RefundedCents,
		Status:              domain.EscrowStatus(row.Status),
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
		ScheduledReleaseAt:  row.ScheduledReleaseAt,
		ReleasedAt:          row.ReleasedAt,
		DisputedAt:          row.DisputedAt,
	}
	if row.History != "" {
		if err := json.Unmarshal([]byte(row.History), &tx.History); err != nil {
			return nil, fmt.Errorf("decoding escrow history: %w", err)
		}
	}
	if row.Metadata != "" {
		if err := json.Unmarshal([]byte(row.Metadata), &tx.Metadata); err != nil {
			return nil, fmt.Errorf("decoding escrow metadata: %w", err)
		}
	}
	return tx, nil
}

func transactionToRow(tx *domain.EscrowTransaction) (*escrowRow, error) {
	history, err := json.Marshal(tx.History)
	if err != nil {
		return nil, fmt.Errorf("encoding escrow history: %w", err)
	}
	metadata := ""
	if tx.Metadata != nil {
		data, err := json.Marshal(tx.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encoding escrow metadata: %w", err)
		}
		metadata = string(data)
	}
	return &escrowRow{
		IntentID:            tx.IntentID,
		BusinessID:          tx.BusinessID,
		CustomerID:          tx.CustomerID,
		AmountCents:         tx.AmountCents,
		PlatformFeeCents:    tx.PlatformFeeCents,
		BusinessPayoutCents: tx.BusinessPayoutCents,
		PlatformFeePercent:  tx.PlatformFeePercent,
		CapturedCents:       tx.CapturedCents,
		RefundedCents:       tx.RefundedCents,
		Status:              string(tx.Status),
		ScheduledReleaseAt:  tx.ScheduledReleaseAt,
		ReleasedAt:          tx.ReleasedAt,
		DisputedAt:          tx.DisputedAt,
		History:             string(history),
		Metadata:            metadata,
		CreatedAt:           tx.CreatedAt,
		UpdatedAt:           tx.UpdatedAt,
	}, nil
}
