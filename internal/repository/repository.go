package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bank-txn-monitor/internal/model"
)

// ErrNotFoundOrClaimed is returned by Claim when no unclaimed transaction
// carries the reference.
var ErrNotFoundOrClaimed = errors.New("transaction not found or already claimed")

// TotalsFilter restricts AggregateTotal. Zero bounds are ignored; set bounds
// are inclusive.
type TotalsFilter struct {
	Start       time.Time
	End         time.Time
	ClaimedOnly bool
}

// Repository persists transactions. Uniqueness of the reference is enforced
// by the unique index, never by a read-then-write check.
type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// InsertIfAbsent stores tx unless a transaction with the same reference
// exists. It reports whether a row was inserted.
func (r *Repository) InsertIfAbsent(ctx context.Context, tx *model.Transaction) (bool, error) {
	if tx.Amount.IsNegative() {
		return false, fmt.Errorf("amount must not be negative: %s", tx.Amount)
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now()
	}
	tx.Timestamp = tx.Timestamp.UTC()

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reference"}},
			DoNothing: true,
		}).
		Create(tx)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert transaction %s: %w", tx.Reference, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Claim marks the unclaimed transaction with the given reference as claimed
// in a single conditional update and returns the updated record.
func (r *Repository) Claim(ctx context.Context, reference string) (*model.Transaction, error) {
	db := r.db.WithContext(ctx)

	result := db.Model(&model.Transaction{}).
		Where("reference = ? AND claimed = ?", reference, false).
		Update("claimed", true)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to claim transaction %s: %w", reference, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFoundOrClaimed
	}

	var tx model.Transaction
	if err := db.Where("reference = ?", reference).First(&tx).Error; err != nil {
		return nil, fmt.Errorf("failed to load claimed transaction %s: %w", reference, err)
	}
	return &tx, nil
}

// ListRecent returns at most limit transactions, newest first
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]model.Transaction, error) {
	var txs []model.Transaction
	result := r.db.WithContext(ctx).Order("recorded_at DESC").Limit(limit).Find(&txs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", result.Error)
	}
	return txs, nil
}

// ListUnclaimed returns all unclaimed transactions, newest first
func (r *Repository) ListUnclaimed(ctx context.Context) ([]model.Transaction, error) {
	var txs []model.Transaction
	result := r.db.WithContext(ctx).Where("claimed = ?", false).Order("recorded_at DESC").Find(&txs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list unclaimed transactions: %w", result.Error)
	}
	return txs, nil
}

// Latest returns the most recent transaction, or nil when there is none
func (r *Repository) Latest(ctx context.Context) (*model.Transaction, error) {
	var tx model.Transaction
	result := r.db.WithContext(ctx).Order("recorded_at DESC").Limit(1).Find(&tx)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get latest transaction: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &tx, nil
}

// AggregateTotal sums the amount of matching transactions
func (r *Repository) AggregateTotal(ctx context.Context, f TotalsFilter) (model.TransactionTotals, error) {
	q := r.db.WithContext(ctx).Model(&model.Transaction{})
	if !f.Start.IsZero() {
		q = q.Where("recorded_at >= ?", f.Start.UTC())
	}
	if !f.End.IsZero() {
		q = q.Where("recorded_at <= ?", f.End.UTC())
	}
	if f.ClaimedOnly {
		q = q.Where("claimed = ?", true)
	}

	var totals model.TransactionTotals
	result := q.Select("COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").Scan(&totals)
	if result.Error != nil {
		return model.TransactionTotals{}, fmt.Errorf("failed to aggregate transactions: %w", result.Error)
	}
	// SQLite sums NUMERIC columns as floating point
	totals.Total = totals.Total.Round(2)
	return totals, nil
}

// Count returns the number of stored transactions
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Transaction{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

// CountUnclaimed returns the number of unclaimed transactions
func (r *Repository) CountUnclaimed(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("claimed = ?", false).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count unclaimed transactions: %w", err)
	}
	return n, nil
}

// ClearAll deletes every transaction and returns how many were removed
func (r *Repository) ClearAll(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.Transaction{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clear transactions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
