package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licensor/internal/usage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectRecord = `SELECT id, account_id, site_id, month, assistant_actions, content_generations,
	chatbot_messages, insights_refreshes, weighted_total, created_at, updated_at FROM usage_records`

var counterColumns = map[string]struct{}{
	"assistant_actions":   {},
	"content_generations": {},
	"chatbot_messages":    {},
	"insights_refreshes":  {},
}

func (r *repo) EnsureRecord(ctx context.Context, db *gorm.DB, id snowflake.ID, key domain.RecordKey, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO usage_records (id, account_id, site_id, month, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (account_id, site_id, month) DO NOTHING`,
		id, key.AccountID, key.SiteID, key.Month, now, now,
	).Error
}

// Increment is a single guarded UPDATE so concurrent callers never lose an
// add and never push the counter past limit.
func (r *repo) Increment(ctx context.Context, db *gorm.DB, key domain.RecordKey, column string, n, limit int64, now time.Time) (bool, error) {
	if _, ok := counterColumns[column]; !ok {
		return false, fmt.Errorf("usage: unknown counter column %q", column)
	}
	stmt := fmt.Sprintf(
		`UPDATE usage_records SET %[1]s = %[1]s + ?, updated_at = ?
		 WHERE account_id = ? AND site_id = ? AND month = ? AND %[1]s + ? <= ?`,
		column,
	)
	res := db.WithContext(ctx).Exec(stmt, n, now, key.AccountID, key.SiteID, key.Month, n, limit)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, key domain.RecordKey) (*domain.UsageRecord, error) {
	var record domain.UsageRecord
	err := db.WithContext(ctx).Raw(
		selectRecord+` WHERE account_id = ? AND site_id = ? AND month = ?`,
		key.AccountID, key.SiteID, key.Month,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) ListByAccountMonth(ctx context.Context, db *gorm.DB, accountID snowflake.ID, month string) ([]domain.UsageRecord, error) {
	var records []domain.UsageRecord
	err := db.WithContext(ctx).Raw(
		selectRecord+` WHERE account_id = ? AND month = ? ORDER BY site_id`,
		accountID, month,
	).Scan(&records).Error
	return records, err
}

func (r *repo) ListByAccountSince(ctx context.Context, db *gorm.DB, accountID snowflake.ID, fromMonth string) ([]domain.UsageRecord, error) {
	var records []domain.UsageRecord
	err := db.WithContext(ctx).Raw(
		selectRecord+` WHERE account_id = ? AND month >= ? ORDER BY month DESC, site_id`,
		accountID, fromMonth,
	).Scan(&records).Error
	return records, err
}
