package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type RecordKey struct {
	AccountID snowflake.ID
	SiteID    string
	Month     string
}

type Repository interface {
	EnsureRecord(ctx context.Context, db *gorm.DB, id snowflake.ID, key RecordKey, now time.Time) error
	// Increment adds n to column only while the result stays within limit.
	// It reports false when the guard rejected the write.
	Increment(ctx context.Context, db *gorm.DB, key RecordKey, column string, n, limit int64, now time.Time) (bool, error)
	Find(ctx context.Context, db *gorm.DB, key RecordKey) (*UsageRecord, error)
	ListByAccountMonth(ctx context.Context, db *gorm.DB, accountID snowflake.ID, month string) ([]UsageRecord, error)
	ListByAccountSince(ctx context.Context, db *gorm.DB, accountID snowflake.ID, fromMonth string) ([]UsageRecord, error)
}
