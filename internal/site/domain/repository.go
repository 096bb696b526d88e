package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	LockAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) error
	FindBySiteID(ctx context.Context, db *gorm.DB, siteID string) (*SiteActivation, error)
	CountActive(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, error)
	CountActiveExcluding(ctx context.Context, db *gorm.DB, accountID snowflake.ID, siteID string) (int64, error)
	Upsert(ctx context.Context, db *gorm.DB, site *SiteActivation) error
	Deactivate(ctx context.Context, db *gorm.DB, accountID snowflake.ID, siteID string) (bool, error)
	DeactivateAll(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, error)
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]SiteActivation, error)
	Touch(ctx context.Context, db *gorm.DB, siteID string, now time.Time) error
}
