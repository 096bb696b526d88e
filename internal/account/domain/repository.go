package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *Account) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Account, error)
	FindByLicenseKey(ctx context.Context, db *gorm.DB, licenseKey string) (*Account, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*Account, error)
	UpdateLicenseKey(ctx context.Context, db *gorm.DB, id snowflake.ID, licenseKey string, now time.Time) (bool, error)
	ApplySubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, update SubscriptionUpdate, now time.Time) (bool, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status SubscriptionStatus, now time.Time) (bool, error)
	UpdateProfile(ctx context.Context, db *gorm.DB, id snowflake.ID, update ProfileUpdate, now time.Time) (bool, error)
	DeleteCascade(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}
