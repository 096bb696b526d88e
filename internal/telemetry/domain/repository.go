package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *PluginEvent) error
	ListBySite(ctx context.Context, db *gorm.DB, siteID string, limit int) ([]PluginEvent, error)
	DeleteBefore(ctx context.Context, db *gorm.DB, before time.Time) (int64, error)
}
