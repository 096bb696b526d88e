package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/licensor/internal/telemetry/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.PluginEvent) error {
	return db.WithContext(ctx).Table("plugin_events").Create(event).Error
}

func (r *repo) ListBySite(ctx context.Context, db *gorm.DB, siteID string, limit int) ([]domain.PluginEvent, error) {
	var events []domain.PluginEvent
	err := db.WithContext(ctx).
		Table("plugin_events").
		Where("site_id = ?", siteID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *repo) DeleteBefore(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(`DELETE FROM plugin_events WHERE created_at < ?`, before)
	return res.RowsAffected, res.Error
}
