package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licensor/internal/site/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectSite = `SELECT id, account_id, site_id, site_url, plugin_version, wordpress_version,
	woocommerce_version, activated_at, last_seen_at, is_active FROM site_activations`

type siteRow struct {
	ID                 snowflake.ID
	AccountID          snowflake.ID
	SiteID             string
	SiteURL            string
	PluginVersion      string
	WordpressVersion   *string
	WoocommerceVersion *string
	ActivatedAt        time.Time
	LastSeenAt         time.Time
	IsActive           bool
}

func (r siteRow) toDomain() domain.SiteActivation {
	return domain.SiteActivation{
		ID:                 r.ID,
		AccountID:          r.AccountID,
		SiteID:             r.SiteID,
		SiteURL:            r.SiteURL,
		PluginVersion:      r.PluginVersion,
		WordPressVersion:   r.WordpressVersion,
		WooCommerceVersion: r.WoocommerceVersion,
		ActivatedAt:        r.ActivatedAt.UTC(),
		LastSeenAt:         r.LastSeenAt.UTC(),
		IsActive:           r.IsActive,
	}
}

// LockAccount serializes admissions for one account. The no-op update takes
// a row lock on postgres; sqlite runs a single writer anyway.
func (r *repo) LockAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts SET updated_at = updated_at WHERE id = ?`,
		accountID,
	).Error
}

func (r *repo) FindBySiteID(ctx context.Context, db *gorm.DB, siteID string) (*domain.SiteActivation, error) {
	var row siteRow
	err := db.WithContext(ctx).Raw(selectSite+` WHERE site_id = ?`, siteID).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	site := row.toDomain()
	return &site, nil
}

func (r *repo) CountActive(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM site_activations WHERE account_id = ? AND is_active = ?`,
		accountID, true,
	).Scan(&count).Error
	return count, err
}

func (r *repo) CountActiveExcluding(ctx context.Context, db *gorm.DB, accountID snowflake.ID, siteID string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM site_activations WHERE account_id = ? AND is_active = ? AND site_id <> ?`,
		accountID, true, siteID,
	).Scan(&count).Error
	return count, err
}

// Upsert claims the site for the account. activated_at survives only when the
// existing row was already an active slot of the same account.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, site *domain.SiteActivation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO site_activations
			(id, account_id, site_id, site_url, plugin_version, wordpress_version, woocommerce_version, activated_at, last_seen_at, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (site_id) DO UPDATE SET
			activated_at = CASE
				WHEN site_activations.is_active = ? AND site_activations.account_id = excluded.account_id
				THEN site_activations.activated_at
				ELSE excluded.activated_at
			END,
			account_id = excluded.account_id,
			site_url = excluded.site_url,
			plugin_version = excluded.plugin_version,
			wordpress_version = excluded.wordpress_version,
			woocommerce_version = excluded.woocommerce_version,
			last_seen_at = excluded.last_seen_at,
			is_active = excluded.is_active`,
		site.ID,
		site.AccountID,
		site.SiteID,
		site.SiteURL,
		site.PluginVersion,
		site.WordPressVersion,
		site.WooCommerceVersion,
		site.ActivatedAt,
		site.LastSeenAt,
		site.IsActive,
		true,
	).Error
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, accountID snowflake.ID, siteID string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE site_activations SET is_active = ? WHERE account_id = ? AND site_id = ?`,
		false, accountID, siteID,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) DeactivateAll(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE site_activations SET is_active = ? WHERE account_id = ? AND is_active = ?`,
		false, accountID, true,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]domain.SiteActivation, error) {
	var rows []siteRow
	err := db.WithContext(ctx).Raw(
		selectSite+` WHERE account_id = ? ORDER BY is_active DESC, last_seen_at DESC`,
		accountID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	sites := make([]domain.SiteActivation, 0, len(rows))
	for _, row := range rows {
		sites = append(sites, row.toDomain())
	}
	return sites, nil
}

func (r *repo) Touch(ctx context.Context, db *gorm.DB, siteID string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE site_activations SET last_seen_at = ? WHERE site_id = ? AND is_active = ?`,
		now, siteID, true,
	).Error
}
