package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licensor/internal/account/domain"
	plandomain "github.com/smallbiznis/licensor/internal/plan/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectAccount = `SELECT id, email, name, license_key, plan, subscription_status,
	subscription_ends_at, billing_cycle, created_at, updated_at FROM accounts`

type accountRow struct {
	ID                 snowflake.ID
	Email              string
	Name               string
	LicenseKey         string
	Plan               string
	SubscriptionStatus string
	SubscriptionEndsAt *time.Time
	BillingCycle       *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (r accountRow) toDomain() *domain.Account {
	account := &domain.Account{
		ID:                 r.ID,
		Email:              r.Email,
		Name:               r.Name,
		LicenseKey:         r.LicenseKey,
		Plan:               plandomain.Tier(r.Plan),
		SubscriptionStatus: domain.SubscriptionStatus(r.SubscriptionStatus),
		SubscriptionEndsAt: utcPtr(r.SubscriptionEndsAt),
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
	if r.BillingCycle != nil && *r.BillingCycle != "" {
		cycle := plandomain.BillingCycle(*r.BillingCycle)
		account.BillingCycle = &cycle
	}
	return account
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	var cycle *string
	if account.BillingCycle != nil {
		value := string(*account.BillingCycle)
		cycle = &value
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO accounts (id, email, name, license_key, plan, subscription_status, subscription_ends_at, billing_cycle, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Email,
		account.Name,
		account.LicenseKey,
		string(account.Plan),
		string(account.SubscriptionStatus),
		account.SubscriptionEndsAt,
		cycle,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Account, error) {
	return r.findOne(ctx, db, selectAccount+` WHERE id = ?`, id)
}

func (r *repo) FindByLicenseKey(ctx context.Context, db *gorm.DB, licenseKey string) (*domain.Account, error) {
	return r.findOne(ctx, db, selectAccount+` WHERE license_key = ?`, licenseKey)
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Account, error) {
	return r.findOne(ctx, db, selectAccount+` WHERE email = ?`, email)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Account, error) {
	var row accountRow
	err := db.WithContext(ctx).Raw(query, args...).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return row.toDomain(), nil
}

func (r *repo) UpdateLicenseKey(ctx context.Context, db *gorm.DB, id snowflake.ID, licenseKey string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE accounts SET license_key = ?, updated_at = ? WHERE id = ?`,
		licenseKey, now, id,
	)
	return res.RowsAffected > 0, res.Error
}

// ApplySubscription writes only the subscription columns so concurrent
// profile edits are never overwritten.
func (r *repo) ApplySubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, update domain.SubscriptionUpdate, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET plan = ?, billing_cycle = ?, subscription_status = ?, subscription_ends_at = ?, updated_at = ?
		 WHERE id = ?`,
		string(update.Plan),
		string(update.BillingCycle),
		string(update.Status),
		update.EndsAt.UTC(),
		now,
		id,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.SubscriptionStatus, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE accounts SET subscription_status = ?, updated_at = ? WHERE id = ?`,
		string(status), now, id,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) UpdateProfile(ctx context.Context, db *gorm.DB, id snowflake.ID, update domain.ProfileUpdate, now time.Time) (bool, error) {
	values := map[string]any{"updated_at": now}
	if update.Name != nil {
		values["name"] = *update.Name
	}
	if update.Email != nil {
		values["email"] = *update.Email
	}
	res := db.WithContext(ctx).Table("accounts").Where("id = ?", id).Updates(values)
	return res.RowsAffected > 0, res.Error
}

// DeleteCascade removes the account and every record it owns. Purchase
// notifications are anonymous and stay.
func (r *repo) DeleteCascade(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	var deleted bool
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range []string{
			`DELETE FROM site_activations WHERE account_id = ?`,
			`DELETE FROM usage_records WHERE account_id = ?`,
			`DELETE FROM plugin_events WHERE account_id = ?`,
			`DELETE FROM payment_transactions WHERE account_id = ?`,
		} {
			if err := tx.Exec(stmt, id).Error; err != nil {
				return err
			}
		}
		res := tx.Exec(`DELETE FROM accounts WHERE id = ?`, id)
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	return deleted, err
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
