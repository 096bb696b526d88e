package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/licensor/internal/account/domain"
	"github.com/smallbiznis/licensor/internal/account/repository"
	"github.com/smallbiznis/licensor/internal/clock"
	"github.com/smallbiznis/licensor/internal/dbtest"
	plandomain "github.com/smallbiznis/licensor/internal/plan/domain"
	siterepo "github.com/smallbiznis/licensor/internal/site/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	svc := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)),
		GenID:    dbtest.Node(t, 1),
		Repo:     repository.Provide(),
		SiteRepo: siterepo.Provide(),
	}).(*Service)
	return svc, db
}

func TestNewLicenseKeyShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		key, err := newLicenseKey()
		require.NoError(t, err)
		assert.Len(t, key, 19)
		assert.True(t, validLicenseKeyShape(key), key)
		seen[key] = true
	}
	assert.Len(t, seen, 200)

	assert.False(t, validLicenseKeyShape("WASM-abcd-EFGH-1234"))
	assert.False(t, validLicenseKeyShape("KEY-ABCD-EFGH-1234"))
	assert.False(t, validLicenseKeyShape("WASM-ABCD-EFGH"))
}

func TestCreateStartsOnFreePlan(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	account, err := svc.Create(ctx, domain.CreateAccountRequest{Email: " Jane@Example.com ", Name: "Jane Doe"})
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", account.Email)
	assert.Equal(t, plandomain.TierFree, account.Plan)
	assert.Equal(t, domain.StatusActive, account.SubscriptionStatus)
	assert.Nil(t, account.BillingCycle)

	found, err := svc.GetByLicenseKey(ctx, account.LicenseKey)
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)

	_, err = svc.Create(ctx, domain.CreateAccountRequest{Email: "jane@example.com", Name: "Other"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	_, err = svc.Create(ctx, domain.CreateAccountRequest{Email: "not-an-email", Name: "X"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)
}

func TestGetByLicenseKeyUnknown(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetByLicenseKey(context.Background(), "WASM-ZZZZ-ZZZZ-ZZZZ")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.GetByLicenseKey(context.Background(), "garbage")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegenerateLicenseReleasesSites(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	account, err := svc.Create(ctx, domain.CreateAccountRequest{Email: "pro@example.com", Name: "Pro User"})
	require.NoError(t, err)
	now := time.Now().UTC()
	for i, siteID := range []string{"site-a", "site-b"} {
		require.NoError(t, db.Exec(
			`INSERT INTO site_activations (id, account_id, site_id, activated_at, last_seen_at, is_active) VALUES (?, ?, ?, ?, ?, ?)`,
			int64(i+1), account.ID, siteID, now, now, true,
		).Error)
	}

	res, err := svc.RegenerateLicense(ctx, account.ID)
	require.NoError(t, err)
	assert.NotEqual(t, account.LicenseKey, res.LicenseKey)
	assert.Equal(t, int64(2), res.SitesDeactivated)

	_, err = svc.GetByLicenseKey(ctx, account.LicenseKey)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	current, err := svc.GetByLicenseKey(ctx, res.LicenseKey)
	require.NoError(t, err)
	assert.Equal(t, account.ID, current.ID)

	active, err := siterepo.Provide().CountActive(ctx, db, account.ID)
	require.NoError(t, err)
	assert.Zero(t, active)
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, domain.CreateAccountRequest{Email: "a@example.com", Name: "A"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.CreateAccountRequest{Email: "b@example.com", Name: "B"})
	require.NoError(t, err)

	name := "Alice"
	updated, err := svc.UpdateProfile(ctx, a.ID, domain.UpdateProfileRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.Name)
	assert.Equal(t, a.LicenseKey, updated.LicenseKey)

	taken := "b@example.com"
	_, err = svc.UpdateProfile(ctx, a.ID, domain.UpdateProfileRequest{Email: &taken})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestDeleteCascades(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	account, err := svc.Create(ctx, domain.CreateAccountRequest{Email: "gone@example.com", Name: "Gone"})
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, db.Exec(
		`INSERT INTO site_activations (id, account_id, site_id, activated_at, last_seen_at, is_active) VALUES (1, ?, 'site-a', ?, ?, ?)`,
		account.ID, now, now, true,
	).Error)
	require.NoError(t, db.Exec(
		`INSERT INTO usage_records (id, account_id, site_id, month, assistant_actions, created_at, updated_at) VALUES (1, ?, 'site-a', '2025-03', 4, ?, ?)`,
		account.ID, now, now,
	).Error)

	require.NoError(t, svc.Delete(ctx, account.ID))
	assert.ErrorIs(t, svc.Delete(ctx, account.ID), domain.ErrNotFound)

	for _, table := range []string{"accounts", "site_activations", "usage_records"} {
		var n int64
		require.NoError(t, db.Raw("SELECT COUNT(*) FROM "+table).Scan(&n).Error)
		if n != 0 {
			t.Fatalf("expected %s to be empty, got %d rows", table, n)
		}
	}
}
