package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/licensor/internal/plan/domain"
	"github.com/smallbiznis/licensor/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type transactionRow struct {
	ID            snowflake.ID
	SessionID     string
	AccountID     snowflake.ID
	Plan          string
	BillingCycle  string
	Amount        int64
	Currency      string
	PaymentStatus string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

func (row transactionRow) toDomain() domain.PaymentTransaction {
	txn := domain.PaymentTransaction{
		ID:            row.ID,
		SessionID:     row.SessionID,
		AccountID:     row.AccountID,
		Plan:          plandomain.Tier(row.Plan),
		BillingCycle:  plandomain.BillingCycle(row.BillingCycle),
		Amount:        row.Amount,
		Currency:      row.Currency,
		PaymentStatus: domain.PaymentStatus(row.PaymentStatus),
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
	if row.CompletedAt != nil {
		t := row.CompletedAt.UTC()
		txn.CompletedAt = &t
	}
	return txn
}

type notificationRow struct {
	ID           snowflake.ID
	SessionID    *string
	UserName     string
	Plan         string
	BillingCycle string
	Country      *string
	IsReal       bool
	CreatedAt    time.Time
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, txn *domain.PaymentTransaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_transactions
			(id, session_id, account_id, plan, billing_cycle, amount, currency, payment_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id) DO NOTHING`,
		txn.ID,
		txn.SessionID,
		txn.AccountID,
		string(txn.Plan),
		string(txn.BillingCycle),
		txn.Amount,
		txn.Currency,
		string(txn.PaymentStatus),
		txn.CreatedAt,
		txn.UpdatedAt,
	).Error
}

func (r *repo) FindTransaction(ctx context.Context, db *gorm.DB, sessionID string) (*domain.PaymentTransaction, error) {
	var row transactionRow
	err := db.WithContext(ctx).Raw(
		`SELECT id, session_id, account_id, plan, billing_cycle, amount, currency, payment_status,
			created_at, updated_at, completed_at
		 FROM payment_transactions WHERE session_id = ?`,
		sessionID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	txn := row.toDomain()
	return &txn, nil
}

// ListOpen returns initiated or paid transactions created inside
// [createdAfter, createdBefore), oldest first.
func (r *repo) ListOpen(ctx context.Context, db *gorm.DB, createdAfter, createdBefore time.Time, limit int) ([]domain.PaymentTransaction, error) {
	var rows []transactionRow
	err := db.WithContext(ctx).Raw(
		`SELECT id, session_id, account_id, plan, billing_cycle, amount, currency, payment_status,
			created_at, updated_at, completed_at
		 FROM payment_transactions
		 WHERE payment_status IN (?, ?) AND created_at >= ? AND created_at < ?
		 ORDER BY created_at ASC LIMIT ?`,
		string(domain.PaymentInitiated), string(domain.PaymentPaid),
		createdAfter, createdBefore, limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.PaymentTransaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// ClaimCompletion is the idempotency guard: of any number of concurrent
// callers, exactly one sees a row affected.
func (r *repo) ClaimCompletion(ctx context.Context, db *gorm.DB, sessionID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_transactions
		 SET payment_status = ?, completed_at = ?, updated_at = ?
		 WHERE session_id = ? AND payment_status IN (?, ?)`,
		string(domain.PaymentCompleted), now, now,
		sessionID, string(domain.PaymentInitiated), string(domain.PaymentPaid),
	)
	return res.RowsAffected == 1, res.Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, sessionID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_transactions
		 SET payment_status = ?, updated_at = ?
		 WHERE session_id = ? AND payment_status IN (?, ?)`,
		string(domain.PaymentFailed), now,
		sessionID, string(domain.PaymentInitiated), string(domain.PaymentPaid),
	)
	return res.RowsAffected == 1, res.Error
}

func (r *repo) InsertNotification(ctx context.Context, db *gorm.DB, n *domain.PurchaseNotification) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO purchase_notifications (id, session_id, user_name, plan, billing_cycle, country, is_real, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id) DO NOTHING`,
		n.ID,
		n.SessionID,
		n.UserName,
		string(n.Plan),
		string(n.BillingCycle),
		n.Country,
		n.IsReal,
		n.CreatedAt,
	).Error
}

func (r *repo) ListNotifications(ctx context.Context, db *gorm.DB, limit int) ([]domain.PurchaseNotification, error) {
	var rows []notificationRow
	err := db.WithContext(ctx).Raw(
		`SELECT id, session_id, user_name, plan, billing_cycle, country, is_real, created_at
		 FROM purchase_notifications WHERE is_real = ? ORDER BY created_at DESC LIMIT ?`,
		true, limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.PurchaseNotification, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.PurchaseNotification{
			ID:           row.ID,
			SessionID:    row.SessionID,
			UserName:     row.UserName,
			Plan:         plandomain.Tier(row.Plan),
			BillingCycle: plandomain.BillingCycle(row.BillingCycle),
			Country:      row.Country,
			IsReal:       row.IsReal,
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return out, nil
}
