package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	InsertTransaction(ctx context.Context, db *gorm.DB, txn *PaymentTransaction) error
	FindTransaction(ctx context.Context, db *gorm.DB, sessionID string) (*PaymentTransaction, error)
	ListOpen(ctx context.Context, db *gorm.DB, createdAfter, createdBefore time.Time, limit int) ([]PaymentTransaction, error)
	// ClaimCompletion moves an open transaction to completed and reports
	// whether this call made the move.
	ClaimCompletion(ctx context.Context, db *gorm.DB, sessionID string, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, sessionID string, now time.Time) (bool, error)
	InsertNotification(ctx context.Context, db *gorm.DB, n *PurchaseNotification) error
	ListNotifications(ctx context.Context, db *gorm.DB, limit int) ([]PurchaseNotification, error)
}
