// Package dbtest opens migrated in-memory databases for package tests.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/licensor/internal/migration"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var seq atomic.Int64

// Open returns a fresh sqlite database with the full schema applied.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Discard,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.ApplySQLite(conn); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return conn
}

// Node returns a snowflake node for generating ids in tests.
func Node(t testing.TB, n int64) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(n)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

// SeedAccount inserts an account row directly, bypassing services.
func SeedAccount(t testing.TB, db *gorm.DB, id snowflake.ID, licenseKey, plan string) {
	t.Helper()
	now := time.Now().UTC()
	err := db.Exec(
		`INSERT INTO accounts (id, email, name, license_key, plan, subscription_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, fmt.Sprintf("user%d@example.com", id), "Test User", licenseKey, plan, "active", now, now,
	).Error
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
}
