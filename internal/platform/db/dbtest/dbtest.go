// Package dbtest は実DBを使う統合テストの共通セットアップ。
// SIMS_TEST_DSN が未設定ならテストはスキップされる。DSNには
// parseTime=true と multiStatements=true を含めること。
package dbtest

import (
	"database/sql"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"

	"SIMS-backend/internal/platform/db"
)

var seq atomic.Uint64

// Open はテスト用DBへ接続し、マイグレーションを適用して返す。
func Open(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("SIMS_TEST_DSN")
	if dsn == "" {
		t.Skip("SIMS_TEST_DSN not set; skipping DB integration test")
	}

	cfg, err := mysqldrv.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("invalid SIMS_TEST_DSN: %v", err)
	}

	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := conn.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := db.Migrate(conn, cfg.DBName); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

// UniqueCode はテスト間で衝突しない短い識別子を作る。
func UniqueCode(prefix string) string {
	return fmt.Sprintf("%s%d%d", prefix, time.Now().UnixNano()%1_000_000, seq.Add(1))
}
