// Package dbtest opens isolated in-memory SQLite databases carrying the
// invoicepay schema for storage tests.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

var schema = []string{
	`CREATE TABLE invoices (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		invoice_number TEXT NOT NULL,
		client_name TEXT NOT NULL,
		client_email TEXT NOT NULL DEFAULT '',
		client_phone TEXT NOT NULL DEFAULT '',
		client_address TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		quantity TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		subtotal TEXT NOT NULL,
		tax_rate TEXT NOT NULL,
		tax_amount TEXT NOT NULL,
		discount TEXT NOT NULL,
		total TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_terms TEXT NOT NULL,
		issue_date TIMESTAMP NOT NULL,
		due_date TIMESTAMP NOT NULL,
		paid_date TIMESTAMP,
		gateway_reference TEXT,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_invoices_invoice_number ON invoices(invoice_number)`,
	`CREATE INDEX ix_invoices_gateway_reference ON invoices(gateway_reference)`,
	`CREATE TABLE invoice_line_items (
		id BIGINT PRIMARY KEY,
		invoice_id BIGINT NOT NULL,
		description TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		amount TEXT NOT NULL,
		position INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE payment_transactions (
		id BIGINT PRIMARY KEY,
		invoice_id BIGINT NOT NULL,
		transaction_reference TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		provider TEXT NOT NULL,
		payer_email TEXT NOT NULL DEFAULT '',
		payer_name TEXT NOT NULL DEFAULT '',
		gateway_response TEXT,
		notes TEXT NOT NULL DEFAULT '',
		payment_date TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_payment_transactions_reference ON payment_transactions(transaction_reference)`,
	`CREATE INDEX ix_payment_transactions_invoice_id ON payment_transactions(invoice_id)`,
}

// New returns a database with the schema applied. The pool holds a single
// connection so concurrent transactions queue instead of interleaving.
func New(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

// Count runs a COUNT query and returns the result.
func Count(t *testing.T, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()

	var count int64
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return count
}
