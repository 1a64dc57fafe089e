package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicepay/internal/payment/domain"
	"github.com/smallbiznis/invoicepay/pkg/db"
	"gorm.io/gorm"
)

const transactionColumns = `id, invoice_id, transaction_reference, amount, currency, status,
		payment_method, provider, payer_email, payer_name, gateway_response, notes,
		payment_date, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, txn *domain.PaymentTransaction) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO payment_transactions (`+transactionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.InvoiceID,
		txn.TransactionReference,
		txn.Amount,
		txn.Currency,
		txn.Status,
		txn.PaymentMethod,
		txn.Provider,
		txn.PayerEmail,
		txn.PayerName,
		txn.GatewayResponse,
		txn.Notes,
		txn.PaymentDate,
		txn.CreatedAt,
		txn.UpdatedAt,
	).Error
}

func (r *repo) FindByReference(ctx context.Context, tx *gorm.DB, reference string) (*domain.PaymentTransaction, error) {
	return r.findByReference(ctx, tx, reference, false)
}

// FindByReferenceForUpdate locks the transaction row until the surrounding
// database transaction ends.
func (r *repo) FindByReferenceForUpdate(ctx context.Context, tx *gorm.DB, reference string) (*domain.PaymentTransaction, error) {
	return r.findByReference(ctx, tx, reference, true)
}

func (r *repo) findByReference(ctx context.Context, tx *gorm.DB, reference string, forUpdate bool) (*domain.PaymentTransaction, error) {
	var item domain.PaymentTransaction
	err := tx.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+`
		 FROM payment_transactions
		 WHERE transaction_reference = ?
		 LIMIT 1`+db.LockingClause(tx, forUpdate),
		reference,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ReferenceExists(ctx context.Context, tx *gorm.DB, reference string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM payment_transactions
		 WHERE transaction_reference = ?`,
		reference,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) UpdateSettlement(ctx context.Context, tx *gorm.DB, txn *domain.PaymentTransaction) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE payment_transactions
		 SET status = ?, payer_email = ?, payer_name = ?, gateway_response = ?, notes = ?,
		     payment_date = ?, updated_at = ?
		 WHERE id = ?`,
		txn.Status,
		txn.PayerEmail,
		txn.PayerName,
		txn.GatewayResponse,
		txn.Notes,
		txn.PaymentDate,
		txn.UpdatedAt,
		txn.ID,
	).Error
}

func (r *repo) ListByInvoice(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) ([]domain.PaymentTransaction, error) {
	var items []domain.PaymentTransaction
	err := tx.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+`
		 FROM payment_transactions
		 WHERE invoice_id = ?
		 ORDER BY created_at DESC, id DESC`,
		invoiceID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
