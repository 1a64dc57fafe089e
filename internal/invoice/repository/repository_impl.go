package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicepay/internal/invoice/domain"
	"github.com/smallbiznis/invoicepay/pkg/db"
	"gorm.io/gorm"
)

const invoiceColumns = `id, user_id, invoice_number, client_name, client_email, client_phone,
		client_address, description, quantity, unit_price, subtotal, tax_rate, tax_amount,
		discount, total, currency, status, payment_terms, issue_date, due_date, paid_date,
		gateway_reference, notes, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, inv *domain.Invoice) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO invoices (`+invoiceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID,
		inv.UserID,
		inv.InvoiceNumber,
		inv.ClientName,
		inv.ClientEmail,
		inv.ClientPhone,
		inv.ClientAddress,
		inv.Description,
		inv.Quantity,
		inv.UnitPrice,
		inv.Subtotal,
		inv.TaxRate,
		inv.TaxAmount,
		inv.Discount,
		inv.Total,
		inv.Currency,
		inv.Status,
		inv.PaymentTerms,
		inv.IssueDate,
		inv.DueDate,
		inv.PaidDate,
		inv.GatewayReference,
		inv.Notes,
		inv.CreatedAt,
		inv.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, tx *gorm.DB, inv *domain.Invoice) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET client_name = ?, client_email = ?, client_phone = ?, client_address = ?,
		     description = ?, quantity = ?, unit_price = ?, subtotal = ?, tax_rate = ?,
		     tax_amount = ?, discount = ?, total = ?, currency = ?, payment_terms = ?,
		     issue_date = ?, due_date = ?, notes = ?, updated_at = ?
		 WHERE id = ?`,
		inv.ClientName,
		inv.ClientEmail,
		inv.ClientPhone,
		inv.ClientAddress,
		inv.Description,
		inv.Quantity,
		inv.UnitPrice,
		inv.Subtotal,
		inv.TaxRate,
		inv.TaxAmount,
		inv.Discount,
		inv.Total,
		inv.Currency,
		inv.PaymentTerms,
		inv.IssueDate,
		inv.DueDate,
		inv.Notes,
		inv.UpdatedAt,
		inv.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.findOne(ctx, tx, `WHERE id = ?`, false, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.findOne(ctx, tx, `WHERE id = ?`, true, id)
}

func (r *repo) FindByNumber(ctx context.Context, tx *gorm.DB, number string) (*domain.Invoice, error) {
	return r.findOne(ctx, tx, `WHERE invoice_number = ?`, false, number)
}

func (r *repo) FindByGatewayReference(ctx context.Context, tx *gorm.DB, reference string) (*domain.Invoice, error) {
	return r.findOne(ctx, tx, `WHERE gateway_reference = ?`, false, reference)
}

// FindByGatewayReferenceForUpdate resolves the invoice whose latest checkout
// attempt produced reference, locking the row.
func (r *repo) FindByGatewayReferenceForUpdate(ctx context.Context, tx *gorm.DB, reference string) (*domain.Invoice, error) {
	return r.findOne(ctx, tx, `WHERE gateway_reference = ?`, true, reference)
}

func (r *repo) findOne(ctx context.Context, tx *gorm.DB, where string, forUpdate bool, args ...any) (*domain.Invoice, error) {
	var item domain.Invoice
	err := tx.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+`
		 FROM invoices
		 `+where+`
		 LIMIT 1`+db.LockingClause(tx, forUpdate),
		args...,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ReplaceLineItems(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID, items []domain.LineItem) error {
	if err := tx.WithContext(ctx).Exec(
		`DELETE FROM invoice_line_items WHERE invoice_id = ?`,
		invoiceID,
	).Error; err != nil {
		return err
	}
	for _, item := range items {
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO invoice_line_items (
				id, invoice_id, description, quantity, unit_price, amount, position, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID,
			invoiceID,
			item.Description,
			item.Quantity,
			item.UnitPrice,
			item.Amount,
			item.Position,
			item.CreatedAt,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) ListLineItems(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) ([]domain.LineItem, error) {
	var items []domain.LineItem
	err := tx.WithContext(ctx).Raw(
		`SELECT id, invoice_id, description, quantity, unit_price, amount, position, created_at
		 FROM invoice_line_items
		 WHERE invoice_id = ?
		 ORDER BY position ASC, id ASC`,
		invoiceID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateStatus(ctx context.Context, tx *gorm.DB, id snowflake.ID, status domain.Status, updatedAt time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		updatedAt,
		id,
	).Error
}

func (r *repo) MarkPaid(ctx context.Context, tx *gorm.DB, id snowflake.ID, paidDate time.Time, updatedAt time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, paid_date = ?, updated_at = ?
		 WHERE id = ?`,
		domain.StatusPaid,
		paidDate,
		updatedAt,
		id,
	).Error
}

func (r *repo) SetGatewayReference(ctx context.Context, tx *gorm.DB, id snowflake.ID, reference string, updatedAt time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET gateway_reference = ?, updated_at = ?
		 WHERE id = ?`,
		reference,
		updatedAt,
		id,
	).Error
}

// MarkOverdue moves every open invoice whose due date is before today to
// overdue in one statement and returns the number of rows changed.
func (r *repo) MarkOverdue(ctx context.Context, tx *gorm.DB, today time.Time, updatedAt time.Time) (int64, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, updated_at = ?
		 WHERE status IN (?, ?) AND due_date < ?`,
		domain.StatusOverdue,
		updatedAt,
		domain.StatusDraft,
		domain.StatusSent,
		today,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) ListDueForReminder(ctx context.Context, tx *gorm.DB, until time.Time, includeOverdue bool, limit int) ([]domain.Invoice, error) {
	if limit <= 0 {
		limit = 100
	}
	statuses := []domain.Status{domain.StatusDraft, domain.StatusSent}
	if includeOverdue {
		statuses = append(statuses, domain.StatusOverdue)
	}

	var items []domain.Invoice
	err := tx.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+`
		 FROM invoices
		 WHERE status IN ? AND client_email <> '' AND (status = ? OR due_date <= ?)
		 ORDER BY due_date ASC, id ASC
		 LIMIT ?`,
		statuses,
		domain.StatusOverdue,
		until,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) StatusTotals(ctx context.Context, tx *gorm.DB, userID *snowflake.ID) ([]domain.StatusTotal, error) {
	query := tx.WithContext(ctx).
		Table("invoices").
		Select("status, COUNT(1) AS count, COALESCE(SUM(total), 0) AS total").
		Group("status")
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}

	var rows []domain.StatusTotal
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
