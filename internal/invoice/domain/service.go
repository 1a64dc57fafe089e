package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicepay/pkg/db/pagination"
	"gorm.io/gorm"
)

// LineItemInput is a caller-supplied line; the amount is always derived.
type LineItemInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// InvoiceInput carries the editable fields of an invoice.
type InvoiceInput struct {
	UserID        snowflake.ID    `json:"user_id"`
	ClientName    string          `json:"client_name"`
	ClientEmail   string          `json:"client_email"`
	ClientPhone   string          `json:"client_phone"`
	ClientAddress string          `json:"client_address"`
	Description   string          `json:"description"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	Discount      decimal.Decimal `json:"discount"`
	Currency      string          `json:"currency"`
	PaymentTerms  PaymentTerms    `json:"payment_terms"`
	IssueDate     *time.Time      `json:"issue_date"`
	DueDate       *time.Time      `json:"due_date"`
	Notes         string          `json:"notes"`
	LineItems     []LineItemInput `json:"line_items"`
}

type ListInvoiceRequest struct {
	pagination.Pagination
	UserID *snowflake.ID
	Status *Status
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

// Stats summarises a user's invoices.
type Stats struct {
	Counts      map[Status]int64 `json:"counts"`
	Total       int64            `json:"total"`
	Revenue     decimal.Decimal  `json:"revenue"`
	Outstanding decimal.Decimal  `json:"outstanding"`
}

type Service interface {
	Create(ctx context.Context, input InvoiceInput) (*Invoice, error)
	Update(ctx context.Context, id string, input InvoiceInput) (*Invoice, error)
	GetByID(ctx context.Context, id string) (*Invoice, error)
	GetByNumber(ctx context.Context, number string) (*Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	Duplicate(ctx context.Context, id string) (*Invoice, error)
	Stats(ctx context.Context, userID *snowflake.ID) (Stats, error)
	MarkSent(ctx context.Context, id string) (*Invoice, error)
	Cancel(ctx context.Context, id string) (*Invoice, error)
	SetStatus(ctx context.Context, id string, status Status) (*Invoice, error)
	SweepOverdue(ctx context.Context) (int64, error)
	DueForReminder(ctx context.Context, daysBeforeDue int, includeOverdue bool, limit int) ([]Invoice, error)
}

// Repository persists invoices. Every method takes the handle to run on so
// callers decide the transaction scope.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	Update(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByNumber(ctx context.Context, db *gorm.DB, number string) (*Invoice, error)
	FindByGatewayReference(ctx context.Context, db *gorm.DB, reference string) (*Invoice, error)
	FindByGatewayReferenceForUpdate(ctx context.Context, db *gorm.DB, reference string) (*Invoice, error)
	ReplaceLineItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, items []LineItem) error
	ListLineItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]LineItem, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, updatedAt time.Time) error
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidDate time.Time, updatedAt time.Time) error
	SetGatewayReference(ctx context.Context, db *gorm.DB, id snowflake.ID, reference string, updatedAt time.Time) error
	MarkOverdue(ctx context.Context, db *gorm.DB, today time.Time, updatedAt time.Time) (int64, error)
	ListDueForReminder(ctx context.Context, db *gorm.DB, until time.Time, includeOverdue bool, limit int) ([]Invoice, error)
	StatusTotals(ctx context.Context, db *gorm.DB, userID *snowflake.ID) ([]StatusTotal, error)
}

// StatusTotal is one aggregate row of invoices grouped by status.
type StatusTotal struct {
	Status Status
	Count  int64
	Total  decimal.Decimal
}
