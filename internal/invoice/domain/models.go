// Package domain contains persistence models and lifecycle rules for invoicing.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice is the billable document. Monetary fields are derived by the money
// calculator on every write and never accepted from callers.
type Invoice struct {
	ID               snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID           snowflake.ID    `json:"user_id" gorm:"not null;index"`
	InvoiceNumber    string          `json:"invoice_number" gorm:"type:text;not null;uniqueIndex"`
	ClientName       string          `json:"client_name" gorm:"type:text;not null"`
	ClientEmail      string          `json:"client_email" gorm:"type:text"`
	ClientPhone      string          `json:"client_phone" gorm:"type:text"`
	ClientAddress    string          `json:"client_address" gorm:"type:text"`
	Description      string          `json:"description" gorm:"type:text"`
	Quantity         decimal.Decimal `json:"quantity" gorm:"type:numeric(12,2);not null"`
	UnitPrice        decimal.Decimal `json:"unit_price" gorm:"type:numeric(12,2);not null"`
	Subtotal         decimal.Decimal `json:"subtotal" gorm:"type:numeric(12,2);not null"`
	TaxRate          decimal.Decimal `json:"tax_rate" gorm:"type:numeric(5,2);not null"`
	TaxAmount        decimal.Decimal `json:"tax_amount" gorm:"type:numeric(12,2);not null"`
	Discount         decimal.Decimal `json:"discount" gorm:"type:numeric(12,2);not null"`
	Total            decimal.Decimal `json:"total" gorm:"type:numeric(12,2);not null"`
	Currency         string          `json:"currency" gorm:"type:text;not null"`
	Status           Status          `json:"status" gorm:"type:text;not null;default:'draft'"`
	PaymentTerms     PaymentTerms    `json:"payment_terms" gorm:"type:text;not null"`
	IssueDate        time.Time       `json:"issue_date" gorm:"not null"`
	DueDate          time.Time       `json:"due_date" gorm:"not null"`
	PaidDate         *time.Time      `json:"paid_date,omitempty"`
	GatewayReference *string         `json:"gateway_reference,omitempty" gorm:"type:text;index"`
	Notes            string          `json:"notes" gorm:"type:text"`
	CreatedAt        time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"not null"`

	LineItems []LineItem `json:"line_items" gorm:"-"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// LineItem is one itemized row. Items are replaced wholesale on every edit.
type LineItem struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	InvoiceID   snowflake.ID    `json:"invoice_id" gorm:"not null;index"`
	Description string          `json:"description" gorm:"type:text;not null"`
	Quantity    decimal.Decimal `json:"quantity" gorm:"type:numeric(12,2);not null"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:numeric(12,2);not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	Position    int             `json:"position" gorm:"not null"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (LineItem) TableName() string { return "invoice_line_items" }

// HasGatewayReference reports whether a checkout was initialized for the invoice.
func (i *Invoice) HasGatewayReference() bool {
	return i != nil && i.GatewayReference != nil && strings.TrimSpace(*i.GatewayReference) != ""
}

// PaymentTerms controls the default due date.
type PaymentTerms string

const (
	TermsImmediate PaymentTerms = "immediate"
	TermsNet15     PaymentTerms = "net_15"
	TermsNet30     PaymentTerms = "net_30"
	TermsNet60     PaymentTerms = "net_60"
	TermsNet90     PaymentTerms = "net_90"
)

// Days returns the number of days between issue and due date.
func (t PaymentTerms) Days() int {
	switch t {
	case TermsNet15:
		return 15
	case TermsNet30:
		return 30
	case TermsNet60:
		return 60
	case TermsNet90:
		return 90
	default:
		return 0
	}
}

func (t PaymentTerms) Valid() bool {
	switch t {
	case TermsImmediate, TermsNet15, TermsNet30, TermsNet60, TermsNet90:
		return true
	default:
		return false
	}
}

// DueDateFor computes the default due date for an issue date.
func (t PaymentTerms) DueDateFor(issue time.Time) time.Time {
	return issue.AddDate(0, 0, t.Days())
}

// NewInvoiceNumber generates the human-readable identifier assigned once at creation.
func NewInvoiceNumber() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "INV-" + strings.ToUpper(id[:8])
}
