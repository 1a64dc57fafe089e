package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/invoicepay/internal/invoice/domain"
	"gorm.io/gorm"
)

// Checkout is returned once a pending transaction has been stored.
type Checkout struct {
	CheckoutURL   string          `json:"checkout_url"`
	Reference     string          `json:"reference"`
	InvoiceID     snowflake.ID    `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

// ManualPayment records money collected outside the gateway.
type ManualPayment struct {
	Method    PaymentMethod `json:"payment_method"`
	PayerName string        `json:"payer_name"`
	PaidAt    *time.Time    `json:"paid_at"`
	Notes     string        `json:"notes"`
}

type Service interface {
	ApplySuccess(ctx context.Context, event ChargeSuccess) (*Settlement, error)
	ApplyFailure(ctx context.Context, event ChargeFailed) (*Settlement, error)
	InitializeCheckout(ctx context.Context, invoiceID string, callbackURL string) (*Checkout, error)
	VerifyAndApply(ctx context.Context, reference string) (*Settlement, error)
	InvoiceForReference(ctx context.Context, reference string) (*invoicedomain.Invoice, error)
	RecordManualPayment(ctx context.Context, invoiceID string, payment ManualPayment) (*Settlement, error)
	ListTransactions(ctx context.Context, invoiceID string) ([]PaymentTransaction, error)
}

// Repository persists payment transactions on the handle the caller passes.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, txn *PaymentTransaction) error
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*PaymentTransaction, error)
	FindByReferenceForUpdate(ctx context.Context, db *gorm.DB, reference string) (*PaymentTransaction, error)
	ReferenceExists(ctx context.Context, db *gorm.DB, reference string) (bool, error)
	UpdateSettlement(ctx context.Context, db *gorm.DB, txn *PaymentTransaction) error
	ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]PaymentTransaction, error)
}
