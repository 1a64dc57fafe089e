// Package domain contains payment transaction models and the reconciliation contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TransactionStatus represents the lifecycle of one payment attempt.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusSuccessful TransactionStatus = "successful"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusCancelled  TransactionStatus = "cancelled"
)

// PaymentMethod identifies how the money was collected.
type PaymentMethod string

const (
	PaymentMethodGateway      PaymentMethod = "paystack"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodOther        PaymentMethod = "other"
)

// Manual reports whether the method is recorded by hand rather than by the gateway.
func (m PaymentMethod) Manual() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodOther:
		return true
	default:
		return false
	}
}

const ProviderPaystack = "paystack"

// PaymentTransaction is one attempt to collect payment for an invoice. The
// transaction reference is the idempotency key for reconciliation.
type PaymentTransaction struct {
	ID                   snowflake.ID      `json:"id" gorm:"primaryKey"`
	InvoiceID            snowflake.ID      `json:"invoice_id" gorm:"not null;index"`
	TransactionReference string            `json:"transaction_reference" gorm:"type:text;not null;uniqueIndex"`
	Amount               decimal.Decimal   `json:"amount" gorm:"type:numeric(12,2);not null"`
	Currency             string            `json:"currency" gorm:"type:text;not null"`
	Status               TransactionStatus `json:"status" gorm:"type:text;not null"`
	PaymentMethod        PaymentMethod     `json:"payment_method" gorm:"type:text;not null"`
	Provider             string            `json:"provider" gorm:"type:text;not null"`
	PayerEmail           string            `json:"payer_email" gorm:"type:text"`
	PayerName            string            `json:"payer_name" gorm:"type:text"`
	GatewayResponse      datatypes.JSON    `json:"gateway_response,omitempty" gorm:"type:jsonb"`
	Notes                string            `json:"notes" gorm:"type:text"`
	PaymentDate          *time.Time        `json:"payment_date,omitempty"`
	CreatedAt            time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time         `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (PaymentTransaction) TableName() string { return "payment_transactions" }
