package domain

import "errors"

var (
	ErrInvoiceNotFound     = errors.New("invoice_not_found")
	ErrInvalidInvoiceID    = errors.New("invalid_invoice_id")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrInvalidTransition   = errors.New("invalid_status_transition")
	ErrPaidRequiresPayment = errors.New("paid_status_requires_payment")
	ErrInvoiceClosed       = errors.New("invoice_closed")
	ErrInvalidClient       = errors.New("invalid_client")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrInvalidTerms        = errors.New("invalid_payment_terms")
	ErrInvalidDueDate      = errors.New("invalid_due_date")
	ErrInvalidLineItem     = errors.New("invalid_line_item")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidAmount       = errors.New("invalid_amount")
)
