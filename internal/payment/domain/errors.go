package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTransactionNotFound  = errors.New("transaction_not_found")
	ErrInvoiceNotPayable    = errors.New("invoice_not_payable")
	ErrPaymentNotSuccessful = errors.New("payment_not_successful")
	ErrInvalidReference     = errors.New("invalid_reference")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidPaymentMethod = errors.New("invalid_payment_method")
	ErrReferenceExhausted   = errors.New("reference_exhausted")

	ErrGatewayNotConfigured = errors.New("gateway_not_configured")
	ErrGatewayNetwork       = errors.New("gateway_network_error")
	ErrGatewayRejected      = errors.New("gateway_rejected")
)

// GatewayError is a failed call to the payment provider. Kind is
// ErrGatewayNetwork or ErrGatewayRejected.
type GatewayError struct {
	Kind       error
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %v (status %d): %s", e.Operation, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %v: %s", e.Operation, e.Kind, msg)
}

func (e *GatewayError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ProviderMessage returns the message suitable for showing to the caller.
func (e *GatewayError) ProviderMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if errors.Is(e.Kind, ErrGatewayNetwork) {
		return "payment provider unreachable"
	}
	return "payment provider rejected the request"
}
