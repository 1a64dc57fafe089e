package domain

import invoicedomain "github.com/smallbiznis/invoicepay/internal/invoice/domain"

// Outcome describes what reconciliation did with an event.
type Outcome string

const (
	// OutcomeApplied: the transaction became successful and the invoice paid.
	OutcomeApplied Outcome = "applied"
	// OutcomeAlreadyApplied: the transaction was already successful; nothing changed.
	OutcomeAlreadyApplied Outcome = "already_applied"
	// OutcomeInvoiceClosed: money was captured for an invoice already paid by
	// another attempt or cancelled. The transaction is recorded, the invoice untouched.
	OutcomeInvoiceClosed Outcome = "invoice_closed"
	// OutcomeFailureRecorded: the transaction was marked failed.
	OutcomeFailureRecorded Outcome = "failure_recorded"
	// OutcomeIgnored: a failure arrived for an already successful transaction.
	OutcomeIgnored Outcome = "ignored"
)

// Settlement is the result of applying a payment event.
type Settlement struct {
	Invoice     *invoicedomain.Invoice `json:"invoice"`
	Transaction *PaymentTransaction    `json:"transaction"`
	Outcome     Outcome                `json:"outcome"`
}

// Notify reports whether the caller should send a "payment received" notification.
func (s *Settlement) Notify() bool {
	return s != nil && s.Outcome == OutcomeApplied
}
