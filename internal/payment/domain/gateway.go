package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// InitializeRequest starts a hosted checkout. Amount is in minor units.
type InitializeRequest struct {
	Reference   string
	AmountMinor int64
	Email       string
	Currency    string
	CallbackURL string
	Metadata    map[string]any
}

type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
	Raw              []byte
}

// Verification is the gateway's view of a transaction, with the amount in major units.
type Verification struct {
	Reference       string
	Status          string
	Amount          decimal.Decimal
	Currency        string
	PaidAt          *time.Time
	CustomerEmail   string
	CustomerName    string
	GatewayResponse string
	Raw             []byte
}

// Succeeded reports whether the gateway considers the charge captured.
func (v *Verification) Succeeded() bool {
	return v != nil && v.Status == "success"
}

// Gateway is the outbound payment provider API.
type Gateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*Verification, error)
}
