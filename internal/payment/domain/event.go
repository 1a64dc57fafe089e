package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

// Event is a decoded gateway notification: ChargeSuccess, ChargeFailed or
// UnrecognizedEvent.
type Event interface {
	EventType() string
}

// ChargeSuccess reports a captured payment.
type ChargeSuccess struct {
	Reference       string
	Amount          decimal.Decimal
	Currency        string
	PayerEmail      string
	PayerName       string
	PaidAt          *time.Time
	GatewayResponse string
	Raw             []byte
}

func (ChargeSuccess) EventType() string { return EventChargeSuccess }

// ChargeFailed reports a declined or abandoned attempt.
type ChargeFailed struct {
	Reference  string
	Amount     decimal.Decimal
	Currency   string
	PayerEmail string
	Reason     string
	Raw        []byte
}

func (ChargeFailed) EventType() string { return EventChargeFailed }

// UnrecognizedEvent is a well-formed event of a type this service does not handle.
type UnrecognizedEvent struct {
	Type string
}

func (e UnrecognizedEvent) EventType() string { return e.Type }
