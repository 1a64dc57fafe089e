package webhook

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/invoicepay/internal/money"
	paymentdomain "github.com/smallbiznis/invoicepay/internal/payment/domain"
)

var (
	ErrMalformedPayload = errors.New("malformed_payload")
	ErrMissingReference = errors.New("missing_reference")
)

type payload struct {
	Event string      `json:"event"`
	Data  payloadData `json:"data"`
}

type payloadData struct {
	Reference       string          `json:"reference"`
	Amount          json.Number     `json:"amount"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	PaidAt          string          `json:"paid_at"`
	GatewayResponse string          `json:"gateway_response"`
	Message         string          `json:"message"`
	Customer        payloadCustomer `json:"customer"`
}

type payloadCustomer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// DecodeEvent parses a verified body once into a typed event. Amounts arrive
// in minor units and are returned in major units.
func DecodeEvent(raw []byte) (paymentdomain.Event, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, ErrMalformedPayload
	}
	eventType := strings.TrimSpace(p.Event)

	switch eventType {
	case paymentdomain.EventChargeSuccess, paymentdomain.EventChargeFailed:
	default:
		return paymentdomain.UnrecognizedEvent{Type: eventType}, nil
	}

	reference := strings.TrimSpace(p.Data.Reference)
	if reference == "" {
		return nil, ErrMissingReference
	}
	currency := strings.ToUpper(strings.TrimSpace(p.Data.Currency))
	amount := money.FromMinor(0, currency)
	if p.Data.Amount != "" {
		minor, err := p.Data.Amount.Int64()
		if err != nil {
			return nil, ErrMalformedPayload
		}
		amount = money.FromMinor(minor, currency)
	}
	email := strings.TrimSpace(p.Data.Customer.Email)

	if eventType == paymentdomain.EventChargeFailed {
		reason := strings.TrimSpace(p.Data.GatewayResponse)
		if reason == "" {
			reason = strings.TrimSpace(p.Data.Message)
		}
		if reason == "" {
			reason = "charge failed"
		}
		return paymentdomain.ChargeFailed{
			Reference:  reference,
			Amount:     amount,
			Currency:   currency,
			PayerEmail: email,
			Reason:     reason,
			Raw:        raw,
		}, nil
	}

	event := paymentdomain.ChargeSuccess{
		Reference:       reference,
		Amount:          amount,
		Currency:        currency,
		PayerEmail:      email,
		PayerName:       strings.TrimSpace(strings.TrimSpace(p.Data.Customer.FirstName) + " " + strings.TrimSpace(p.Data.Customer.LastName)),
		GatewayResponse: strings.TrimSpace(p.Data.GatewayResponse),
		Raw:             raw,
	}
	if paidAt, err := time.Parse(time.RFC3339, strings.TrimSpace(p.Data.PaidAt)); err == nil {
		paidAt = paidAt.UTC()
		event.PaidAt = &paidAt
	}
	return event, nil
}
