package webhook

import (
	"context"
	"errors"

	obsmetrics "github.com/smallbiznis/invoicepay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/invoicepay/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrMissingSignature = errors.New("missing_signature")
	ErrInvalidSignature = errors.New("invalid_signature")
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Verifier   *Verifier
	PaymentSvc paymentdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Service authenticates, decodes and dispatches gateway notifications to the
// reconciliation engine.
type Service struct {
	log        *zap.Logger
	verifier   *Verifier
	paymentSvc paymentdomain.Service
	obsMetrics *obsmetrics.Metrics
}

// Result pairs the decoded event with the settlement it produced. Settlement
// is nil for unrecognized events.
type Result struct {
	Event      paymentdomain.Event
	Settlement *paymentdomain.Settlement
}

func NewService(p Params) *Service {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		verifier:   p.Verifier,
		paymentSvc: p.PaymentSvc,
		obsMetrics: p.ObsMetrics,
	}
}

// Ingest handles one delivery. The signature is checked against rawBody before
// anything is parsed; nothing is written unless it matches.
func (s *Service) Ingest(ctx context.Context, rawBody []byte, signature string) (*Result, error) {
	if signature == "" {
		return nil, ErrMissingSignature
	}
	if !s.verifier.Configured() {
		s.log.Error("webhook secret is not configured; rejecting delivery")
		return nil, ErrInvalidSignature
	}
	if !s.verifier.Verify(rawBody, signature) {
		s.log.Warn("webhook signature mismatch", zap.Int("body_bytes", len(rawBody)))
		return nil, ErrInvalidSignature
	}

	event, err := DecodeEvent(rawBody)
	if err != nil {
		return nil, err
	}
	s.obsMetrics.RecordPaymentEvent(ctx, paymentdomain.ProviderPaystack, event.EventType())

	switch e := event.(type) {
	case paymentdomain.ChargeSuccess:
		settlement, err := s.paymentSvc.ApplySuccess(ctx, e)
		if err != nil {
			return nil, err
		}
		return &Result{Event: event, Settlement: settlement}, nil
	case paymentdomain.ChargeFailed:
		settlement, err := s.paymentSvc.ApplyFailure(ctx, e)
		if err != nil {
			return nil, err
		}
		return &Result{Event: event, Settlement: settlement}, nil
	default:
		s.log.Info("webhook event not handled", zap.String("event_type", event.EventType()))
		return &Result{Event: event}, nil
	}
}
