package metrics

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "paystack"),
		attribute.String("reference", "INV-ABC123-20251024120000"),
		attribute.String("outcome", "applied"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "reference" {
			t.Fatalf("expected reference to be dropped")
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordPaymentEvent(ctx, "paystack", "charge.success")
	m.RecordReconciliation(ctx, "apply_success", "applied")
	m.RecordGatewayCall(ctx, "initialize", "ok", time.Millisecond)
	m.RecordNotification(ctx, "payment_received", "email", "sent")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "invoicepay"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordReconciliation(context.Background(), "apply_failure", "failure_recorded")
}
