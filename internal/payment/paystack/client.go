// Package paystack is the outbound client for the Paystack transaction API.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/invoicepay/internal/money"
	obsmetrics "github.com/smallbiznis/invoicepay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/invoicepay/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.paystack.co"
	MaxTimeout     = 10 * time.Second

	maxResponseBytes = 1 << 20
)

// Config is injected at construction; nothing is read from the environment here.
type Config struct {
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
}

type Client struct {
	cfg     Config
	http    *http.Client
	log     *zap.Logger
	metrics *obsmetrics.Metrics
	tracer  trace.Tracer
}

// NewClient builds a client. A missing secret is reported on first use as
// ErrGatewayNotConfigured.
func NewClient(cfg Config, log *zap.Logger, metrics *obsmetrics.Metrics) *Client {
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 || cfg.Timeout > MaxTimeout {
		cfg.Timeout = MaxTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log.Named("paystack"),
		metrics: metrics,
		tracer:  otel.Tracer("invoicepay/paystack"),
	}
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializePayload struct {
	Amount      int64          `json:"amount"`
	Email       string         `json:"email"`
	Reference   string         `json:"reference"`
	Currency    string         `json:"currency"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	Reference       string   `json:"reference"`
	Status          string   `json:"status"`
	Amount          int64    `json:"amount"`
	Currency        string   `json:"currency"`
	PaidAt          string   `json:"paid_at"`
	GatewayResponse string   `json:"gateway_response"`
	Customer        customer `json:"customer"`
}

type customer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (c customer) name() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// Initialize creates a hosted checkout for req and returns the authorization URL.
func (c *Client) Initialize(ctx context.Context, req paymentdomain.InitializeRequest) (*paymentdomain.InitializeResult, error) {
	if req.AmountMinor <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}
	if strings.TrimSpace(req.Reference) == "" {
		return nil, paymentdomain.ErrInvalidReference
	}

	body, err := json.Marshal(initializePayload{
		Amount:      req.AmountMinor,
		Email:       req.Email,
		Reference:   req.Reference,
		Currency:    strings.ToUpper(req.Currency),
		CallbackURL: req.CallbackURL,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	env, raw, err := c.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return nil, err
	}

	var data initializeData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.AuthorizationURL == "" {
		return nil, &paymentdomain.GatewayError{
			Kind:      paymentdomain.ErrGatewayRejected,
			Operation: "initialize",
			Message:   "invalid response from payment provider",
			Err:       err,
		}
	}
	reference := data.Reference
	if reference == "" {
		reference = req.Reference
	}

	return &paymentdomain.InitializeResult{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        reference,
		Raw:              raw,
	}, nil
}

// Verify fetches the gateway's record of reference. The amount is converted
// back to major units.
func (c *Client) Verify(ctx context.Context, reference string) (*paymentdomain.Verification, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, paymentdomain.ErrInvalidReference
	}

	env, raw, err := c.do(ctx, "verify", http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}

	var data verifyData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &paymentdomain.GatewayError{
			Kind:      paymentdomain.ErrGatewayRejected,
			Operation: "verify",
			Message:   "invalid response from payment provider",
			Err:       err,
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(data.Currency))
	verification := &paymentdomain.Verification{
		Reference:       data.Reference,
		Status:          strings.ToLower(strings.TrimSpace(data.Status)),
		Amount:          money.FromMinor(data.Amount, currency),
		Currency:        currency,
		CustomerEmail:   strings.TrimSpace(data.Customer.Email),
		CustomerName:    data.Customer.name(),
		GatewayResponse: data.GatewayResponse,
		Raw:             raw,
	}
	if verification.Reference == "" {
		verification.Reference = reference
	}
	if paidAt, err := time.Parse(time.RFC3339, strings.TrimSpace(data.PaidAt)); err == nil {
		paidAt = paidAt.UTC()
		verification.PaidAt = &paidAt
	}
	return verification, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, body []byte) (envelope, []byte, error) {
	if c.cfg.SecretKey == "" {
		return envelope{}, nil, paymentdomain.ErrGatewayNotConfigured
	}

	ctx, span := c.tracer.Start(ctx, "paystack."+operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.provider", paymentdomain.ProviderPaystack),
		attribute.String("payment.operation", operation),
	)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	env, raw, status, err := c.send(ctx, operation, method, path, body)
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "rejected"
		if errors.Is(err, paymentdomain.ErrGatewayNetwork) {
			outcome = "network_error"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		c.log.Warn("paystack call failed",
			zap.String("operation", operation),
			zap.Int("status_code", status),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	c.metrics.RecordGatewayCall(ctx, operation, outcome, elapsed)
	return env, raw, err
}

func (c *Client) send(ctx context.Context, operation, method, path string, body []byte) (envelope, []byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return envelope{}, nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, nil, 0, &paymentdomain.GatewayError{
			Kind:      paymentdomain.ErrGatewayNetwork,
			Operation: operation,
			Err:       err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return envelope{}, nil, resp.StatusCode, &paymentdomain.GatewayError{
			Kind:       paymentdomain.ErrGatewayNetwork,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Err:        err,
		}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices || decodeErr != nil || !env.Status {
		message := strings.TrimSpace(env.Message)
		if message == "" {
			message = fmt.Sprintf("payment provider returned %d", resp.StatusCode)
		}
		return envelope{}, raw, resp.StatusCode, &paymentdomain.GatewayError{
			Kind:       paymentdomain.ErrGatewayRejected,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    message,
			Err:        decodeErr,
		}
	}
	return env, raw, resp.StatusCode, nil
}
