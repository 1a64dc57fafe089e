package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	paymentdomain "github.com/smallbiznis/invoicepay/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{SecretKey: "sk_test_123", BaseURL: srv.URL + "/", Timeout: timeout}, zap.NewNop(), nil)
}

func TestInitializeSendsMinorUnits(t *testing.T) {
	var got initializePayload
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"INV-ABC123-20251024120000"}}`))
	}, time.Second)

	res, err := client.Initialize(context.Background(), paymentdomain.InitializeRequest{
		Reference:   "INV-ABC123-20251024120000",
		AmountMinor: 100000,
		Email:       "payer@example.com",
		Currency:    "ngn",
		CallbackURL: "https://app.example.com/payments/callback",
		Metadata:    map[string]any{"invoice_number": "INV-ABC123"},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(100000), got.Amount)
	assert.Equal(t, "NGN", got.Currency)
	assert.Equal(t, "INV-ABC123-20251024120000", got.Reference)
	assert.Equal(t, "https://checkout.paystack.com/abc", res.AuthorizationURL)
	assert.Equal(t, "INV-ABC123-20251024120000", res.Reference)
	assert.NotEmpty(t, res.Raw)
}

func TestVerifyConvertsToMajorUnits(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/transaction/verify/INV-ABC123-20251024120000", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":true,"message":"Verification successful","data":{"reference":"INV-ABC123-20251024120000","status":"success","amount":100000,"currency":"NGN","paid_at":"2025-10-24T12:03:10.000Z","gateway_response":"Successful","customer":{"email":"payer@example.com","first_name":"Ada","last_name":"Obi"}}}`))
	}, time.Second)

	v, err := client.Verify(context.Background(), "INV-ABC123-20251024120000")
	require.NoError(t, err)

	assert.True(t, v.Succeeded())
	assert.Equal(t, "1000.00", v.Amount.StringFixed(2))
	assert.Equal(t, "NGN", v.Currency)
	assert.Equal(t, "payer@example.com", v.CustomerEmail)
	assert.Equal(t, "Ada Obi", v.CustomerName)
	require.NotNil(t, v.PaidAt)
	assert.Equal(t, time.Date(2025, 10, 24, 12, 3, 10, 0, time.UTC), *v.PaidAt)
}

func TestProviderRejection(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"non 2xx", http.StatusUnauthorized, `{"status":false,"message":"Invalid key"}`, "Invalid key"},
		{"status false", http.StatusOK, `{"status":false,"message":"Duplicate Transaction Reference"}`, "Duplicate Transaction Reference"},
		{"non json", http.StatusBadGateway, `<html>bad gateway</html>`, "payment provider returned 502"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}, time.Second)

			_, err := client.Verify(context.Background(), "ref-1")
			require.ErrorIs(t, err, paymentdomain.ErrGatewayRejected)

			var gwErr *paymentdomain.GatewayError
			require.True(t, errors.As(err, &gwErr))
			assert.Equal(t, tc.status, gwErr.StatusCode)
			assert.Equal(t, tc.message, gwErr.ProviderMessage())
		})
	}
}

func TestTimeoutIsNetworkError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, 50*time.Millisecond)

	_, err := client.Initialize(context.Background(), paymentdomain.InitializeRequest{
		Reference:   "ref-1",
		AmountMinor: 500,
		Email:       "payer@example.com",
		Currency:    "NGN",
	})
	require.ErrorIs(t, err, paymentdomain.ErrGatewayNetwork)
	require.NotErrorIs(t, err, paymentdomain.ErrGatewayRejected)
}

func TestNotConfigured(t *testing.T) {
	client := NewClient(Config{}, zap.NewNop(), nil)
	_, err := client.Verify(context.Background(), "ref-1")
	require.ErrorIs(t, err, paymentdomain.ErrGatewayNotConfigured)
}

func TestTimeoutIsCapped(t *testing.T) {
	client := NewClient(Config{SecretKey: "sk", Timeout: time.Minute}, nil, nil)
	assert.Equal(t, MaxTimeout, client.cfg.Timeout)
	assert.Equal(t, DefaultBaseURL, client.cfg.BaseURL)
}
