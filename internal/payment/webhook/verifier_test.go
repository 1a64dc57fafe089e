package webhook

import (
	"testing"

	paymentdomain "github.com/smallbiznis/invoicepay/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "sk_test_webhook"

var testBody = []byte(`{"event":"charge.success","data":{"reference":"INV-ABC123-20251024120000","amount":100000,"currency":"NGN","customer":{"email":"payer@example.com"}}}`)

func TestVerifyAcceptsValidSignature(t *testing.T) {
	v := NewVerifier(testSecret)
	require.True(t, v.Verify(testBody, Sign(testSecret, testBody)))
}

func TestVerifyRejectsEverySingleByteBodyMutation(t *testing.T) {
	v := NewVerifier(testSecret)
	signature := Sign(testSecret, testBody)

	for i := range testBody {
		mutated := append([]byte(nil), testBody...)
		mutated[i] ^= 0x01
		assert.False(t, v.Verify(mutated, signature), "body mutation at %d accepted", i)
	}
}

func TestVerifyRejectsEverySingleByteSignatureMutation(t *testing.T) {
	v := NewVerifier(testSecret)
	signature := []byte(Sign(testSecret, testBody))

	for i := range signature {
		mutated := append([]byte(nil), signature...)
		mutated[i] ^= 0x01
		assert.False(t, v.Verify(testBody, string(mutated)), "signature mutation at %d accepted", i)
	}
}

func TestVerifyRejectsWithoutSecretOrHeader(t *testing.T) {
	assert.False(t, NewVerifier("").Verify(testBody, Sign("", testBody)))
	assert.False(t, NewVerifier(testSecret).Verify(testBody, ""))
	assert.False(t, NewVerifier(testSecret).Verify(testBody, Sign("other", testBody)))
}

func TestVerifyUsesRawBytes(t *testing.T) {
	v := NewVerifier(testSecret)
	reformatted := []byte(`{"event": "charge.success", "data": {"reference": "INV-ABC123-20251024120000", "amount": 100000, "currency": "NGN", "customer": {"email": "payer@example.com"}}}`)
	assert.False(t, v.Verify(reformatted, Sign(testSecret, testBody)))
}

func TestDecodeEvent(t *testing.T) {
	event, err := DecodeEvent(testBody)
	require.NoError(t, err)
	success, ok := event.(paymentdomain.ChargeSuccess)
	require.True(t, ok)
	assert.Equal(t, "INV-ABC123-20251024120000", success.Reference)
	assert.Equal(t, "1000.00", success.Amount.StringFixed(2))
	assert.Equal(t, "payer@example.com", success.PayerEmail)
	assert.Equal(t, testBody, success.Raw)

	event, err = DecodeEvent([]byte(`{"event":"charge.failed","data":{"reference":"ref-2","amount":500,"currency":"NGN","gateway_response":"Declined"}}`))
	require.NoError(t, err)
	failed, ok := event.(paymentdomain.ChargeFailed)
	require.True(t, ok)
	assert.Equal(t, "Declined", failed.Reason)
	assert.Equal(t, "5.00", failed.Amount.StringFixed(2))

	event, err = DecodeEvent([]byte(`{"event":"transfer.success","data":{}}`))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.UnrecognizedEvent{Type: "transfer.success"}, event)

	event, err = DecodeEvent([]byte(`{"data":{}}`))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.UnrecognizedEvent{}, event)

	_, err = DecodeEvent([]byte(`{"event":`))
	require.ErrorIs(t, err, ErrMalformedPayload)

	_, err = DecodeEvent([]byte(`{"event":"charge.success","data":{"amount":100}}`))
	require.ErrorIs(t, err, ErrMissingReference)
}
