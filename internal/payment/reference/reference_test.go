package reference

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/invoicepay/internal/clock"
	paymentdomain "github.com/smallbiznis/invoicepay/internal/payment/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubRepo struct {
	paymentdomain.Repository
	taken map[string]bool
}

func (s *stubRepo) ReferenceExists(_ context.Context, _ *gorm.DB, reference string) (bool, error) {
	return s.taken[reference], nil
}

func TestFormat(t *testing.T) {
	at := time.Date(2025, 10, 24, 12, 0, 0, 0, time.UTC)
	require.Equal(t, "INV-ABC123-20251024120000", Format("INV-ABC123", at))
}

func TestNextAppendsNonceOnCollision(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 10, 24, 12, 0, 0, 0, time.UTC))
	repo := &stubRepo{taken: map[string]bool{}}
	gen := NewGenerator(fc, repo)

	first, err := gen.Next(context.Background(), nil, "INV-ABC123")
	require.NoError(t, err)
	require.Equal(t, "INV-ABC123-20251024120000", first)

	repo.taken[first] = true
	second, err := gen.Next(context.Background(), nil, "INV-ABC123")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.True(t, strings.HasPrefix(second, first+"-"))
	require.Len(t, second, len(first)+1+nonceLength)
}

func TestNextRejectsEmptyInvoiceNumber(t *testing.T) {
	gen := NewGenerator(clock.SystemClock{}, &stubRepo{})
	_, err := gen.Next(context.Background(), nil, " ")
	require.ErrorIs(t, err, paymentdomain.ErrInvalidReference)
}

