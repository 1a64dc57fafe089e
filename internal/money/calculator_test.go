package money_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicepay/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return v
}

func TestComputeSingleLine(t *testing.T) {
	totals := money.Compute(money.Input{
		Quantity:  d(t, "3"),
		UnitPrice: d(t, "19.99"),
		TaxRate:   d(t, "7.5"),
		Discount:  d(t, "5"),
	})

	assert.True(t, totals.Subtotal.Equal(d(t, "59.97")), "subtotal %s", totals.Subtotal)
	assert.True(t, totals.TaxAmount.Equal(d(t, "4.50")), "tax %s", totals.TaxAmount)
	assert.True(t, totals.Total.Equal(d(t, "59.47")), "total %s", totals.Total)
}

func TestComputeLineItemsTakePrecedence(t *testing.T) {
	totals := money.Compute(money.Input{
		Quantity:  d(t, "100"),
		UnitPrice: d(t, "100"),
		Lines: []money.Line{
			{Quantity: d(t, "2"), UnitPrice: d(t, "250.00")},
			{Quantity: d(t, "1.5"), UnitPrice: d(t, "33.33")},
		},
		TaxRate: d(t, "10"),
	})

	// 500.00 + 50.00 (1.5 * 33.33 = 49.995 rounds up)
	assert.True(t, totals.Subtotal.Equal(d(t, "550.00")), "subtotal %s", totals.Subtotal)
	assert.True(t, totals.TaxAmount.Equal(d(t, "55.00")), "tax %s", totals.TaxAmount)
	assert.True(t, totals.Total.Equal(d(t, "605.00")), "total %s", totals.Total)
}

func TestComputeZeroQuantity(t *testing.T) {
	totals := money.Compute(money.Input{
		Quantity:  decimal.Zero,
		UnitPrice: d(t, "42"),
		TaxRate:   d(t, "15"),
	})
	assert.True(t, totals.Subtotal.IsZero())
	assert.True(t, totals.TaxAmount.IsZero())
	assert.True(t, totals.Total.IsZero())
}

func TestComputeDiscountLargerThanSubtotalGoesNegative(t *testing.T) {
	totals := money.Compute(money.Input{
		Quantity:  d(t, "1"),
		UnitPrice: d(t, "10"),
		Discount:  d(t, "25"),
	})
	assert.True(t, totals.Total.Equal(d(t, "-15")), "total %s", totals.Total)
}

func TestComputeNegativeDiscountDoesNotFail(t *testing.T) {
	totals := money.Compute(money.Input{
		Quantity:  d(t, "1"),
		UnitPrice: d(t, "10"),
		Discount:  d(t, "-2.5"),
	})
	assert.True(t, totals.Total.Equal(d(t, "12.50")), "total %s", totals.Total)
}

func TestTotalInvariantHolds(t *testing.T) {
	cases := []money.Input{
		{Quantity: d(t, "7"), UnitPrice: d(t, "13.37"), TaxRate: d(t, "7.5"), Discount: d(t, "1.01")},
		{Lines: []money.Line{{Quantity: d(t, "0.333"), UnitPrice: d(t, "9.99")}}, TaxRate: d(t, "12.345")},
		{Quantity: d(t, "1"), UnitPrice: d(t, "0.01"), TaxRate: d(t, "50")},
	}
	for _, in := range cases {
		totals := money.Compute(in)
		want := totals.Subtotal.Add(totals.TaxAmount).Sub(in.Discount)
		assert.True(t, totals.Total.Equal(want), "total %s want %s", totals.Total, want)
		assert.True(t, totals.TaxAmount.Equal(totals.Subtotal.Mul(in.TaxRate).Div(decimal.NewFromInt(100)).Round(2)))
	}
}

func TestMinorUnitConversion(t *testing.T) {
	assert.Equal(t, int64(100000), money.ToMinor(d(t, "1000.00"), "NGN"))
	assert.Equal(t, int64(1050), money.ToMinor(d(t, "10.5"), "usd"))
	assert.True(t, money.FromMinor(100000, "NGN").Equal(d(t, "1000.00")))
	assert.Equal(t, "1000.00", money.FromMinor(100000, "NGN").StringFixed(2))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "₦1,000.00", money.Format(d(t, "1000"), "NGN"))
	assert.Equal(t, "$1,234,567.89", money.Format(d(t, "1234567.891"), "USD"))
	assert.Equal(t, "-£5.00", money.Format(d(t, "-5"), "GBP"))
	assert.Equal(t, "XYZ 12.00", money.Format(d(t, "12"), "xyz"))
}
