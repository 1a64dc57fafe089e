// Package money computes invoice totals and converts between major and minor currency units.
package money

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places stored for monetary values.
const Scale = 2

var hundred = decimal.NewFromInt(100)

// Line is a single billable row.
type Line struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// Input describes the values totals are derived from. When Lines is non-empty it
// takes precedence over Quantity and UnitPrice.
type Input struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Lines     []Line
	TaxRate   decimal.Decimal
	Discount  decimal.Decimal
}

// Totals holds derived invoice amounts.
type Totals struct {
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// Compute derives subtotal, tax and total. A discount larger than the subtotal
// yields a negative total; rejecting that is left to request validation.
func Compute(in Input) Totals {
	subtotal := LineAmount(in.Quantity, in.UnitPrice)
	if len(in.Lines) > 0 {
		subtotal = lo.Reduce(in.Lines, func(agg decimal.Decimal, l Line, _ int) decimal.Decimal {
			return agg.Add(LineAmount(l.Quantity, l.UnitPrice))
		}, decimal.Zero)
	}

	tax := Round(subtotal.Mul(in.TaxRate).Div(hundred))
	total := Round(subtotal.Add(tax).Sub(in.Discount))

	return Totals{
		Subtotal:  Round(subtotal),
		TaxAmount: tax,
		Total:     total,
	}
}

// LineAmount returns quantity * unit price rounded to two places.
func LineAmount(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return Round(quantity.Mul(unitPrice))
}

// Round rounds half away from zero to two decimal places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}
