package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

type currencyInfo struct {
	exponent int32
	symbol   string
}

var currencies = map[string]currencyInfo{
	"USD": {exponent: 2, symbol: "$"},
	"EUR": {exponent: 2, symbol: "€"},
	"GBP": {exponent: 2, symbol: "£"},
	"NGN": {exponent: 2, symbol: "₦"},
	"CAD": {exponent: 2, symbol: "CA$"},
	"AUD": {exponent: 2, symbol: "A$"},
	"GHS": {exponent: 2, symbol: "GH₵"},
	"ZAR": {exponent: 2, symbol: "R"},
	"KES": {exponent: 2, symbol: "KSh"},
}

// Supported reports whether the currency code is accepted on invoices.
func Supported(code string) bool {
	_, ok := currencies[normalize(code)]
	return ok
}

// Exponent returns the number of minor-unit digits for the currency.
func Exponent(code string) int32 {
	if info, ok := currencies[normalize(code)]; ok {
		return info.exponent
	}
	return Scale
}

// ToMinor converts a major-unit amount into the gateway's integer minor units.
func ToMinor(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(Exponent(currency)).Round(0).IntPart()
}

// FromMinor converts gateway minor units back into a major-unit decimal.
func FromMinor(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -Exponent(currency))
}

// Format renders an amount with its currency symbol and thousands separators.
func Format(amount decimal.Decimal, currency string) string {
	code := normalize(currency)
	symbol := code + " "
	if info, ok := currencies[code]; ok {
		symbol = info.symbol
	}

	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Abs()
	}

	fixed := amount.StringFixed(Exponent(code))
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return sign + symbol + b.String()
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
