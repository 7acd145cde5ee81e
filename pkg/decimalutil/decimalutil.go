// Package decimalutil collects small rounding/parsing helpers used
// wherever the engine touches fixed-precision decimal math.
package decimalutil

import "github.com/shopspring/decimal"

// Scale is the fractional precision the engine holds quantities at.
const Scale = 8

// TruncQty rounds d down (toward zero) to Scale decimal places, as used
// when deriving order quantities from a USD notional and a price.
func TruncQty(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(Scale)
}

// Abs returns the absolute value of d.
func Abs(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return d.Neg()
	}
	return d
}

// Mean returns the arithmetic mean of vs, or zero if vs is empty.
func Mean(vs []decimal.Decimal) decimal.Decimal {
	if len(vs) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range vs {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(vs))))
}

// SafeRatio returns num/den, or zero if den is zero.
func SafeRatio(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Div(den)
}
