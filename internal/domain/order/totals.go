package order

import "github.com/shopspring/decimal"

// RecalculateTotal computes an order total from its components:
//
//	total = subtotal - discount + tax + tip
//
// rounded to 2 decimal places. Taxes are computed upstream on the
// undiscounted subtotal and are not recomputed when a discount is applied.
// The result is not clamped: discounts are capped at the applicable subtotal
// by the calculator, which keeps totals non-negative in practice.
func RecalculateTotal(subtotal, discount, tax, tip decimal.Decimal) decimal.Decimal {
	return subtotal.Sub(discount).Add(tax).Add(tip).Round(2)
}
