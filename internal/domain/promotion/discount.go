package promotion

import (
	"github.com/shopspring/decimal"

	"github.com/EmilioM092611/KantarEs-sub000/internal/domain/order"
)

var hundred = decimal.NewFromInt(100)

// Calculate computes the monetary discount the promotion yields for the
// order. The result is always >= 0, rounded to 2 decimal places, and clamped
// at the applicable subtotal for every type so a discount can never exceed
// what the matching lines are worth.
func Calculate(p *Promotion, o *order.Order) decimal.Decimal {
	lines := applicableLines(p, o)
	subtotal := linesTotal(lines)

	var amount decimal.Decimal
	switch p.Type {
	case TypePercentage:
		amount = subtotal.Mul(p.Value).Div(hundred)
	case TypeFixedAmount:
		amount = decimal.Min(p.Value, subtotal)
	case TypeBuyTwoGetOne:
		amount = buyNGetOne(lines, 2)
	case TypeBuyThreeGetOne:
		amount = buyNGetOne(lines, 3)
	case TypeFixedPrice:
		amount = specialPriceSavings(p, lines)
	case TypeCombo:
		// Reserved type: no calculation defined.
		amount = decimal.Zero
	default:
		amount = decimal.Zero
	}

	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}
	return amount.Round(2)
}

// applicableLines returns every line for order-scoped promotions, otherwise
// the lines covered by one of the promotion's targets.
func applicableLines(p *Promotion, o *order.Order) []order.Line {
	if p.Scope == ScopeOrder {
		return o.Lines
	}
	var lines []order.Line
	for _, ln := range o.Lines {
		for _, t := range p.Targets {
			if t.Matches(ln) {
				lines = append(lines, ln)
				break
			}
		}
	}
	return lines
}

func linesTotal(lines []order.Line) decimal.Decimal {
	sum := decimal.Zero
	for _, ln := range lines {
		sum = sum.Add(ln.LineTotal)
	}
	return sum
}

// buyNGetOne grants one free unit per n units bought, per line:
// floor(quantity / n) * unit price, summed across lines.
func buyNGetOne(lines []order.Line, n int) decimal.Decimal {
	sum := decimal.Zero
	for _, ln := range lines {
		free := int64(ln.Quantity / n)
		if free == 0 {
			continue
		}
		sum = sum.Add(ln.UnitPrice.Mul(decimal.NewFromInt(free)))
	}
	return sum
}

// specialPriceSavings sums max(0, unit price - special price) * quantity over
// lines whose target carries a special price. Lines without one contribute
// nothing.
func specialPriceSavings(p *Promotion, lines []order.Line) decimal.Decimal {
	sum := decimal.Zero
	for _, ln := range lines {
		special := specialPriceFor(p, ln)
		if special == nil {
			continue
		}
		saving := ln.UnitPrice.Sub(*special)
		if saving.IsNegative() {
			continue
		}
		sum = sum.Add(saving.Mul(decimal.NewFromInt(int64(ln.Quantity))))
	}
	return sum
}

func specialPriceFor(p *Promotion, ln order.Line) *decimal.Decimal {
	for _, t := range p.Targets {
		if t.SpecialPrice != nil && t.Matches(ln) {
			return t.SpecialPrice
		}
	}
	return nil
}
