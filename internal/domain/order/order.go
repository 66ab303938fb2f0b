package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when an order id does not resolve.
var ErrNotFound = errors.New("order not found")

// Line is a single item on an order. CategoryID is denormalized from the
// product so promotion target matching does not need a product lookup.
type Line struct {
	ID         int64
	ProductID  int64
	CategoryID int64
	Quantity   int
	UnitPrice  decimal.Decimal
	LineTotal  decimal.Decimal
}

// Order is the snapshot of an order consumed by the promotion engine.
// Subtotal, TaxAmount, and Tip are computed upstream; the engine only
// mutates the discount fields and Total.
type Order struct {
	ID                 int64
	CustomerID         string
	Lines              []Line
	Subtotal           decimal.Decimal
	TaxAmount          decimal.Decimal
	Tip                decimal.Decimal
	AppliedPromotionID *int64
	DiscountPercentage decimal.Decimal
	DiscountAmount     decimal.Decimal
	Total              decimal.Decimal
}

// TotalQuantity returns the sum of quantities across all lines.
func (o *Order) TotalQuantity() int {
	total := 0
	for _, ln := range o.Lines {
		total += ln.Quantity
	}
	return total
}

// LinesSubtotal returns the sum of line totals across all lines.
func (o *Order) LinesSubtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, ln := range o.Lines {
		sum = sum.Add(ln.LineTotal)
	}
	return sum
}

// SetDiscount records an applied promotion on the order and recomputes Total.
// Any previously applied discount is replaced, never stacked.
func (o *Order) SetDiscount(promotionID int64, percentage, amount decimal.Decimal) {
	id := promotionID
	o.AppliedPromotionID = &id
	o.DiscountPercentage = percentage
	o.DiscountAmount = amount
	o.Total = RecalculateTotal(o.Subtotal, amount, o.TaxAmount, o.Tip)
}

// ClearDiscount removes any applied promotion and recomputes Total.
func (o *Order) ClearDiscount() {
	o.AppliedPromotionID = nil
	o.DiscountPercentage = decimal.Zero
	o.DiscountAmount = decimal.Zero
	o.Total = RecalculateTotal(o.Subtotal, decimal.Zero, o.TaxAmount, o.Tip)
}

// Repository defines read access to orders with their lines.
type Repository interface {
	GetWithLines(ctx context.Context, id int64) (*Order, error)
}
