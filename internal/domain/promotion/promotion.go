// Package promotion implements the discount rule engine: it decides which
// campaigns apply to an order, computes each discount, selects one, and
// applies or removes it against the order totals.
package promotion

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/EmilioM092611/KantarEs-sub000/internal/domain/order"
)

// Type enumerates the supported discount calculation strategies.
type Type string

const (
	// TypePercentage discounts a percentage of the applicable subtotal.
	TypePercentage Type = "percentage"
	// TypeFixedAmount discounts a fixed amount capped at the applicable subtotal.
	TypeFixedAmount Type = "fixed_amount"
	// TypeBuyTwoGetOne grants one free unit per two bought, per applicable line.
	TypeBuyTwoGetOne Type = "buy_2_get_1"
	// TypeBuyThreeGetOne grants one free unit per three bought, per applicable line.
	TypeBuyThreeGetOne Type = "buy_3_get_1"
	// TypeFixedPrice sells targeted products at a target-specific special price.
	TypeFixedPrice Type = "fixed_price"
	// TypeCombo is reserved. Its discount calculation is not defined yet, so
	// a combo promotion always computes zero and can never be applied.
	TypeCombo Type = "combo"
)

// ParseType validates a raw promotion type string at the storage boundary.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypePercentage, TypeFixedAmount, TypeBuyTwoGetOne, TypeBuyThreeGetOne, TypeFixedPrice, TypeCombo:
		return t, nil
	default:
		return "", errors.Errorf("unknown promotion type: %q", s)
	}
}

// Scope enumerates what part of an order a promotion applies to.
type Scope string

const (
	// ScopeProduct applies to lines whose product matches a target.
	ScopeProduct Scope = "product"
	// ScopeCategory applies to lines whose category matches a target.
	ScopeCategory Scope = "category"
	// ScopeOrder applies to every line on the order.
	ScopeOrder Scope = "order"
)

// ParseScope validates a raw promotion scope string at the storage boundary.
func ParseScope(s string) (Scope, error) {
	switch sc := Scope(s); sc {
	case ScopeProduct, ScopeCategory, ScopeOrder:
		return sc, nil
	default:
		return "", errors.Errorf("unknown promotion scope: %q", s)
	}
}

// ErrNotFound is returned when a promotion id or code does not resolve.
var ErrNotFound = errors.New("promotion not found")

// ErrMissingSelector is returned when apply is called with neither a
// promotion id nor a code. It is rejected before any read.
var ErrMissingSelector = errors.New("promotion id or code required")

// RuleViolationError rejects an apply attempt with a human-readable reason:
// inactive promotion, code mismatch, failed eligibility, zero discount, or an
// exhausted usage cap. No state is changed when it is returned.
type RuleViolationError struct {
	Reason string
}

func (e *RuleViolationError) Error() string {
	return e.Reason
}

func violationf(format string, args ...any) error {
	return &RuleViolationError{Reason: fmt.Sprintf(format, args...)}
}

// Target restricts a promotion to a product or a category, never both.
// SpecialPrice is only meaningful for fixed-price promotions.
type Target struct {
	ID               int64
	PromotionID      int64
	ProductID        *int64
	CategoryID       *int64
	SpecialPrice     *decimal.Decimal
	RequiredQuantity int
	BonusQuantity    int
}

// Matches reports whether an order line falls under this target.
func (t Target) Matches(ln order.Line) bool {
	switch {
	case t.ProductID != nil:
		return *t.ProductID == ln.ProductID
	case t.CategoryID != nil:
		return *t.CategoryID == ln.CategoryID
	}
	return false
}

// Promotion is a discount campaign definition. StartMinute and EndMinute
// express an optional time-of-day window as minutes since midnight, both
// bounds inclusive. Weekdays uses Go's time.Weekday numbering (0=Sunday);
// an empty set means any day. MaxUses and MaxUsesPerCustomer of 0 mean
// unlimited. UsageCount is the only field the engine ever mutates.
type Promotion struct {
	ID                 int64
	Name               string
	Type               Type
	Scope              Scope
	Value              decimal.Decimal
	StartsAt           time.Time
	EndsAt             *time.Time
	StartMinute        *int
	EndMinute          *int
	Weekdays           []time.Weekday
	MinQuantity        int
	MinAmount          decimal.Decimal
	MaxUses            int
	MaxUsesPerCustomer int
	RequiresCode       bool
	Code               string
	// Combinable is persisted and surfaced in listings but reserved: the
	// engine is single-promotion-per-order and never stacks discounts.
	Combinable bool
	Active     bool
	UsageCount int
	Targets    []Target
}

// Catalog provides read access to promotion definitions with their targets
// loaded. Lookups resolve regardless of the active flag; the selection
// strategy distinguishes "not found" from "inactive".
type Catalog interface {
	ListActive(ctx context.Context) ([]Promotion, error)
	GetByID(ctx context.Context, id int64) (*Promotion, error)
	GetByCode(ctx context.Context, code string) (*Promotion, error)
}

// Tx is the row-locked view of the stores used inside Apply and Remove.
// Implementations must take locks in the fixed order the service calls them:
// order row first, then promotion row, then usage-ledger row.
type Tx interface {
	OrderForUpdate(ctx context.Context, orderID int64) (*order.Order, error)
	UpdateOrderDiscount(ctx context.Context, o *order.Order) error
	PromotionForUpdate(ctx context.Context, id int64) (*Promotion, error)
	IncrementUsage(ctx context.Context, id int64) error
	CustomerUsesForUpdate(ctx context.Context, promotionID int64, customerID string) (int, error)
	IncrementCustomerUses(ctx context.Context, promotionID int64, customerID string) error
}

// TxRunner executes fn inside a single transaction: every write made through
// the Tx commits together or not at all.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
