package promotion

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/EmilioM092611/KantarEs-sub000/internal/domain/order"
)

// Applicable pairs an eligible promotion with its computed discount.
type Applicable struct {
	Promotion Promotion
	Discount  decimal.Decimal
}

// Selector identifies the promotion to apply: by id or by code, exactly one
// required. CustomerID is optional and enables the per-customer usage cap.
type Selector struct {
	PromotionID int64
	Code        string
	CustomerID  string
}

// ApplyResult reports a successfully applied promotion.
type ApplyResult struct {
	OrderID     int64
	PromotionID int64
	Discount    decimal.Decimal
	Total       decimal.Decimal
}

// RemoveResult reports the order total after a promotion was removed.
type RemoveResult struct {
	OrderID int64
	Total   decimal.Decimal
}

// Service is the selection strategy: it orchestrates the catalog, the
// eligibility evaluator, and the discount calculator to rank promotions,
// and runs apply/remove inside a single transaction.
type Service struct {
	catalog Catalog
	orders  order.Repository
	tx      TxRunner
	now     func() time.Time
}

// NewService creates a Service. The clock defaults to time.Now and is
// overridable for deterministic tests.
func NewService(catalog Catalog, orders order.Repository, tx TxRunner) *Service {
	return &Service{
		catalog: catalog,
		orders:  orders,
		tx:      tx,
		now:     time.Now,
	}
}

// WithClock replaces the service clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ListApplicable returns every active promotion that is eligible for the
// order and yields a positive discount, sorted by discount descending.
// Equal discounts keep catalog order; the tie-break is stable but carries no
// meaning. The listing is read-only and safe to run concurrently.
func (s *Service) ListApplicable(ctx context.Context, orderID int64) ([]Applicable, error) {
	o, err := s.orders.GetWithLines(ctx, orderID)
	if err != nil {
		return nil, err
	}

	promos, err := s.catalog.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list active promotions")
	}

	now := s.now()
	applicable := make([]Applicable, 0, len(promos))
	for i := range promos {
		p := &promos[i]
		if !IsEligible(p, o, now) {
			continue
		}
		d := Calculate(p, o)
		if !d.IsPositive() {
			continue
		}
		applicable = append(applicable, Applicable{Promotion: promos[i], Discount: d})
	}

	sort.SliceStable(applicable, func(i, j int) bool {
		return applicable[i].Discount.GreaterThan(applicable[j].Discount)
	})
	return applicable, nil
}

// Apply resolves the selected promotion, re-checks eligibility and usage
// caps against row-locked state, writes the new order totals, and increments
// the usage counters. All writes happen in one transaction; a failure at any
// step leaves both the order and the counters unchanged. Applying over an
// already discounted order replaces the discount.
func (s *Service) Apply(ctx context.Context, orderID int64, sel Selector) (*ApplyResult, error) {
	if sel.PromotionID == 0 && sel.Code == "" {
		return nil, ErrMissingSelector
	}

	p, err := s.resolve(ctx, sel)
	if err != nil {
		return nil, err
	}

	var res *ApplyResult
	err = s.tx.InTx(ctx, func(tx Tx) error {
		o, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		if !p.Active {
			return violationf("promotion %q is not active", p.Name)
		}
		if p.RequiresCode && !strings.EqualFold(sel.Code, p.Code) {
			return violationf("promotion %q requires a valid code", p.Name)
		}
		if !IsEligible(p, o, s.now()) {
			return violationf("promotion %q is not eligible for this order", p.Name)
		}

		discount := Calculate(p, o)
		if !discount.IsPositive() {
			return violationf("promotion %q yields no discount for this order", p.Name)
		}

		if err := s.checkUsageCaps(ctx, tx, p, sel.CustomerID); err != nil {
			return err
		}

		o.SetDiscount(p.ID, discountPercentage(p), discount)
		if err := tx.UpdateOrderDiscount(ctx, o); err != nil {
			return errors.Wrap(err, "update order totals")
		}
		if err := tx.IncrementUsage(ctx, p.ID); err != nil {
			return errors.Wrap(err, "increment usage count")
		}
		if p.MaxUsesPerCustomer > 0 && sel.CustomerID != "" {
			if err := tx.IncrementCustomerUses(ctx, p.ID, sel.CustomerID); err != nil {
				return errors.Wrap(err, "increment customer uses")
			}
		}

		res = &ApplyResult{
			OrderID:     o.ID,
			PromotionID: p.ID,
			Discount:    discount,
			Total:       o.Total,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ApplyBest ranks the applicable promotions and applies the top one. The
// stored code is carried along so code-gated promotions pass the code check.
func (s *Service) ApplyBest(ctx context.Context, orderID int64, customerID string) (*ApplyResult, error) {
	applicable, err := s.ListApplicable(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(applicable) == 0 {
		return nil, violationf("no applicable promotion for order %d", orderID)
	}

	best := applicable[0].Promotion
	return s.Apply(ctx, orderID, Selector{
		PromotionID: best.ID,
		Code:        best.Code,
		CustomerID:  customerID,
	})
}

// Remove clears the applied promotion and restores the undiscounted total.
// The usage counter is not decremented: once counted, a use counts. Removing
// from an order with no promotion is a no-op that still rewrites the totals.
func (s *Service) Remove(ctx context.Context, orderID int64) (*RemoveResult, error) {
	var res *RemoveResult
	err := s.tx.InTx(ctx, func(tx Tx) error {
		o, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		o.ClearDiscount()
		if err := tx.UpdateOrderDiscount(ctx, o); err != nil {
			return errors.Wrap(err, "update order totals")
		}

		res = &RemoveResult{OrderID: o.ID, Total: o.Total}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// resolve looks up the promotion by id when given, otherwise by code.
func (s *Service) resolve(ctx context.Context, sel Selector) (*Promotion, error) {
	if sel.PromotionID != 0 {
		p, err := s.catalog.GetByID(ctx, sel.PromotionID)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	p, err := s.catalog.GetByCode(ctx, sel.Code)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// checkUsageCaps enforces the global and per-customer caps against
// row-locked counters. The promotion row is only locked when a cap needs a
// read-then-increment; the unconditional usage_count bump is a single atomic
// update and needs no prior lock.
func (s *Service) checkUsageCaps(ctx context.Context, tx Tx, p *Promotion, customerID string) error {
	if p.MaxUses > 0 {
		locked, err := tx.PromotionForUpdate(ctx, p.ID)
		if err != nil {
			return err
		}
		if locked.UsageCount >= locked.MaxUses {
			return violationf("promotion %q usage cap reached", p.Name)
		}
	}
	if p.MaxUsesPerCustomer > 0 && customerID != "" {
		uses, err := tx.CustomerUsesForUpdate(ctx, p.ID, customerID)
		if err != nil {
			return err
		}
		if uses >= p.MaxUsesPerCustomer {
			return violationf("promotion %q usage cap reached for this customer", p.Name)
		}
	}
	return nil
}

// discountPercentage returns the percentage recorded on the order: the
// promotion value for percentage discounts, zero for every other type.
func discountPercentage(p *Promotion) decimal.Decimal {
	if p.Type == TypePercentage {
		return p.Value
	}
	return decimal.Zero
}
