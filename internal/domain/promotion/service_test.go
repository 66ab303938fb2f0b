package promotion

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmilioM092611/KantarEs-sub000/internal/domain/order"
)

// --- Fakes ---

type fakeCatalog struct {
	promos []Promotion
	err    error
}

func (c *fakeCatalog) ListActive(_ context.Context) ([]Promotion, error) {
	if c.err != nil {
		return nil, c.err
	}
	var active []Promotion
	for _, p := range c.promos {
		if p.Active {
			active = append(active, p)
		}
	}
	return active, nil
}

func (c *fakeCatalog) GetByID(_ context.Context, id int64) (*Promotion, error) {
	for i := range c.promos {
		if c.promos[i].ID == id {
			p := c.promos[i]
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (c *fakeCatalog) GetByCode(_ context.Context, code string) (*Promotion, error) {
	for i := range c.promos {
		if c.promos[i].RequiresCode && c.promos[i].Code == code {
			p := c.promos[i]
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

// fakeStore backs both the read repository and the transactional unit with
// commit/rollback semantics: a transaction works on copies and only writes
// back when fn succeeds.
type fakeStore struct {
	catalog      *fakeCatalog
	order        *order.Order
	customerUses map[string]int
	locks        []string
}

func newFakeStore(catalog *fakeCatalog, o *order.Order) *fakeStore {
	return &fakeStore{
		catalog:      catalog,
		order:        o,
		customerUses: make(map[string]int),
	}
}

func (s *fakeStore) GetWithLines(_ context.Context, id int64) (*order.Order, error) {
	if s.order == nil || s.order.ID != id {
		return nil, order.ErrNotFound
	}
	o := *s.order
	return &o, nil
}

func (s *fakeStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &fakeTx{store: s, usageDelta: make(map[int64]int), customerDelta: make(map[string]int)}
	if err := fn(tx); err != nil {
		return err
	}
	// Commit.
	if tx.updatedOrder != nil {
		s.order = tx.updatedOrder
	}
	for id, delta := range tx.usageDelta {
		for i := range s.catalog.promos {
			if s.catalog.promos[i].ID == id {
				s.catalog.promos[i].UsageCount += delta
			}
		}
	}
	for key, delta := range tx.customerDelta {
		s.customerUses[key] += delta
	}
	return nil
}

type fakeTx struct {
	store         *fakeStore
	updatedOrder  *order.Order
	usageDelta    map[int64]int
	customerDelta map[string]int
}

func (t *fakeTx) OrderForUpdate(_ context.Context, orderID int64) (*order.Order, error) {
	t.store.locks = append(t.store.locks, fmt.Sprintf("order:%d", orderID))
	if t.store.order == nil || t.store.order.ID != orderID {
		return nil, order.ErrNotFound
	}
	o := *t.store.order
	return &o, nil
}

func (t *fakeTx) UpdateOrderDiscount(_ context.Context, o *order.Order) error {
	t.updatedOrder = o
	return nil
}

func (t *fakeTx) PromotionForUpdate(_ context.Context, id int64) (*Promotion, error) {
	t.store.locks = append(t.store.locks, fmt.Sprintf("promotion:%d", id))
	return t.store.catalog.GetByID(context.Background(), id)
}

func (t *fakeTx) IncrementUsage(_ context.Context, id int64) error {
	t.usageDelta[id]++
	return nil
}

func (t *fakeTx) CustomerUsesForUpdate(_ context.Context, promotionID int64, customerID string) (int, error) {
	key := fmt.Sprintf("%d:%s", promotionID, customerID)
	t.store.locks = append(t.store.locks, "ledger:"+key)
	return t.store.customerUses[key], nil
}

func (t *fakeTx) IncrementCustomerUses(_ context.Context, promotionID int64, customerID string) error {
	t.customerDelta[fmt.Sprintf("%d:%s", promotionID, customerID)]++
	return nil
}

// --- Helpers ---

func newTestService(catalog *fakeCatalog, o *order.Order) (*Service, *fakeStore) {
	store := newFakeStore(catalog, o)
	svc := NewService(catalog, store, store).WithClock(func() time.Time { return wednesdayNoon })
	return svc, store
}

func scenarioOrder() *order.Order {
	o := &order.Order{
		ID: 1,
		Lines: []order.Line{
			{ProductID: 10, CategoryID: 100, Quantity: 4, UnitPrice: d("10.00"), LineTotal: d("40.00")},
		},
		Subtotal:           d("40.00"),
		TaxAmount:          d("6.40"),
		Tip:                decimal.Zero,
		DiscountPercentage: decimal.Zero,
		DiscountAmount:     decimal.Zero,
		Total:              d("46.40"),
	}
	return o
}

func twoForOne() Promotion {
	p := basePromotion()
	p.ID = 1
	p.Name = "2x1"
	p.Type = TypeBuyTwoGetOne
	p.Scope = ScopeProduct
	p.Targets = []Target{{ProductID: ptr(int64(10))}}
	return p
}

func halfOff() Promotion {
	p := basePromotion()
	p.ID = 2
	p.Name = "Half off"
	p.Type = TypePercentage
	p.Value = d("50")
	return p
}

// --- Tests ---

func TestListApplicable_RanksByDiscountDescending(t *testing.T) {
	ten := basePromotion()
	ten.ID = 3
	ten.Name = "10% off"
	ten.Value = d("10")

	catalog := &fakeCatalog{promos: []Promotion{ten, twoForOne(), halfOff()}}
	svc, _ := newTestService(catalog, scenarioOrder())

	got, err := svc.ListApplicable(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// 2x1 and half-off both yield 20.00; the 2x1 comes first in the catalog
	// so the stable sort keeps it ahead.
	assert.Equal(t, "2x1", got[0].Promotion.Name)
	assert.True(t, d("20.00").Equal(got[0].Discount))
	assert.Equal(t, "Half off", got[1].Promotion.Name)
	assert.True(t, d("20.00").Equal(got[1].Discount))
	assert.Equal(t, "10% off", got[2].Promotion.Name)
	assert.True(t, d("4.00").Equal(got[2].Discount))
}

func TestListApplicable_ExcludesIneligibleAndZeroDiscount(t *testing.T) {
	expired := halfOff()
	expired.ID = 4
	expired.EndsAt = ptr(wednesdayNoon.Add(-time.Hour))

	combo := basePromotion()
	combo.ID = 5
	combo.Type = TypeCombo

	catalog := &fakeCatalog{promos: []Promotion{expired, combo, twoForOne()}}
	svc, _ := newTestService(catalog, scenarioOrder())

	got, err := svc.ListApplicable(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2x1", got[0].Promotion.Name)
}

func TestListApplicable_OrderNotFound(t *testing.T) {
	svc, _ := newTestService(&fakeCatalog{}, scenarioOrder())

	_, err := svc.ListApplicable(context.Background(), 99)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestApply_ScenarioTwoForOne(t *testing.T) {
	catalog := &fakeCatalog{promos: []Promotion{twoForOne()}}
	svc, store := newTestService(catalog, scenarioOrder())

	res, err := svc.Apply(context.Background(), 1, Selector{PromotionID: 1})
	require.NoError(t, err)

	assert.EqualValues(t, 1, res.PromotionID)
	assert.True(t, d("20.00").Equal(res.Discount), "got %s", res.Discount)
	assert.True(t, d("26.40").Equal(res.Total), "got %s", res.Total)

	require.NotNil(t, store.order.AppliedPromotionID)
	assert.EqualValues(t, 1, *store.order.AppliedPromotionID)
	assert.True(t, d("20.00").Equal(store.order.DiscountAmount))
	assert.Equal(t, 1, catalog.promos[0].UsageCount)
}

func TestApply_MissingSelector(t *testing.T) {
	svc, store := newTestService(&fakeCatalog{promos: []Promotion{halfOff()}}, scenarioOrder())

	_, err := svc.Apply(context.Background(), 1, Selector{})
	require.ErrorIs(t, err, ErrMissingSelector)
	assert.Empty(t, store.locks, "no read may happen before input validation")
}

func TestApply_PromotionNotFound(t *testing.T) {
	svc, _ := newTestService(&fakeCatalog{}, scenarioOrder())

	_, err := svc.Apply(context.Background(), 1, Selector{PromotionID: 42})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestApply_InactivePromotion(t *testing.T) {
	p := halfOff()
	p.Active = false
	svc, store := newTestService(&fakeCatalog{promos: []Promotion{p}}, scenarioOrder())

	_, err := svc.Apply(context.Background(), 1, Selector{PromotionID: p.ID})
	var rv *RuleViolationError
	require.ErrorAs(t, err, &rv)
	assert.Nil(t, store.order.AppliedPromotionID)
}

func TestApply_WrongCode(t *testing.T) {
	p := halfOff()
	p.RequiresCode = true
	p.Code = "VIP"
	svc, store := newTestService(&fakeCatalog{promos: []Promotion{p}}, scenarioOrder())

	_, err := svc.Apply(context.Background(), 1, Selector{PromotionID: p.ID, Code: "WRONG"})
	var rv *RuleViolationError
	require.ErrorAs(t, err, &rv)
	assert.Nil(t, store.order.AppliedPromotionID)
	assert.Equal(t, 0, store.catalog.promos[0].UsageCount)
}

func TestApply_CodeCaseInsensitive(t *testing.T) {
	p := halfOff()
	p.RequiresCode = true
	p.Code = "VIP"
	svc, _ := newTestService(&fakeCatalog{promos: []Promotion{p}}, scenarioOrder())

	_, err := svc.Apply(context.Background(), 1, Selector{PromotionID: p.ID, Code: "vip"})
	require.NoError(t, err)
}

func TestApply_NotEligible(t *testing.T) {
	p := halfOff()
	p.MinAmount = d("100.00")
	svc, store := newTestService(&fakeCatalog{promos: []Promotion{p}}, scenarioOrder())

	_, err := svc.Apply(context.Background(), 1, Selector{PromotionID: p.ID})
	var rv *RuleViolationError
	require.ErrorAs(t, err, &rv)
	assert.Nil(t, store.order.AppliedPromotionID)
}

func TestApply_ZeroDiscountRejected(t *testing.T) {
	p := basePromotion()
	p.ID = 6
	p.Type = TypeCombo
	svc, store := newTestService(&fakeCatalog{promos: []Promotion{p}}, scenarioOrder())

	_, err := svc.Apply(context.Background(), 1, Selector{PromotionID: p.ID})
	var rv *RuleViolationError
	require.ErrorAs(t, err, &rv)
	assert.Nil(t, store.order.AppliedPromotionID)
	assert.Equal(t, 0, store.catalog.promos[0].UsageCount)
}

func TestApply_UsageCapReached(t *testing.T) {
	p := halfOff()
	p.MaxUses = 1
	p.UsageCount = 1
	svc, store := newTestService(&fakeCatalog{promos: []Promotion{p}}, scenarioOrder())

	_, err := svc.Apply(context.Background(), 1, Selector{PromotionID: p.ID})
	var rv *RuleViolationError
	require.ErrorAs(t, err, &rv)
	assert.Contains(t, rv.Reason, "usage cap")
	assert.Nil(t, store.order.AppliedPromotionID)
	assert.Equal(t, 1, store.catalog.promos[0].UsageCount, "counter must stay untouched")
}

func TestApply_CappedUsageCountsUpToTheCap(t *testing.T) {
	p := halfOff()
	p.MaxUses = 2
	catalog := &fakeCatalog{promos: []Promotion{p}}
	svc, _ := newTestService(catalog, scenarioOrder())

	for i := 0; i < 2; i++ {
		_, err := svc.Apply(context.Background(), 1, Selector{PromotionID: p.ID})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, catalog.promos[0].UsageCount)

	_, err := svc.Apply(context.Background(), 1, Selector{PromotionID: p.ID})
	var rv *RuleViolationError
	require.ErrorAs(t, err, &rv)
	assert.Equal(t, 2, catalog.promos[0].UsageCount)
}

func TestApply_PerCustomerCap(t *testing.T) {
	p := halfOff()
	p.MaxUsesPerCustomer = 1
	catalog := &fakeCatalog{promos: []Promotion{p}}
	svc, store := newTestService(catalog, scenarioOrder())

	_, err := svc.Apply(context.Background(), 1, Selector{PromotionID: p.ID, CustomerID: "c-7"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.customerUses["2:c-7"])

	_, err = svc.Apply(context.Background(), 1, Selector{PromotionID: p.ID, CustomerID: "c-7"})
	var rv *RuleViolationError
	require.ErrorAs(t, err, &rv)
	assert.Contains(t, rv.Reason, "customer")

	// A different customer is unaffected.
	_, err = svc.Apply(context.Background(), 1, Selector{PromotionID: p.ID, CustomerID: "c-8"})
	require.NoError(t, err)
}

func TestApply_ByCode(t *testing.T) {
	p := halfOff()
	p.RequiresCode = true
	p.Code = "VIP"
	svc, store := newTestService(&fakeCatalog{promos: []Promotion{p}}, scenarioOrder())

	res, err := svc.Apply(context.Background(), 1, Selector{Code: "VIP"})
	require.NoError(t, err)
	assert.EqualValues(t, p.ID, res.PromotionID)
	require.NotNil(t, store.order.AppliedPromotionID)
}

func TestApply_TwiceReplacesDiscount(t *testing.T) {
	catalog := &fakeCatalog{promos: []Promotion{twoForOne(), halfOff()}}
	svc, store := newTestService(catalog, scenarioOrder())

	_, err := svc.Apply(context.Background(), 1, Selector{PromotionID: 1})
	require.NoError(t, err)

	res, err := svc.Apply(context.Background(), 1, Selector{PromotionID: 2})
	require.NoError(t, err)

	require.NotNil(t, store.order.AppliedPromotionID)
	assert.EqualValues(t, 2, *store.order.AppliedPromotionID)
	assert.True(t, d("20.00").Equal(store.order.DiscountAmount))
	assert.True(t, d("26.40").Equal(res.Total), "discounts replace, never stack")
}

func TestApply_LockOrderIsOrderThenPromotionThenLedger(t *testing.T) {
	p := halfOff()
	p.MaxUses = 5
	p.MaxUsesPerCustomer = 3
	svc, store := newTestService(&fakeCatalog{promos: []Promotion{p}}, scenarioOrder())

	_, err := svc.Apply(context.Background(), 1, Selector{PromotionID: p.ID, CustomerID: "c-1"})
	require.NoError(t, err)
	require.Equal(t, []string{"order:1", "promotion:2", "ledger:2:c-1"}, store.locks)
}

func TestApplyBest(t *testing.T) {
	ten := basePromotion()
	ten.ID = 3
	ten.Name = "10% off"
	ten.Value = d("10")

	catalog := &fakeCatalog{promos: []Promotion{ten, halfOff()}}
	svc, store := newTestService(catalog, scenarioOrder())

	res, err := svc.ApplyBest(context.Background(), 1, "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.PromotionID, "half off beats 10% off")
	assert.True(t, d("20.00").Equal(res.Discount))
	require.NotNil(t, store.order.AppliedPromotionID)
}

func TestApplyBest_CodeGatedPromotionStillApplies(t *testing.T) {
	p := halfOff()
	p.RequiresCode = true
	p.Code = "VIP"
	svc, _ := newTestService(&fakeCatalog{promos: []Promotion{p}}, scenarioOrder())

	res, err := svc.ApplyBest(context.Background(), 1, "")
	require.NoError(t, err)
	assert.EqualValues(t, p.ID, res.PromotionID)
}

func TestApplyBest_NoneApplicable(t *testing.T) {
	svc, _ := newTestService(&fakeCatalog{}, scenarioOrder())

	_, err := svc.ApplyBest(context.Background(), 1, "")
	var rv *RuleViolationError
	require.ErrorAs(t, err, &rv)
	assert.Contains(t, rv.Reason, "no applicable promotion")
}

func TestRemove_RestoresPreApplyTotal(t *testing.T) {
	catalog := &fakeCatalog{promos: []Promotion{halfOff()}}
	svc, store := newTestService(catalog, scenarioOrder())
	before := store.order.Total

	_, err := svc.Apply(context.Background(), 1, Selector{PromotionID: 2})
	require.NoError(t, err)

	res, err := svc.Remove(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, before.Equal(res.Total), "expected %s, got %s", before, res.Total)
	assert.Nil(t, store.order.AppliedPromotionID)
	assert.True(t, store.order.DiscountAmount.IsZero())
	assert.Equal(t, 1, catalog.promos[0].UsageCount, "usage is not reversible")
}

func TestRemove_OrderNotFound(t *testing.T) {
	svc, _ := newTestService(&fakeCatalog{}, scenarioOrder())

	_, err := svc.Remove(context.Background(), 99)
	require.ErrorIs(t, err, order.ErrNotFound)
}
