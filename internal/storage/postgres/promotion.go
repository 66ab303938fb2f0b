package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/EmilioM092611/KantarEs-sub000/internal/domain/promotion"
)

const promotionColumns = `id, name, promo_type, scope, value, starts_at, ends_at,
	start_minute, end_minute, weekdays, min_quantity, min_amount, max_uses,
	max_uses_per_customer, requires_code, code, combinable, active, usage_count`

const (
	listActivePromotionsSQL = `SELECT ` + promotionColumns + `
		FROM promotions WHERE active = TRUE ORDER BY id`

	getPromotionByIDSQL = `SELECT ` + promotionColumns + `
		FROM promotions WHERE id = $1`

	getPromotionByCodeSQL = `SELECT ` + promotionColumns + `
		FROM promotions WHERE UPPER(code) = UPPER($1)`

	getTargetsSQL = `SELECT id, promotion_id, product_id, category_id,
		special_price, required_quantity, bonus_quantity
		FROM promotion_targets WHERE promotion_id = ANY($1) ORDER BY id`
)

var _ promotion.Catalog = (*PromotionStore)(nil)

// PromotionStore implements promotion.Catalog backed by PostgreSQL.
// Lookups return promotions regardless of the active flag; only ListActive
// filters on it.
type PromotionStore struct {
	pool *pgxpool.Pool
}

// NewPromotionStore returns a PromotionStore that uses the given pool.
func NewPromotionStore(pool *pgxpool.Pool) *PromotionStore {
	return &PromotionStore{pool: pool}
}

// ListActive returns every active promotion with its targets loaded.
func (s *PromotionStore) ListActive(ctx context.Context) ([]promotion.Promotion, error) {
	rows, err := s.pool.Query(ctx, listActivePromotionsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing active promotions: %w", err)
	}

	promos, err := pgx.CollectRows(rows, scanPromotion)
	if err != nil {
		return nil, fmt.Errorf("listing active promotions: %w", err)
	}

	if err := s.attachTargets(ctx, promos); err != nil {
		return nil, err
	}
	return promos, nil
}

// GetByID looks up one promotion. Returns promotion.ErrNotFound when the id
// does not resolve.
func (s *PromotionStore) GetByID(ctx context.Context, id int64) (*promotion.Promotion, error) {
	return s.getOne(ctx, getPromotionByIDSQL, id)
}

// GetByCode looks up one promotion by its code, case-insensitively.
// Returns promotion.ErrNotFound when the code does not resolve.
func (s *PromotionStore) GetByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	return s.getOne(ctx, getPromotionByCodeSQL, code)
}

func (s *PromotionStore) getOne(ctx context.Context, sql string, arg any) (*promotion.Promotion, error) {
	rows, err := s.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("finding promotion: %w", err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, fmt.Errorf("finding promotion: %w", err)
	}

	promos := []promotion.Promotion{p}
	if err := s.attachTargets(ctx, promos); err != nil {
		return nil, err
	}
	return &promos[0], nil
}

// attachTargets loads the targets for all given promotions in one query and
// attaches them in place.
func (s *PromotionStore) attachTargets(ctx context.Context, promos []promotion.Promotion) error {
	if len(promos) == 0 {
		return nil
	}

	ids := make([]int64, len(promos))
	byID := make(map[int64]*promotion.Promotion, len(promos))
	for i := range promos {
		ids[i] = promos[i].ID
		byID[promos[i].ID] = &promos[i]
	}

	rows, err := s.pool.Query(ctx, getTargetsSQL, ids)
	if err != nil {
		return fmt.Errorf("loading promotion targets: %w", err)
	}

	targets, err := pgx.CollectRows(rows, scanTarget)
	if err != nil {
		return fmt.Errorf("loading promotion targets: %w", err)
	}

	for _, t := range targets {
		if p, ok := byID[t.PromotionID]; ok {
			p.Targets = append(p.Targets, t)
		}
	}
	return nil
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p           promotion.Promotion
		promoType   string
		scope       string
		startMinute *int32
		endMinute   *int32
		weekdays    []int32
		code        *string
	)
	err := row.Scan(
		&p.ID, &p.Name, &promoType, &scope, &p.Value, &p.StartsAt, &p.EndsAt,
		&startMinute, &endMinute, &weekdays, &p.MinQuantity, &p.MinAmount,
		&p.MaxUses, &p.MaxUsesPerCustomer, &p.RequiresCode, &code,
		&p.Combinable, &p.Active, &p.UsageCount,
	)
	if err != nil {
		return promotion.Promotion{}, err
	}

	// Enum validation happens once, here at the storage boundary.
	if p.Type, err = promotion.ParseType(promoType); err != nil {
		return promotion.Promotion{}, errors.Wrapf(err, "promotion %d", p.ID)
	}
	if p.Scope, err = promotion.ParseScope(scope); err != nil {
		return promotion.Promotion{}, errors.Wrapf(err, "promotion %d", p.ID)
	}

	if startMinute != nil {
		m := int(*startMinute)
		p.StartMinute = &m
	}
	if endMinute != nil {
		m := int(*endMinute)
		p.EndMinute = &m
	}
	if len(weekdays) > 0 {
		p.Weekdays = make([]time.Weekday, len(weekdays))
		for i, wd := range weekdays {
			p.Weekdays[i] = time.Weekday(wd)
		}
	}
	if code != nil {
		p.Code = *code
	}
	return p, nil
}

func scanTarget(row pgx.CollectableRow) (promotion.Target, error) {
	var (
		t            promotion.Target
		specialPrice *decimal.Decimal
	)
	err := row.Scan(
		&t.ID, &t.PromotionID, &t.ProductID, &t.CategoryID,
		&specialPrice, &t.RequiredQuantity, &t.BonusQuantity,
	)
	t.SpecialPrice = specialPrice
	return t, err
}
