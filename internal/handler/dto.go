package handler

import (
	"github.com/shopspring/decimal"

	"github.com/EmilioM092611/KantarEs-sub000/internal/domain/promotion"
)

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type applyRequest struct {
	PromotionID int64  `json:"promotion_id,omitempty"`
	Code        string `json:"code,omitempty"`
	CustomerID  string `json:"customer_id,omitempty"`
}

type applyBestRequest struct {
	CustomerID string `json:"customer_id,omitempty"`
}

type applicableEntry struct {
	PromotionID  int64           `json:"promotion_id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	Scope        string          `json:"scope"`
	Value        decimal.Decimal `json:"value"`
	Combinable   bool            `json:"combinable"`
	RequiresCode bool            `json:"requires_code"`
	Code         string          `json:"code,omitempty"`
	Discount     decimal.Decimal `json:"discount"`
}

func newApplicableEntry(a promotion.Applicable) applicableEntry {
	return applicableEntry{
		PromotionID:  a.Promotion.ID,
		Name:         a.Promotion.Name,
		Type:         string(a.Promotion.Type),
		Scope:        string(a.Promotion.Scope),
		Value:        a.Promotion.Value,
		Combinable:   a.Promotion.Combinable,
		RequiresCode: a.Promotion.RequiresCode,
		Code:         a.Promotion.Code,
		Discount:     a.Discount,
	}
}

type listResponse struct {
	OrderID    int64             `json:"order_id"`
	Promotions []applicableEntry `json:"promotions"`
}

type applyResponse struct {
	OrderID     int64           `json:"order_id"`
	PromotionID int64           `json:"promotion_id"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
}

func newApplyResponse(res *promotion.ApplyResult) applyResponse {
	return applyResponse{
		OrderID:     res.OrderID,
		PromotionID: res.PromotionID,
		Discount:    res.Discount,
		Total:       res.Total,
	}
}

type removeResponse struct {
	OrderID int64           `json:"order_id"`
	Total   decimal.Decimal `json:"total"`
}
