// Package handler exposes the promotion engine over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/EmilioM092611/KantarEs-sub000/internal/domain/order"
	"github.com/EmilioM092611/KantarEs-sub000/internal/domain/promotion"
)

// PromotionService is the slice of the selection strategy the transport needs.
type PromotionService interface {
	ListApplicable(ctx context.Context, orderID int64) ([]promotion.Applicable, error)
	Apply(ctx context.Context, orderID int64, sel promotion.Selector) (*promotion.ApplyResult, error)
	ApplyBest(ctx context.Context, orderID int64, customerID string) (*promotion.ApplyResult, error)
	Remove(ctx context.Context, orderID int64) (*promotion.RemoveResult, error)
}

var _ PromotionService = (*promotion.Service)(nil)

// Handler maps HTTP requests onto the promotion service and domain errors
// onto status codes.
type Handler struct {
	promotions PromotionService
}

// New constructs a Handler.
func New(promotions PromotionService) *Handler {
	return &Handler{promotions: promotions}
}

// Routes returns the order-promotion routes, mountable under a path prefix.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/orders/{orderID}/promotions", func(r chi.Router) {
		r.Get("/", h.listApplicable)
		r.Post("/apply", h.apply)
		r.Post("/apply-best", h.applyBest)
		r.Delete("/", h.remove)
	})
	return r
}

func (h *Handler) listApplicable(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	applicable, err := h.promotions.ListApplicable(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	entries := make([]applicableEntry, len(applicable))
	for i, a := range applicable {
		entries[i] = newApplicableEntry(a)
	}
	writeJSON(w, r, http.StatusOK, listResponse{OrderID: orderID, Promotions: entries})
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.promotions.Apply(r.Context(), orderID, promotion.Selector{
		PromotionID: req.PromotionID,
		Code:        req.Code,
		CustomerID:  req.CustomerID,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newApplyResponse(res))
}

func (h *Handler) applyBest(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req applyBestRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	res, err := h.promotions.ApplyBest(r.Context(), orderID, req.CustomerID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newApplyResponse(res))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	res, err := h.promotions.Remove(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, removeResponse{OrderID: res.OrderID, Total: res.Total})
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}

// writeDomainError maps the engine's error taxonomy to status codes:
// not-found to 404, missing selector to 400, rule violations to 422.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrNotFound), errors.Is(err, promotion.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, promotion.ErrMissingSelector):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		var rv *promotion.RuleViolationError
		if errors.As(err, &rv) {
			writeError(w, r, http.StatusUnprocessableEntity, rv.Reason)
			return
		}
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, errorResponse{Code: status, Message: message})
}
