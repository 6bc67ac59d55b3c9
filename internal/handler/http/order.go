package http

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/pagination"
	"github.com/utafrali/storefront/pkg/validator"
)

// stripeSignatureHeader carries the card provider's webhook signature.
const stripeSignatureHeader = "Stripe-Signature"

// OrderHandler handles HTTP requests for order, admin and payment callback
// endpoints.
type OrderHandler struct {
	service OrderService
	logger  *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CancelOrderRequest is the optional JSON body for cancelling an order.
type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// UpdateStatusRequest is the JSON request body for an admin status change.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

// PaymentOutcomeRequest records an offline payment result reported by staff.
type PaymentOutcomeRequest struct {
	Outcome   string `json:"outcome" validate:"required,oneof=paid failed"`
	Reference string `json:"reference" validate:"max=128"`
	Reason    string `json:"reason" validate:"max=500"`
}

// --- Handlers ---

// ListOrders handles GET /api/v1/orders
// @Summary List my orders
// @Tags orders
// @Produce json
// @Param page query int false "Page number"
// @Param per_page query int false "Page size"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/v1/orders [get]
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	p := pagination.FromRequest(r)

	orders, total, err := h.service.ListOrders(r.Context(), actorFromRequest(r), p)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, pagination.NewResult(orders, total, p))
}

// GetOrder handles GET /api/v1/orders/{number}
// @Summary Get an order by number
// @Description Guests may read orders placed with their session token.
// @Tags orders
// @Produce json
// @Param number path string true "Order number"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/orders/{number} [get]
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), actorFromRequest(r), chi.URLParam(r, "number"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, order)
}

// CancelOrder handles POST /api/v1/orders/{number}/cancel
// @Summary Cancel an order
// @Description Restores stock, reverses the bundle sale and refunds redeemed points.
// @Tags orders
// @Accept json
// @Produce json
// @Param number path string true "Order number"
// @Param request body CancelOrderRequest false "Cancellation reason"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/v1/orders/{number}/cancel [post]
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	httputil.DecodeBody(w, r)

	var req CancelOrderRequest
	if r.ContentLength != 0 {
		if err := validator.DecodeAndValidate(r, &req); err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
	}

	order, err := h.service.CancelOrder(r.Context(), actorFromRequest(r), chi.URLParam(r, "number"), req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, order)
}

// UpdateStatus handles PATCH /api/v1/admin/orders/{number}/status
// @Summary Move an order through its status lifecycle
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param number path string true "Order number"
// @Param request body UpdateStatusRequest true "Target status"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/v1/admin/orders/{number}/status [patch]
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	httputil.DecodeBody(w, r)

	var req UpdateStatusRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "number"), req.Status, req.Note, changedBy(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, order)
}

// RecordPayment handles POST /api/v1/admin/orders/{number}/payment
// @Summary Record an offline payment result
// @Description Used for cash on delivery and bank transfer orders.
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param number path string true "Order number"
// @Param request body PaymentOutcomeRequest true "Payment outcome"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/v1/admin/orders/{number}/payment [post]
func (h *OrderHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	httputil.DecodeBody(w, r)

	var req PaymentOutcomeRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	number := chi.URLParam(r, "number")
	var (
		order *domain.Order
		err   error
	)
	if req.Outcome == "paid" {
		order, err = h.service.ConfirmPayment(r.Context(), number, req.Reference)
	} else {
		order, err = h.service.FailPayment(r.Context(), number, req.Reason)
	}
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, order)
}

// PaymentCallback handles POST /api/v1/payments/{method}/callback
// @Summary Receive a payment provider callback
// @Description The raw body is verified against the provider signature.
// @Tags payments
// @Accept json
// @Produce json
// @Param method path string true "Payment method"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/v1/payments/{method}/callback [post]
func (h *OrderHandler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	httputil.DecodeBody(w, r)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("unreadable callback body"), h.logger)
		return
	}

	res, err := h.service.HandlePaymentCallback(r.Context(), chi.URLParam(r, "method"), payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, res)
}
