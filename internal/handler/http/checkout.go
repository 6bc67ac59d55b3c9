package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/storefront/internal/service"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
)

const (
	// IdempotencyKeyHeader lets clients retry place-order safely.
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader is set on responses that replay an earlier order.
	ReplayedHeader = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 128
)

// CheckoutHandler handles HTTP requests for checkout endpoints.
type CheckoutHandler struct {
	service CheckoutService
	logger  *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(svc CheckoutService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Handlers ---

// ShippingMethods handles GET /api/v1/checkout/shipping-methods
// @Summary List shipping methods for a city
// @Description Prices every method serving the city for the current cart.
// @Tags checkout
// @Produce json
// @Param city query string true "Destination city"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 502 {object} map[string]interface{}
// @Router /api/v1/checkout/shipping-methods [get]
func (h *CheckoutHandler) ShippingMethods(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("city query parameter is required"), h.logger)
		return
	}

	options, err := h.service.ShippingMethods(r.Context(), actorFromRequest(r), city)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, options)
}

// Preview handles POST /api/v1/checkout/preview
// @Summary Preview order totals
// @Description Non-binding estimate. An invalid coupon is reported, not rejected.
// @Tags checkout
// @Accept json
// @Produce json
// @Param request body service.PreviewInput true "Destination, method and points"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/v1/checkout/preview [post]
func (h *CheckoutHandler) Preview(w http.ResponseWriter, r *http.Request) {
	httputil.DecodeBody(w, r)

	var req service.PreviewInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	preview, err := h.service.Preview(r.Context(), actorFromRequest(r), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, preview)
}

// PlaceOrder handles POST /api/v1/checkout/orders
// @Summary Place an order from the current cart
// @Description Reserves stock, redeems the coupon and loyalty points, and creates the
// @Description order in one transaction. Retrying with the same Idempotency-Key
// @Description returns the first order with status 200 and Idempotent-Replayed: true.
// @Tags checkout
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Client generated retry key"
// @Param request body service.PlaceOrderInput true "Contact, address, shipping and payment"
// @Success 201 {object} map[string]interface{}
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/v1/checkout/orders [post]
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if len(key) > maxIdempotencyKeyLen {
		httputil.WriteError(w, r, apperrors.InvalidInput("Idempotency-Key must be at most 128 characters"), h.logger)
		return
	}

	httputil.DecodeBody(w, r)

	var req service.PlaceOrderInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	res, err := h.service.PlaceOrder(r.Context(), actorFromRequest(r), req, key)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		w.Header().Set(ReplayedHeader, "true")
		status = http.StatusOK
	}
	httputil.WriteData(w, status, res)
}
