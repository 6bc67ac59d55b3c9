package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
)

// CartHandler handles HTTP requests for cart and bundle endpoints.
type CartHandler struct {
	service CartService
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc CartService, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// UpdateQuantityRequest is the JSON request body for changing a line quantity.
// Zero removes the line.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=0,lte=99"`
}

// ApplyCouponRequest is the JSON request body for applying a coupon.
type ApplyCouponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// QuoteBundleRequest is the JSON request body for pricing a bundle selection.
type QuoteBundleRequest struct {
	Selection domain.Selection `json:"selection" validate:"omitempty,dive"`
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
// @Summary Get the current cart
// @Description Returns the priced cart of the signed-in user or the guest session.
// @Tags cart
// @Produce json
// @Param X-Session-Token header string false "Guest session token"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/v1/cart [get]
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetCart(r.Context(), actorFromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, view)
}

// AddItem handles POST /api/v1/cart/items
// @Summary Add a product to the cart
// @Tags cart
// @Accept json
// @Produce json
// @Param request body service.AddItemInput true "Product and quantity"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/v1/cart/items [post]
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	httputil.DecodeBody(w, r)

	var req service.AddItemInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	view, err := h.service.AddItem(r.Context(), actorFromRequest(r), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, view)
}

// UpdateItemQuantity handles PATCH /api/v1/cart/items/{itemID}
// @Summary Change the quantity of a cart line
// @Tags cart
// @Accept json
// @Produce json
// @Param itemID path string true "Cart line ID"
// @Param request body UpdateQuantityRequest true "New quantity"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/v1/cart/items/{itemID} [patch]
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	httputil.DecodeBody(w, r)

	var req UpdateQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	view, err := h.service.UpdateItemQuantity(r.Context(), actorFromRequest(r), chi.URLParam(r, "itemID"), req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, view)
}

// RemoveItem handles DELETE /api/v1/cart/items/{itemID}
// @Summary Remove a cart line
// @Tags cart
// @Produce json
// @Param itemID path string true "Cart line ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/cart/items/{itemID} [delete]
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.RemoveItem(r.Context(), actorFromRequest(r), chi.URLParam(r, "itemID"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, view)
}

// ClearCart handles DELETE /api/v1/cart
// @Summary Empty the cart
// @Tags cart
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/cart [delete]
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.ClearCart(r.Context(), actorFromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, view)
}

// ApplyCoupon handles POST /api/v1/cart/coupon
// @Summary Apply a coupon code
// @Description Validates the code against the current cart and attaches it.
// @Tags cart
// @Accept json
// @Produce json
// @Param request body ApplyCouponRequest true "Coupon code"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/v1/cart/coupon [post]
func (h *CartHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	httputil.DecodeBody(w, r)

	var req ApplyCouponRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	view, err := h.service.ApplyCoupon(r.Context(), actorFromRequest(r), req.Code)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, view)
}

// RemoveCoupon handles DELETE /api/v1/cart/coupon
// @Summary Remove the applied coupon
// @Tags cart
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/cart/coupon [delete]
func (h *CartHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.RemoveCoupon(r.Context(), actorFromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, view)
}

// MergeCart handles POST /api/v1/cart/merge
// @Summary Merge the guest cart into the user's cart
// @Description Requires both a bearer token and the guest X-Session-Token.
// @Tags cart
// @Produce json
// @Param X-Session-Token header string true "Guest session token"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/v1/cart/merge [post]
func (h *CartHandler) MergeCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.MergeFromSession(r.Context(), actorFromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, view)
}

// AddBundle handles POST /api/v1/cart/bundles
// @Summary Add a bundle to the cart
// @Description Configurable bundles require a slot selection.
// @Tags cart
// @Accept json
// @Produce json
// @Param request body service.AddBundleInput true "Bundle, selection and quantity"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/v1/cart/bundles [post]
func (h *CartHandler) AddBundle(w http.ResponseWriter, r *http.Request) {
	httputil.DecodeBody(w, r)

	var req service.AddBundleInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	view, err := h.service.AddBundle(r.Context(), actorFromRequest(r), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, view)
}

// RemoveBundle handles DELETE /api/v1/cart/bundles/{bundleID}
// @Summary Remove every line of a bundle from the cart
// @Tags cart
// @Produce json
// @Param bundleID path string true "Bundle ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/cart/bundles/{bundleID} [delete]
func (h *CartHandler) RemoveBundle(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.RemoveBundle(r.Context(), actorFromRequest(r), chi.URLParam(r, "bundleID"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, view)
}

// QuoteBundle handles POST /api/v1/bundles/{bundleID}/quote
// @Summary Price a bundle selection
// @Description Returns original and discounted prices without touching the cart.
// @Tags bundles
// @Accept json
// @Produce json
// @Param bundleID path string true "Bundle ID"
// @Param request body QuoteBundleRequest false "Slot selection"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/bundles/{bundleID}/quote [post]
func (h *CartHandler) QuoteBundle(w http.ResponseWriter, r *http.Request) {
	httputil.DecodeBody(w, r)

	var req QuoteBundleRequest
	if r.ContentLength != 0 {
		if err := validator.DecodeAndValidate(r, &req); err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
	}

	quote, err := h.service.QuoteBundle(r.Context(), chi.URLParam(r, "bundleID"), req.Selection)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, quote)
}
