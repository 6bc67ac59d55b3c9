package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/pagination"
)

// LoyaltyHandler handles HTTP requests for loyalty endpoints.
type LoyaltyHandler struct {
	service LoyaltyService
	logger  *slog.Logger
}

// NewLoyaltyHandler creates a new loyalty HTTP handler.
func NewLoyaltyHandler(svc LoyaltyService, logger *slog.Logger) *LoyaltyHandler {
	return &LoyaltyHandler{
		service: svc,
		logger:  logger,
	}
}

// GetAccount handles GET /api/v1/loyalty
// @Summary Get my loyalty balance and ledger
// @Tags loyalty
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param per_page query int false "Page size"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/v1/loyalty [get]
func (h *LoyaltyHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.History(r.Context(), middleware.UserIDFromContext(r.Context()), pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, summary)
}
