package handler

import (
	"net/http"

	"github.com/chamahq/chama-backend/internal/middleware"
	"github.com/chamahq/chama-backend/internal/service"
	"github.com/labstack/echo/v4"
)

// DissolutionHandler handles dissolution settlement HTTP requests
type DissolutionHandler struct {
	dissolutionService *service.DissolutionService
}

// NewDissolutionHandler creates a new DissolutionHandler
func NewDissolutionHandler(dissolutionService *service.DissolutionService) *DissolutionHandler {
	return &DissolutionHandler{dissolutionService: dissolutionService}
}

// RecalculateSettlement handles POST /api/v1/funds/:fundId/settlement/recalculate
func (h *DissolutionHandler) RecalculateSettlement(c echo.Context) error {
	actorID := middleware.GetPrincipalID(c)
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}

	view, err := h.dissolutionService.Recalculate(c.Request().Context(), actorID, fundID)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, view)
}

// GetSettlement handles GET /api/v1/funds/:fundId/settlement
func (h *DissolutionHandler) GetSettlement(c echo.Context) error {
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}

	view, err := h.dissolutionService.GetSettlement(c.Request().Context(), fundID)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, view)
}

// ConfirmSettlement handles POST /api/v1/funds/:fundId/settlement/confirm.
// The If-Match header carries the fund version; confirming moves the fund to
// Dissolved in the same transaction.
func (h *DissolutionHandler) ConfirmSettlement(c echo.Context) error {
	actorID := middleware.GetPrincipalID(c)
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}
	version, ok := expectedVersion(c)
	if !ok {
		return NewValidationError(c, "Missing or invalid If-Match header", nil)
	}

	settlement, err := h.dissolutionService.Confirm(c.Request().Context(), actorID, fundID, version)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, settlement)
}
