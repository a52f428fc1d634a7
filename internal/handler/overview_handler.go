package handler

import (
	"net/http"

	"github.com/chamahq/chama-backend/internal/service"
	"github.com/labstack/echo/v4"
)

// OverviewHandler handles fund dashboard HTTP requests
type OverviewHandler struct {
	overviewService *service.OverviewService
}

// NewOverviewHandler creates a new OverviewHandler
func NewOverviewHandler(overviewService *service.OverviewService) *OverviewHandler {
	return &OverviewHandler{overviewService: overviewService}
}

// GetOverview handles GET /api/v1/funds/:fundId/overview
func (h *OverviewHandler) GetOverview(c echo.Context) error {
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}

	overview, err := h.overviewService.GetOverview(c.Request().Context(), fundID)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, overview)
}
