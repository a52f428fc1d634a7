package handler

import (
	"net/http"
	"time"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/chamahq/chama-backend/internal/middleware"
	"github.com/chamahq/chama-backend/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// ContributionHandler handles contribution due and ledger HTTP requests
type ContributionHandler struct {
	contributionService *service.ContributionService
}

// NewContributionHandler creates a new ContributionHandler
func NewContributionHandler(contributionService *service.ContributionService) *ContributionHandler {
	return &ContributionHandler{contributionService: contributionService}
}

// GenerateDuesRequest represents the generate dues request body
type GenerateDuesRequest struct {
	MonthYear string `json:"monthYear"`
}

// GenerateDues handles POST /api/v1/funds/:fundId/dues/generate
func (h *ContributionHandler) GenerateDues(c echo.Context) error {
	actorID := middleware.GetPrincipalID(c)
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}

	var req GenerateDuesRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	month, ok := parseMonthYear(req.MonthYear)
	if !ok {
		return NewValidationError(c, "Invalid month", []ValidationError{
			{Field: "monthYear", Message: "Must be in YYYYMM format"},
		})
	}

	result, err := h.contributionService.GenerateDues(c.Request().Context(), actorID, fundID, month)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// ListDues handles GET /api/v1/funds/:fundId/dues?month=YYYYMM
func (h *ContributionHandler) ListDues(c echo.Context) error {
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}
	month, ok := parseMonthYear(c.QueryParam("month"))
	if !ok {
		return NewValidationError(c, "Invalid month", []ValidationError{
			{Field: "month", Message: "Must be in YYYYMM format"},
		})
	}

	dues, err := h.contributionService.ListDues(c.Request().Context(), fundID, month)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, dues)
}

// GetDue handles GET /api/v1/dues/:dueId
func (h *ContributionHandler) GetDue(c echo.Context) error {
	dueID, ok := pathUUID(c, "dueId")
	if !ok {
		return NewValidationError(c, "Invalid due id", nil)
	}

	due, err := h.contributionService.GetDue(c.Request().Context(), dueID)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, due)
}

// RecordContributionRequest represents the record contribution payment body
type RecordContributionRequest struct {
	Amount string `json:"amount"`
}

// RecordPayment handles POST /api/v1/dues/:dueId/payments. Requires the
// Idempotency-Key and If-Match headers.
func (h *ContributionHandler) RecordPayment(c echo.Context) error {
	actorID := middleware.GetPrincipalID(c)
	dueID, ok := pathUUID(c, "dueId")
	if !ok {
		return NewValidationError(c, "Invalid due id", nil)
	}
	version, ok := expectedVersion(c)
	if !ok {
		return NewValidationError(c, "Missing or invalid If-Match header", nil)
	}
	key := idempotencyKey(c)
	if key == "" {
		return NewValidationError(c, "Missing Idempotency-Key header", nil)
	}

	var req RecordContributionRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return NewValidationError(c, "Invalid amount", []ValidationError{
			{Field: "amount", Message: "Must be a valid decimal number"},
		})
	}

	due, err := h.contributionService.RecordPayment(c.Request().Context(), actorID, service.RecordContributionInput{
		DueID:           dueID,
		Amount:          amount,
		IdempotencyKey:  key,
		ExpectedVersion: version,
	})
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, due)
}

// GetStatement handles GET /api/v1/funds/:fundId/transactions with optional
// type, userId, from, and to filters
func (h *ContributionHandler) GetStatement(c echo.Context) error {
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}

	var filter domain.TransactionFilter
	if raw := c.QueryParam("type"); raw != "" {
		t := domain.TransactionType(raw)
		filter.Type = &t
	}
	if raw := c.QueryParam("userId"); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return NewValidationError(c, "Invalid user id", []ValidationError{
				{Field: "userId", Message: "Must be a valid UUID"},
			})
		}
		filter.UserID = &userID
	}
	if raw := c.QueryParam("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return NewValidationError(c, "Invalid from timestamp", []ValidationError{
				{Field: "from", Message: "Must be RFC 3339"},
			})
		}
		filter.From = &from
	}
	if raw := c.QueryParam("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return NewValidationError(c, "Invalid to timestamp", []ValidationError{
				{Field: "to", Message: "Must be RFC 3339"},
			})
		}
		filter.To = &to
	}

	txns, err := h.contributionService.GetStatement(c.Request().Context(), fundID, filter)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, txns)
}

// BalanceResponse reports the current fund pool balance
type BalanceResponse struct {
	FundID  uuid.UUID `json:"fundId"`
	Balance string    `json:"balance"`
}

// GetBalance handles GET /api/v1/funds/:fundId/balance
func (h *ContributionHandler) GetBalance(c echo.Context) error {
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}

	balance, err := h.contributionService.GetBalance(c.Request().Context(), fundID)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, BalanceResponse{FundID: fundID, Balance: balance.StringFixed(2)})
}
