package handler

import (
	"net/http"

	"github.com/chamahq/chama-backend/internal/middleware"
	"github.com/chamahq/chama-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// RepaymentHandler handles repayment schedule HTTP requests
type RepaymentHandler struct {
	repaymentService *service.RepaymentService
}

// NewRepaymentHandler creates a new RepaymentHandler
func NewRepaymentHandler(repaymentService *service.RepaymentService) *RepaymentHandler {
	return &RepaymentHandler{repaymentService: repaymentService}
}

// GenerateEntryRequest represents the generate repayment entry request body
type GenerateEntryRequest struct {
	MonthYear string `json:"monthYear"`
}

// GenerateEntry handles POST /api/v1/loans/:loanId/schedule/generate
func (h *RepaymentHandler) GenerateEntry(c echo.Context) error {
	actorID := middleware.GetPrincipalID(c)
	loanID, ok := pathUUID(c, "loanId")
	if !ok {
		return NewValidationError(c, "Invalid loan id", nil)
	}

	var req GenerateEntryRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	month, ok := parseMonthYear(req.MonthYear)
	if !ok {
		return NewValidationError(c, "Invalid month", []ValidationError{
			{Field: "monthYear", Message: "Must be in YYYYMM format"},
		})
	}

	entry, created, err := h.repaymentService.GenerateEntry(c.Request().Context(), actorID, loanID, month)
	if err != nil {
		return RespondDomainError(c, err)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, entry)
}

// ListEntries handles GET /api/v1/loans/:loanId/schedule
func (h *RepaymentHandler) ListEntries(c echo.Context) error {
	loanID, ok := pathUUID(c, "loanId")
	if !ok {
		return NewValidationError(c, "Invalid loan id", nil)
	}

	entries, err := h.repaymentService.ListEntries(c.Request().Context(), loanID)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, entries)
}

// GetEntry handles GET /api/v1/repayments/:entryId
func (h *RepaymentHandler) GetEntry(c echo.Context) error {
	entryID, ok := pathUUID(c, "entryId")
	if !ok {
		return NewValidationError(c, "Invalid entry id", nil)
	}

	entry, err := h.repaymentService.GetEntry(c.Request().Context(), entryID)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, entry)
}

// RecordRepaymentRequest represents the record repayment request body
type RecordRepaymentRequest struct {
	Amount string `json:"amount"`
}

// RecordPayment handles POST /api/v1/repayments/:entryId/payments. Requires
// the Idempotency-Key and If-Match headers.
func (h *RepaymentHandler) RecordPayment(c echo.Context) error {
	recorderID := middleware.GetPrincipalID(c)
	entryID, ok := pathUUID(c, "entryId")
	if !ok {
		return NewValidationError(c, "Invalid entry id", nil)
	}
	version, ok := expectedVersion(c)
	if !ok {
		return NewValidationError(c, "Missing or invalid If-Match header", nil)
	}
	key := idempotencyKey(c)
	if key == "" {
		return NewValidationError(c, "Missing Idempotency-Key header", nil)
	}

	var req RecordRepaymentRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return NewValidationError(c, "Invalid amount", []ValidationError{
			{Field: "amount", Message: "Must be a valid decimal number"},
		})
	}

	receipt, err := h.repaymentService.RecordPayment(c.Request().Context(), recorderID, service.RecordRepaymentInput{
		EntryID:         entryID,
		Amount:          amount,
		IdempotencyKey:  key,
		ExpectedVersion: version,
	})
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, receipt)
}
