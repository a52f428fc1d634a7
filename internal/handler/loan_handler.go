package handler

import (
	"net/http"

	"github.com/chamahq/chama-backend/internal/middleware"
	"github.com/chamahq/chama-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// LoanHandler handles loan lifecycle HTTP requests
type LoanHandler struct {
	loanService *service.LoanService
}

// NewLoanHandler creates a new LoanHandler
func NewLoanHandler(loanService *service.LoanService) *LoanHandler {
	return &LoanHandler{loanService: loanService}
}

// RequestLoanRequest represents the loan request body
type RequestLoanRequest struct {
	PrincipalAmount     string  `json:"principalAmount"`
	RequestedStartMonth string  `json:"requestedStartMonth"`
	Purpose             *string `json:"purpose,omitempty"`
}

// RequestLoan handles POST /api/v1/funds/:fundId/loans. The caller becomes
// the borrower.
func (h *LoanHandler) RequestLoan(c echo.Context) error {
	borrowerID := middleware.GetPrincipalID(c)
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}

	var req RequestLoanRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	principal, err := decimal.NewFromString(req.PrincipalAmount)
	if err != nil {
		return NewValidationError(c, "Invalid principal amount", []ValidationError{
			{Field: "principalAmount", Message: "Must be a valid decimal number"},
		})
	}
	startMonth, ok := parseMonthYear(req.RequestedStartMonth)
	if !ok {
		return NewValidationError(c, "Invalid start month", []ValidationError{
			{Field: "requestedStartMonth", Message: "Must be in YYYYMM format"},
		})
	}

	loan, err := h.loanService.RequestLoan(c.Request().Context(), borrowerID, service.RequestLoanInput{
		FundID:              fundID,
		PrincipalAmount:     principal,
		RequestedStartMonth: startMonth,
		Purpose:             req.Purpose,
	})
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusCreated, loan)
}

// ApproveLoanRequest represents the approve loan request body
type ApproveLoanRequest struct {
	ScheduledInstallment string `json:"scheduledInstallment"`
}

// ApproveLoan handles POST /api/v1/loans/:loanId/approve. Requires If-Match.
func (h *LoanHandler) ApproveLoan(c echo.Context) error {
	approverID := middleware.GetPrincipalID(c)
	loanID, ok := pathUUID(c, "loanId")
	if !ok {
		return NewValidationError(c, "Invalid loan id", nil)
	}
	version, ok := expectedVersion(c)
	if !ok {
		return NewValidationError(c, "Missing or invalid If-Match header", nil)
	}

	var req ApproveLoanRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	installment, err := decimal.NewFromString(req.ScheduledInstallment)
	if err != nil {
		return NewValidationError(c, "Invalid scheduled installment", []ValidationError{
			{Field: "scheduledInstallment", Message: "Must be a valid decimal number"},
		})
	}

	loan, err := h.loanService.ApproveLoan(c.Request().Context(), approverID, service.ApproveLoanInput{
		LoanID:               loanID,
		ScheduledInstallment: installment,
		ExpectedVersion:      version,
	})
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, loan)
}

// RejectLoanRequest represents the reject loan request body
type RejectLoanRequest struct {
	Reason string `json:"reason"`
}

// RejectLoan handles POST /api/v1/loans/:loanId/reject. Requires If-Match.
func (h *LoanHandler) RejectLoan(c echo.Context) error {
	actorID := middleware.GetPrincipalID(c)
	loanID, ok := pathUUID(c, "loanId")
	if !ok {
		return NewValidationError(c, "Invalid loan id", nil)
	}
	version, ok := expectedVersion(c)
	if !ok {
		return NewValidationError(c, "Missing or invalid If-Match header", nil)
	}

	var req RejectLoanRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	loan, err := h.loanService.RejectLoan(c.Request().Context(), actorID, loanID, req.Reason, version)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, loan)
}

// GetLoan handles GET /api/v1/loans/:loanId
func (h *LoanHandler) GetLoan(c echo.Context) error {
	loanID, ok := pathUUID(c, "loanId")
	if !ok {
		return NewValidationError(c, "Invalid loan id", nil)
	}

	loan, err := h.loanService.GetLoan(c.Request().Context(), loanID)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, loan)
}

// ListLoans handles GET /api/v1/funds/:fundId/loans
func (h *LoanHandler) ListLoans(c echo.Context) error {
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}

	loans, err := h.loanService.ListLoans(c.Request().Context(), fundID)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, loans)
}
