package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/chamahq/chama-backend/internal/service"
	"github.com/chamahq/chama-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const validFundBody = `{
	"name": "Umoja Savings Circle",
	"currency": "KES",
	"config": {
		"monthlyInterestRate": "0.02",
		"minimumMonthlyContribution": "100.00",
		"minimumPrincipalPerRepayment": "500.00",
		"loanApprovalPolicy": "admin_only",
		"overduePenaltyType": "percentage",
		"overduePenaltyValue": "5",
		"contributionDayOfMonth": 5,
		"gracePeriodDays": 3
	}
}`

func newFundHandler() (*FundHandler, *testutil.MockFundRepository) {
	fundRepo := testutil.NewMockFundRepository()
	fundService := service.NewFundService(fundRepo, nil, nil)
	return NewFundHandler(fundService), fundRepo
}

func TestCreateFund_Success(t *testing.T) {
	e := echo.New()
	handler, fundRepo := newFundHandler()

	req := newJSONRequest(http.MethodPost, "/api/v1/funds", validFundBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	creator := uuid.New()
	setupAuthContext(c, creator)

	if err := handler.CreateFund(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var fund domain.Fund
	if err := json.Unmarshal(rec.Body.Bytes(), &fund); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if fund.State != domain.FundStateDraft {
		t.Errorf("Expected state draft, got %s", fund.State)
	}
	if fund.Version != 1 {
		t.Errorf("Expected version 1, got %d", fund.Version)
	}

	role, err := fundRepo.GetRole(c.Request().Context(), fund.ID, creator)
	if err != nil {
		t.Fatalf("Expected creator role, got %v", err)
	}
	if role.Role != domain.RoleAdmin {
		t.Errorf("Expected creator to be admin, got %s", role.Role)
	}
}

func TestCreateFund_InvalidDecimal(t *testing.T) {
	e := echo.New()
	handler, _ := newFundHandler()

	body := `{
		"name": "Bad Config",
		"currency": "KES",
		"config": {
			"monthlyInterestRate": "two percent",
			"minimumMonthlyContribution": "100.00",
			"minimumPrincipalPerRepayment": "500.00",
			"loanApprovalPolicy": "admin_only",
			"overduePenaltyType": "none",
			"overduePenaltyValue": "0",
			"contributionDayOfMonth": 5,
			"gracePeriodDays": 3
		}
	}`
	req := newJSONRequest(http.MethodPost, "/api/v1/funds", body)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	setupAuthContext(c, uuid.New())

	if err := handler.CreateFund(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rec.Code)
	}

	var problem ProblemDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(problem.Errors) == 0 || problem.Errors[0].Field != "monthlyInterestRate" {
		t.Errorf("Expected a monthlyInterestRate field error, got %+v", problem.Errors)
	}
}

func TestUpdateFund_MissingIfMatch(t *testing.T) {
	e := echo.New()
	handler, _ := newFundHandler()

	req := newJSONRequest(http.MethodPatch, "/api/v1/funds/"+uuid.NewString(), `{"description":"hello"}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("fundId")
	c.SetParamValues(uuid.NewString())
	setupAuthContext(c, uuid.New())

	if err := handler.UpdateFund(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestActivateFund_StaleVersion(t *testing.T) {
	e := echo.New()
	handler, fundRepo := newFundHandler()

	fund, err := fundRepo.Create(context.Background(), &domain.Fund{
		ID:       uuid.New(),
		Name:     "Umoja Savings Circle",
		Currency: "KES",
		State:    domain.FundStateDraft,
	})
	if err != nil {
		t.Fatalf("Failed to seed fund: %v", err)
	}
	admin := uuid.New()
	if _, err := fundRepo.AssignRole(context.Background(), &domain.FundRoleAssignment{
		ID: uuid.New(), FundID: fund.ID, UserID: admin, Role: domain.RoleAdmin,
	}); err != nil {
		t.Fatalf("Failed to seed admin: %v", err)
	}

	req := newJSONRequest(http.MethodPost, "/api/v1/funds/"+fund.ID.String()+"/activate", "")
	req.Header.Set("If-Match", `"7"`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("fundId")
	c.SetParamValues(fund.ID.String())
	setupAuthContext(c, admin)

	if err := handler.ActivateFund(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetFund_NotFound(t *testing.T) {
	e := echo.New()
	handler, _ := newFundHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/funds/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("fundId")
	c.SetParamValues(uuid.NewString())

	if err := handler.GetFund(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}
