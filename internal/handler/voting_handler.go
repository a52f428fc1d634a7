package handler

import (
	"net/http"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/chamahq/chama-backend/internal/middleware"
	"github.com/chamahq/chama-backend/internal/service"
	"github.com/labstack/echo/v4"
)

// VotingHandler handles loan voting HTTP requests
type VotingHandler struct {
	votingService *service.VotingService
}

// NewVotingHandler creates a new VotingHandler
func NewVotingHandler(votingService *service.VotingService) *VotingHandler {
	return &VotingHandler{votingService: votingService}
}

// StartVotingRequest represents the start voting request body
type StartVotingRequest struct {
	WindowHours    int    `json:"windowHours"`
	ThresholdType  string `json:"thresholdType"`
	ThresholdValue int    `json:"thresholdValue"`
}

// StartVoting handles POST /api/v1/loans/:loanId/voting
func (h *VotingHandler) StartVoting(c echo.Context) error {
	actorID := middleware.GetPrincipalID(c)
	loanID, ok := pathUUID(c, "loanId")
	if !ok {
		return NewValidationError(c, "Invalid loan id", nil)
	}

	var req StartVotingRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	session, err := h.votingService.StartVoting(c.Request().Context(), actorID, service.StartVotingInput{
		LoanID:         loanID,
		WindowHours:    req.WindowHours,
		ThresholdType:  domain.ThresholdType(req.ThresholdType),
		ThresholdValue: req.ThresholdValue,
	})
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusCreated, session)
}

// CastVoteRequest represents the cast vote request body
type CastVoteRequest struct {
	Decision string `json:"decision"`
}

// CastVote handles POST /api/v1/voting/:sessionId/votes. The caller is the
// voter; one vote per member per session.
func (h *VotingHandler) CastVote(c echo.Context) error {
	voterID := middleware.GetPrincipalID(c)
	sessionID, ok := pathUUID(c, "sessionId")
	if !ok {
		return NewValidationError(c, "Invalid session id", nil)
	}

	var req CastVoteRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	vote, err := h.votingService.CastVote(c.Request().Context(), voterID, sessionID, domain.VoteDecision(req.Decision))
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusCreated, vote)
}

// FinaliseVotingRequest represents the finalise voting request body. The
// decision is the admin's ruling and may override the tally.
type FinaliseVotingRequest struct {
	Decision string `json:"decision"`
}

// FinaliseVoting handles POST /api/v1/voting/:sessionId/finalise
func (h *VotingHandler) FinaliseVoting(c echo.Context) error {
	adminID := middleware.GetPrincipalID(c)
	sessionID, ok := pathUUID(c, "sessionId")
	if !ok {
		return NewValidationError(c, "Invalid session id", nil)
	}

	var req FinaliseVotingRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	session, err := h.votingService.FinaliseVoting(c.Request().Context(), adminID, sessionID, domain.VotingResult(req.Decision))
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, session)
}

// GetSession handles GET /api/v1/voting/:sessionId
func (h *VotingHandler) GetSession(c echo.Context) error {
	sessionID, ok := pathUUID(c, "sessionId")
	if !ok {
		return NewValidationError(c, "Invalid session id", nil)
	}

	session, err := h.votingService.GetSession(c.Request().Context(), sessionID)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, session)
}

// GetSessionForLoan handles GET /api/v1/loans/:loanId/voting
func (h *VotingHandler) GetSessionForLoan(c echo.Context) error {
	loanID, ok := pathUUID(c, "loanId")
	if !ok {
		return NewValidationError(c, "Invalid loan id", nil)
	}

	session, err := h.votingService.GetSessionForLoan(c.Request().Context(), loanID)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, session)
}
