package handler

import (
	"net/http"

	"github.com/chamahq/chama-backend/internal/middleware"
	"github.com/chamahq/chama-backend/internal/service"
	"github.com/labstack/echo/v4"
)

// InvitationHandler handles membership invitation HTTP requests
type InvitationHandler struct {
	invitationService *service.InvitationService
}

// NewInvitationHandler creates a new InvitationHandler
func NewInvitationHandler(invitationService *service.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitationService: invitationService}
}

// SendInvitationRequest represents the send invitation request body
type SendInvitationRequest struct {
	TargetContact string `json:"targetContact"`
}

// SendInvitation handles POST /api/v1/funds/:fundId/invitations
func (h *InvitationHandler) SendInvitation(c echo.Context) error {
	inviterID := middleware.GetPrincipalID(c)
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}

	var req SendInvitationRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	if req.TargetContact == "" {
		return NewValidationError(c, "Missing target contact", []ValidationError{
			{Field: "targetContact", Message: "Target contact is required"},
		})
	}

	invitation, err := h.invitationService.SendInvitation(c.Request().Context(), inviterID, fundID, req.TargetContact)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusCreated, invitation)
}

// RespondInvitationRequest represents the respond invitation request body
type RespondInvitationRequest struct {
	Accept bool `json:"accept"`
}

// RespondInvitation handles POST /api/v1/invitations/:invitationId/respond
func (h *InvitationHandler) RespondInvitation(c echo.Context) error {
	responderID := middleware.GetPrincipalID(c)
	invitationID, ok := pathUUID(c, "invitationId")
	if !ok {
		return NewValidationError(c, "Invalid invitation id", nil)
	}

	var req RespondInvitationRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	invitation, err := h.invitationService.Respond(c.Request().Context(), responderID, invitationID, req.Accept)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, invitation)
}

// ListInvitations handles GET /api/v1/funds/:fundId/invitations
func (h *InvitationHandler) ListInvitations(c echo.Context) error {
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}

	invitations, err := h.invitationService.ListInvitations(c.Request().Context(), fundID)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, invitations)
}
