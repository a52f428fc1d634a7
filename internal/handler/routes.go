package handler

import (
	"github.com/chamahq/chama-backend/internal/middleware"
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up all API routes
func RegisterRoutes(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, rateLimiter *middleware.RateLimiter, fundHandler *FundHandler, contributionHandler *ContributionHandler, loanHandler *LoanHandler, repaymentHandler *RepaymentHandler, votingHandler *VotingHandler, dissolutionHandler *DissolutionHandler, invitationHandler *InvitationHandler, overviewHandler *OverviewHandler, wsHandler *WebSocketHandler) {
	// API version 1
	api := e.Group("/api/v1")
	api.Use(authMiddleware.Authenticate())
	api.Use(middleware.RateLimitMiddleware(rateLimiter))

	// Fund lifecycle and membership
	funds := api.Group("/funds")
	funds.POST("", fundHandler.CreateFund)
	funds.GET("/:fundId", fundHandler.GetFund)
	funds.PATCH("/:fundId", fundHandler.UpdateFund)
	funds.PUT("/:fundId/configuration", fundHandler.UpdateConfiguration)
	funds.POST("/:fundId/activate", fundHandler.ActivateFund)
	funds.POST("/:fundId/dissolve", fundHandler.InitiateDissolution)
	funds.GET("/:fundId/members", fundHandler.ListMembers)
	funds.POST("/:fundId/members", fundHandler.AssignRole)
	funds.PUT("/:fundId/members/:userId/role", fundHandler.ChangeRole)
	funds.DELETE("/:fundId/members/:userId", fundHandler.RemoveMember)
	funds.GET("/:fundId/plans", fundHandler.ListMemberPlans)
	funds.POST("/:fundId/plans", fundHandler.AddMemberPlan)
	funds.GET("/:fundId/overview", overviewHandler.GetOverview)

	// Invitations
	funds.GET("/:fundId/invitations", invitationHandler.ListInvitations)
	funds.POST("/:fundId/invitations", invitationHandler.SendInvitation)
	invitations := api.Group("/invitations")
	invitations.POST("/:invitationId/respond", invitationHandler.RespondInvitation)

	// Contribution dues and the ledger
	funds.POST("/:fundId/dues/generate", contributionHandler.GenerateDues)
	funds.GET("/:fundId/dues", contributionHandler.ListDues)
	funds.GET("/:fundId/transactions", contributionHandler.GetStatement)
	funds.GET("/:fundId/balance", contributionHandler.GetBalance)
	dues := api.Group("/dues")
	dues.GET("/:dueId", contributionHandler.GetDue)
	dues.POST("/:dueId/payments", contributionHandler.RecordPayment)

	// Loans
	funds.GET("/:fundId/loans", loanHandler.ListLoans)
	funds.POST("/:fundId/loans", loanHandler.RequestLoan)
	loans := api.Group("/loans")
	loans.GET("/:loanId", loanHandler.GetLoan)
	loans.POST("/:loanId/approve", loanHandler.ApproveLoan)
	loans.POST("/:loanId/reject", loanHandler.RejectLoan)

	// Repayment schedule
	loans.GET("/:loanId/schedule", repaymentHandler.ListEntries)
	loans.POST("/:loanId/schedule/generate", repaymentHandler.GenerateEntry)
	repayments := api.Group("/repayments")
	repayments.GET("/:entryId", repaymentHandler.GetEntry)
	repayments.POST("/:entryId/payments", repaymentHandler.RecordPayment)

	// Voting
	loans.GET("/:loanId/voting", votingHandler.GetSessionForLoan)
	loans.POST("/:loanId/voting", votingHandler.StartVoting)
	voting := api.Group("/voting")
	voting.GET("/:sessionId", votingHandler.GetSession)
	voting.POST("/:sessionId/votes", votingHandler.CastVote)
	voting.POST("/:sessionId/finalise", votingHandler.FinaliseVoting)

	// Dissolution settlement
	funds.GET("/:fundId/settlement", dissolutionHandler.GetSettlement)
	funds.POST("/:fundId/settlement/recalculate", dissolutionHandler.RecalculateSettlement)
	funds.POST("/:fundId/settlement/confirm", dissolutionHandler.ConfirmSettlement)

	// Live fund event feed
	funds.GET("/:fundId/events", wsHandler.HandleWS)
}
