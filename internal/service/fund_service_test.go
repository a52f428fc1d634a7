package service

import (
	"context"
	"testing"
	"time"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/chamahq/chama-backend/internal/event"
	"github.com/chamahq/chama-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fundFixture struct {
	svc   *FundService
	funds *testutil.MockFundRepository
	pub   *testutil.CapturePublisher
	audit *testutil.CaptureAuditSink
}

func newFundFixture() *fundFixture {
	funds := testutil.NewMockFundRepository()
	pub := testutil.NewCapturePublisher()
	audit := testutil.NewCaptureAuditSink()
	return &fundFixture{
		svc:   NewFundService(funds, pub, audit),
		funds: funds,
		pub:   pub,
		audit: audit,
	}
}

func TestCreateFundAssignsCreatorAsAdmin(t *testing.T) {
	f := newFundFixture()
	creator := uuid.New()

	fund, err := f.svc.CreateFund(context.Background(), creator, CreateFundInput{
		Name:     "Harambee Circle",
		Currency: "KES",
		Config:   testConfig(),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.FundStateDraft, fund.State)
	assert.Equal(t, int64(1), fund.Version)

	role, err := f.funds.GetRole(context.Background(), fund.ID, creator)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, role.Role)

	assert.Len(t, f.pub.ByType(event.TypeFundCreated), 1)
	assert.Len(t, f.pub.ByType(event.TypeFundAdminAssigned), 1)
}

func TestCreateFundRejectsBadConfig(t *testing.T) {
	f := newFundFixture()
	cfg := testConfig()
	cfg.MonthlyInterestRate = dec("1.5")

	_, err := f.svc.CreateFund(context.Background(), uuid.New(), CreateFundInput{
		Name:     "Bad Rates",
		Currency: "KES",
		Config:   cfg,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestActivateRequiresAdmin(t *testing.T) {
	f := newFundFixture()
	fund := seedFund(f.funds, domain.FundStateDraft)

	_, err := f.svc.Activate(context.Background(), uuid.New(), fund.ID, 1)
	assert.ErrorIs(t, err, domain.ErrLastAdmin)

	admin := uuid.New()
	_, err = f.funds.AssignRole(context.Background(), &domain.FundRoleAssignment{
		ID: uuid.New(), FundID: fund.ID, UserID: admin, Role: domain.RoleAdmin,
	})
	require.NoError(t, err)

	activated, err := f.svc.Activate(context.Background(), admin, fund.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.FundStateActive, activated.State)
	assert.Equal(t, int64(2), activated.Version)
	assert.Len(t, f.pub.ByType(event.TypeFundActivated), 1)

	// Activation is one-way
	_, err = f.svc.Activate(context.Background(), admin, fund.ID, 2)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestUpdateConfigurationOnlyWhileDraft(t *testing.T) {
	f := newFundFixture()
	fund := seedFund(f.funds, domain.FundStateDraft)

	cfg := testConfig()
	cfg.MonthlyInterestRate = dec("0.03")
	updated, err := f.svc.UpdateConfiguration(context.Background(), uuid.New(), fund.ID, cfg, 1)
	require.NoError(t, err)
	assert.True(t, dec("0.03").Equal(updated.Config.MonthlyInterestRate))

	f.funds.Funds[fund.ID].State = domain.FundStateActive
	_, err = f.svc.UpdateConfiguration(context.Background(), uuid.New(), fund.ID, cfg, 2)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestUpdateDescriptionStaleVersion(t *testing.T) {
	f := newFundFixture()
	fund := seedFund(f.funds, domain.FundStateActive)
	desc := "village savings group"

	_, err := f.svc.UpdateDescription(context.Background(), uuid.New(), fund.ID, &desc, 9)
	assert.ErrorIs(t, err, domain.ErrVersionMismatch)

	updated, err := f.svc.UpdateDescription(context.Background(), uuid.New(), fund.ID, &desc, 1)
	require.NoError(t, err)
	assert.Equal(t, &desc, updated.Description)
	assert.Equal(t, int64(2), updated.Version)
}

func TestChangeRoleGuardsLastAdmin(t *testing.T) {
	f := newFundFixture()
	fund := seedFund(f.funds, domain.FundStateActive)
	admin := uuid.New()
	_, err := f.funds.AssignRole(context.Background(), &domain.FundRoleAssignment{
		ID: uuid.New(), FundID: fund.ID, UserID: admin, Role: domain.RoleAdmin,
	})
	require.NoError(t, err)

	_, err = f.svc.ChangeRole(context.Background(), uuid.New(), fund.ID, admin, domain.RoleEditor)
	assert.ErrorIs(t, err, domain.ErrLastAdmin)

	second := uuid.New()
	_, err = f.funds.AssignRole(context.Background(), &domain.FundRoleAssignment{
		ID: uuid.New(), FundID: fund.ID, UserID: second, Role: domain.RoleAdmin,
	})
	require.NoError(t, err)

	changed, err := f.svc.ChangeRole(context.Background(), uuid.New(), fund.ID, admin, domain.RoleEditor)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleEditor, changed.Role)
}

func TestRemoveMemberGuardsLastAdminAndDeactivatesPlan(t *testing.T) {
	f := newFundFixture()
	fund := seedFund(f.funds, domain.FundStateActive)
	admin := uuid.New()
	_, err := f.funds.AssignRole(context.Background(), &domain.FundRoleAssignment{
		ID: uuid.New(), FundID: fund.ID, UserID: admin, Role: domain.RoleAdmin,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.RemoveMember(context.Background(), uuid.New(), fund.ID, admin), domain.ErrLastAdmin)

	member := uuid.New()
	_, err = f.funds.AssignRole(context.Background(), &domain.FundRoleAssignment{
		ID: uuid.New(), FundID: fund.ID, UserID: member, Role: domain.RoleEditor,
	})
	require.NoError(t, err)
	_, err = f.funds.CreateMemberPlan(context.Background(), &domain.MemberContributionPlan{
		ID: uuid.New(), FundID: fund.ID, UserID: member,
		MonthlyContributionAmount: dec("500.00"), JoinDate: time.Now().UTC(), IsActive: true,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveMember(context.Background(), uuid.New(), fund.ID, member))
	_, err = f.funds.GetRole(context.Background(), fund.ID, member)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, f.funds.Plans[fund.ID][member].IsActive)
	assert.Len(t, f.pub.ByType(event.TypeMemberRemoved), 1)
}

func TestAssignRoleBlockedDuringDissolution(t *testing.T) {
	f := newFundFixture()
	fund := seedFund(f.funds, domain.FundStateDissolving)

	_, err := f.svc.AssignRole(context.Background(), uuid.New(), fund.ID, uuid.New(), domain.RoleEditor)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestAssignRoleDuplicateConflict(t *testing.T) {
	f := newFundFixture()
	fund := seedFund(f.funds, domain.FundStateActive)
	member := uuid.New()

	_, err := f.svc.AssignRole(context.Background(), uuid.New(), fund.ID, member, domain.RoleEditor)
	require.NoError(t, err)

	_, err = f.svc.AssignRole(context.Background(), uuid.New(), fund.ID, member, domain.RoleGuest)
	assert.ErrorIs(t, err, domain.ErrDuplicateRole)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestAddMemberPlanEnforcesMinimum(t *testing.T) {
	f := newFundFixture()
	fund := seedFund(f.funds, domain.FundStateActive)

	_, err := f.svc.AddMemberPlan(context.Background(), uuid.New(), fund.ID, AddMemberPlanInput{
		UserID:                    uuid.New(),
		MonthlyContributionAmount: dec("99.99"),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	member := uuid.New()
	plan, err := f.svc.AddMemberPlan(context.Background(), uuid.New(), fund.ID, AddMemberPlanInput{
		UserID:                    member,
		MonthlyContributionAmount: dec("100.00"),
	})
	require.NoError(t, err)
	assert.True(t, plan.IsActive)
	assert.False(t, plan.JoinDate.IsZero())
	assert.Len(t, f.pub.ByType(event.TypeMemberJoined), 1)

	// One standing plan per member
	_, err = f.svc.AddMemberPlan(context.Background(), uuid.New(), fund.ID, AddMemberPlanInput{
		UserID:                    member,
		MonthlyContributionAmount: dec("200.00"),
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateMemberPlan)
}

func TestAddMemberPlanBlockedDuringDissolution(t *testing.T) {
	f := newFundFixture()
	fund := seedFund(f.funds, domain.FundStateDissolving)

	_, err := f.svc.AddMemberPlan(context.Background(), uuid.New(), fund.ID, AddMemberPlanInput{
		UserID:                    uuid.New(),
		MonthlyContributionAmount: dec("500.00"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}
