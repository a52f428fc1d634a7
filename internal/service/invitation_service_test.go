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

type invitationFixture struct {
	svc   *InvitationService
	funds *testutil.MockFundRepository
	invs  *testutil.MockInvitationRepository
	pub   *testutil.CapturePublisher
}

func newInvitationFixture() *invitationFixture {
	funds := testutil.NewMockFundRepository()
	invs := testutil.NewMockInvitationRepository()
	pub := testutil.NewCapturePublisher()
	audit := testutil.NewCaptureAuditSink()
	return &invitationFixture{
		svc:   NewInvitationService(funds, invs, pub, audit),
		funds: funds,
		invs:  invs,
		pub:   pub,
	}
}

func TestSendInvitation(t *testing.T) {
	f := newInvitationFixture()
	fund := seedFund(f.funds, domain.FundStateActive)

	inv, err := f.svc.SendInvitation(context.Background(), uuid.New(), fund.ID, "  wanjiku@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "wanjiku@example.com", inv.TargetContact)
	assert.Equal(t, domain.InvitationPending, inv.Status)
	assert.WithinDuration(t, time.Now().UTC().Add(domain.InvitationTTL), inv.ExpiresAt, time.Minute)
	assert.Len(t, f.pub.ByType(event.TypeInvitationSent), 1)
}

func TestSendInvitationOnePendingPerContact(t *testing.T) {
	f := newInvitationFixture()
	fund := seedFund(f.funds, domain.FundStateActive)

	_, err := f.svc.SendInvitation(context.Background(), uuid.New(), fund.ID, "wanjiku@example.com")
	require.NoError(t, err)

	_, err = f.svc.SendInvitation(context.Background(), uuid.New(), fund.ID, "wanjiku@example.com")
	assert.ErrorIs(t, err, domain.ErrPendingInvitation)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestSendInvitationBlockedDuringDissolution(t *testing.T) {
	f := newInvitationFixture()
	fund := seedFund(f.funds, domain.FundStateDissolving)

	_, err := f.svc.SendInvitation(context.Background(), uuid.New(), fund.ID, "wanjiku@example.com")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestSendInvitationRejectsBlankContact(t *testing.T) {
	f := newInvitationFixture()
	fund := seedFund(f.funds, domain.FundStateActive)

	_, err := f.svc.SendInvitation(context.Background(), uuid.New(), fund.ID, "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRespondAcceptAndDecline(t *testing.T) {
	f := newInvitationFixture()
	fund := seedFund(f.funds, domain.FundStateActive)

	accepted, err := f.svc.SendInvitation(context.Background(), uuid.New(), fund.ID, "a@example.com")
	require.NoError(t, err)
	declined, err := f.svc.SendInvitation(context.Background(), uuid.New(), fund.ID, "b@example.com")
	require.NoError(t, err)

	got, err := f.svc.Respond(context.Background(), uuid.New(), accepted.ID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationAccepted, got.Status)

	got, err = f.svc.Respond(context.Background(), uuid.New(), declined.ID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationDeclined, got.Status)

	// Responses are final
	_, err = f.svc.Respond(context.Background(), uuid.New(), accepted.ID, false)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestRespondPersistsOnce(t *testing.T) {
	f := newInvitationFixture()
	fund := seedFund(f.funds, domain.FundStateActive)

	inv, err := f.svc.SendInvitation(context.Background(), uuid.New(), fund.ID, "once@example.com")
	require.NoError(t, err)

	_, err = f.svc.Respond(context.Background(), uuid.New(), inv.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, f.invs.UpdateStatusCalls)
}

func TestRespondAfterExpiryMarksExpired(t *testing.T) {
	f := newInvitationFixture()
	fund := seedFund(f.funds, domain.FundStateActive)

	inv, err := f.svc.SendInvitation(context.Background(), uuid.New(), fund.ID, "late@example.com")
	require.NoError(t, err)
	f.invs.Invitations[inv.ID].ExpiresAt = time.Now().UTC().Add(-time.Hour)

	_, err = f.svc.Respond(context.Background(), uuid.New(), inv.ID, true)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	// The late response still flips the stored invitation to expired
	assert.Equal(t, domain.InvitationExpired, f.invs.Invitations[inv.ID].Status)
}

func TestExpireSweep(t *testing.T) {
	f := newInvitationFixture()
	fund := seedFund(f.funds, domain.FundStateActive)

	stale, err := f.svc.SendInvitation(context.Background(), uuid.New(), fund.ID, "stale@example.com")
	require.NoError(t, err)
	fresh, err := f.svc.SendInvitation(context.Background(), uuid.New(), fund.ID, "fresh@example.com")
	require.NoError(t, err)
	f.invs.Invitations[stale.ID].ExpiresAt = time.Now().UTC().Add(-time.Hour)

	expired, err := f.svc.ExpireSweep(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)
	assert.Equal(t, domain.InvitationExpired, f.invs.Invitations[stale.ID].Status)
	assert.Equal(t, domain.InvitationPending, f.invs.Invitations[fresh.ID].Status)
}
