package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/serviqo/serviqo/internal/database/testutil"
	"github.com/serviqo/serviqo/internal/models"
	"github.com/serviqo/serviqo/internal/store"
)

func newInvitationStore(t *testing.T) *store.InvitationStore {
	t.Helper()
	invitations, err := store.NewInvitationStore(testutil.MustOpenTestDB(t))
	require.NoError(t, err)
	return invitations
}

func seedInvitation(t *testing.T, invitations *store.InvitationStore, email, tokenHash string, expiresAt time.Time) *models.Invitation {
	t.Helper()
	invitation := &models.Invitation{
		Email:     email,
		Role:      models.RoleAdmin,
		InvitedBy: "root@example.com",
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		IsActive:  true,
	}
	require.NoError(t, invitations.Create(context.Background(), invitation))
	return invitation
}

func TestFindValidByEmailIgnoresExpired(t *testing.T) {
	invitations := newInvitationStore(t)
	now := time.Now().UTC()

	seedInvitation(t, invitations, "expired@example.com", "hash-expired", now.Add(-time.Hour))

	found, err := invitations.FindValidByEmail(context.Background(), "expired@example.com", now)
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestFindValidByEmailNormalisesCase(t *testing.T) {
	invitations := newInvitationStore(t)
	now := time.Now().UTC()

	seedInvitation(t, invitations, "Mixed.Case@Example.com", "hash-case", now.Add(time.Hour))

	found, err := invitations.FindValidByEmail(context.Background(), "  MIXED.CASE@EXAMPLE.COM ", now)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "mixed.case@example.com", found.Email)
}

func TestMarkUsedIsSingleShot(t *testing.T) {
	invitations := newInvitationStore(t)
	now := time.Now().UTC()

	invitation := seedInvitation(t, invitations, "invitee@example.com", "hash-used", now.Add(time.Hour))

	require.NoError(t, invitations.MarkUsed(context.Background(), invitation.ID, now))

	// A second consumer loses the conditional update.
	err := invitations.MarkUsed(context.Background(), invitation.ID, now)
	require.ErrorIs(t, err, store.ErrInvitationNotConsumable)

	reloaded, err := invitations.FindByID(context.Background(), invitation.ID)
	require.NoError(t, err)
	require.True(t, reloaded.IsUsed)
	require.NotNil(t, reloaded.UsedAt)
}

func TestMarkUsedRejectsExpired(t *testing.T) {
	invitations := newInvitationStore(t)
	now := time.Now().UTC()

	invitation := seedInvitation(t, invitations, "late@example.com", "hash-late", now.Add(-time.Minute))

	err := invitations.MarkUsed(context.Background(), invitation.ID, now)
	require.ErrorIs(t, err, store.ErrInvitationNotConsumable)
}

func TestMarkRevokedRejectsUsed(t *testing.T) {
	invitations := newInvitationStore(t)
	now := time.Now().UTC()

	invitation := seedInvitation(t, invitations, "revoke@example.com", "hash-revoke", now.Add(time.Hour))
	require.NoError(t, invitations.MarkUsed(context.Background(), invitation.ID, now))

	err := invitations.MarkRevoked(context.Background(), invitation.ID, "admin@example.com", now)
	require.ErrorIs(t, err, store.ErrInvitationNotConsumable)
}

func TestExpireSweep(t *testing.T) {
	invitations := newInvitationStore(t)
	now := time.Now().UTC()

	seedInvitation(t, invitations, "old1@example.com", "hash-old1", now.Add(-time.Hour))
	seedInvitation(t, invitations, "old2@example.com", "hash-old2", now.Add(-time.Minute))
	fresh := seedInvitation(t, invitations, "fresh@example.com", "hash-fresh", now.Add(time.Hour))
	used := seedInvitation(t, invitations, "used@example.com", "hash-used2", now.Add(-time.Hour))
	require.NoError(t, invitations.MarkRevoked(context.Background(), used.ID, "admin@example.com", now))

	swept, err := invitations.ExpireSweep(context.Background(), now)
	require.NoError(t, err)
	require.EqualValues(t, 2, swept)

	all, err := invitations.List(context.Background(), "")
	require.NoError(t, err)
	for _, invitation := range all {
		switch invitation.ID {
		case fresh.ID:
			require.True(t, invitation.IsActive)
		case used.ID:
			require.Equal(t, "admin@example.com", invitation.RevokedBy)
		default:
			require.False(t, invitation.IsActive)
			require.Equal(t, models.RevokedBySystem, invitation.RevokedBy)
			require.NotNil(t, invitation.RevokedAt)
		}
	}

	// Running the sweep again finds nothing.
	swept, err = invitations.ExpireSweep(context.Background(), now)
	require.NoError(t, err)
	require.Zero(t, swept)
}
