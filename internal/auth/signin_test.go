package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/serviqo/serviqo/internal/auth"
	"github.com/serviqo/serviqo/internal/database/testutil"
	"github.com/serviqo/serviqo/internal/models"
	"github.com/serviqo/serviqo/internal/services"
	"github.com/serviqo/serviqo/internal/store"
	"github.com/serviqo/serviqo/pkg/crypto"
	apperrors "github.com/serviqo/serviqo/pkg/errors"
)

type signInFixture struct {
	db          *gorm.DB
	accounts    *store.AccountStore
	invitations *services.InvitationService
	audit       *services.AuditService
	registry    *auth.SessionRegistry
	service     *auth.SignInService
	clock       time.Time
}

func newSignInFixture(t *testing.T, cfg auth.SignInConfig) *signInFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	accounts, err := store.NewAccountStore(db)
	require.NoError(t, err)
	invitationStore, err := store.NewInvitationStore(db)
	require.NoError(t, err)
	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	clock := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return clock }
	}

	invitations, err := services.NewInvitationService(invitationStore, accounts, audit,
		services.WithInvitationClock(cfg.Clock))
	require.NoError(t, err)

	registry := auth.NewSessionRegistry(auth.RegistryConfig{Clock: cfg.Clock})

	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret: "test-secret",
		Issuer: "serviqo",
		Clock:  cfg.Clock,
	})
	require.NoError(t, err)

	service, err := auth.NewSignInService(accounts, invitations, audit, registry, jwtService, cfg)
	require.NoError(t, err)

	return &signInFixture{
		db:          db,
		accounts:    accounts,
		invitations: invitations,
		audit:       audit,
		registry:    registry,
		service:     service,
		clock:       clock,
	}
}

func (f *signInFixture) seedCredentials(t *testing.T, email, password string, role models.Role, active bool) *models.Account {
	t.Helper()
	hash, err := crypto.HashPassword(password)
	require.NoError(t, err)
	account := &models.Account{
		Email:        email,
		Role:         role,
		Provider:     models.ProviderCredentials,
		PasswordHash: hash,
		IsActive:     active,
	}
	require.NoError(t, f.accounts.Create(context.Background(), account))
	return account
}

func (f *signInFixture) auditActions(t *testing.T) []string {
	t.Helper()
	var logs []models.AuditLog
	require.NoError(t, f.db.Order("timestamp ASC").Find(&logs).Error)
	actions := make([]string, 0, len(logs))
	for _, entry := range logs {
		actions = append(actions, entry.Action)
	}
	return actions
}

func TestSignInCredentials(t *testing.T) {
	f := newSignInFixture(t, auth.SignInConfig{})
	f.seedCredentials(t, "admin@example.com", "s3cret", models.RoleAdmin, true)

	result, err := f.service.SignInCredentials(context.Background(), "Admin@Example.com", "s3cret",
		auth.SignInMeta{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	require.NotEmpty(t, result.AccessToken)
	require.False(t, result.Created)

	_, ok := f.registry.Lookup(result.SessionID)
	require.True(t, ok)

	account, err := f.accounts.FindByEmail(context.Background(), "admin@example.com")
	require.NoError(t, err)
	require.NotNil(t, account.LastLoginAt)
	require.Equal(t, "10.0.0.1", account.LastLoginIP)

	// Privileged sign-ins are audited.
	require.Contains(t, f.auditActions(t), models.AuditAdminLogin)
}

func TestSignInCredentialsRegularUserNotAudited(t *testing.T) {
	f := newSignInFixture(t, auth.SignInConfig{})
	f.seedCredentials(t, "user@example.com", "s3cret", models.RoleUser, true)

	_, err := f.service.SignInCredentials(context.Background(), "user@example.com", "s3cret", auth.SignInMeta{})
	require.NoError(t, err)
	require.Empty(t, f.auditActions(t))
}

func TestSignInCredentialsFailures(t *testing.T) {
	f := newSignInFixture(t, auth.SignInConfig{})
	f.seedCredentials(t, "admin@example.com", "s3cret", models.RoleAdmin, true)
	f.seedCredentials(t, "gone@example.com", "s3cret", models.RoleUser, false)

	_, err := f.service.SignInCredentials(context.Background(), "", "", auth.SignInMeta{})
	require.ErrorIs(t, err, auth.ErrMissingCredentials)

	_, err = f.service.SignInCredentials(context.Background(), "nobody@example.com", "s3cret", auth.SignInMeta{})
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = f.service.SignInCredentials(context.Background(), "admin@example.com", "wrong", auth.SignInMeta{})
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = f.service.SignInCredentials(context.Background(), "gone@example.com", "s3cret", auth.SignInMeta{})
	require.ErrorIs(t, err, auth.ErrAccountDisabled)
}

func TestSignInCredentialsRejectsFederatedAccount(t *testing.T) {
	f := newSignInFixture(t, auth.SignInConfig{})
	account := &models.Account{
		Email:    "sso@example.com",
		Role:     models.RoleUser,
		Provider: "okta",
		IsActive: true,
	}
	require.NoError(t, f.accounts.Create(context.Background(), account))

	_, err := f.service.SignInCredentials(context.Background(), "sso@example.com", "whatever", auth.SignInMeta{})
	require.Error(t, err)
	appErr := apperrors.FromError(err)
	require.Equal(t, "PROVIDER_CONFLICT", appErr.Code)
	require.Contains(t, appErr.Message, "okta")
}

func TestSignInFederatedNewUserDefaultsToUser(t *testing.T) {
	f := newSignInFixture(t, auth.SignInConfig{})

	result, err := f.service.SignInFederated(context.Background(), auth.Identity{
		Email:             "new@example.com",
		Name:              "New Person",
		Provider:          "google",
		ProviderAccountID: "g-123",
	}, auth.SignInMeta{})
	require.NoError(t, err)
	require.True(t, result.Created)
	require.Equal(t, models.RoleUser, result.Account.Role)
	require.Equal(t, "google", result.Account.Provider)
}

func TestSignInFederatedBootstrapEmail(t *testing.T) {
	f := newSignInFixture(t, auth.SignInConfig{
		BootstrapPolicy: services.BootstrapPolicyEmail,
		BootstrapEmail:  "Root@Example.com",
	})

	result, err := f.service.SignInFederated(context.Background(), auth.Identity{
		Email:             "root@example.com",
		Provider:          "google",
		ProviderAccountID: "g-root",
	}, auth.SignInMeta{})
	require.NoError(t, err)
	require.Equal(t, models.RoleSuperAdmin, result.Account.Role)
	require.Equal(t, "system", result.Account.PromotedBy)

	// The system promotion and the login itself are both audited.
	actions := f.auditActions(t)
	require.Contains(t, actions, models.AuditUserPromoted)
	require.Contains(t, actions, models.AuditAdminLogin)
}

func TestSignInFederatedBootstrapEmailOnlyOnce(t *testing.T) {
	f := newSignInFixture(t, auth.SignInConfig{
		BootstrapPolicy: services.BootstrapPolicyEmail,
		BootstrapEmail:  "root@example.com",
	})

	other := &models.Account{Email: "existing@example.com", Role: models.RoleSuperAdmin, IsActive: true}
	require.NoError(t, f.accounts.Create(context.Background(), other))

	// A super admin already exists, so the bootstrap email gets no special role.
	result, err := f.service.SignInFederated(context.Background(), auth.Identity{
		Email:             "root@example.com",
		Provider:          "google",
		ProviderAccountID: "g-root",
	}, auth.SignInMeta{})
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, result.Account.Role)
}

func TestSignInFederatedFirstUserPolicy(t *testing.T) {
	f := newSignInFixture(t, auth.SignInConfig{
		BootstrapPolicy: services.BootstrapPolicyFirstUser,
	})

	first, err := f.service.SignInFederated(context.Background(), auth.Identity{
		Email:             "first@example.com",
		Provider:          "google",
		ProviderAccountID: "g-1",
	}, auth.SignInMeta{})
	require.NoError(t, err)
	require.Equal(t, models.RoleSuperAdmin, first.Account.Role)

	second, err := f.service.SignInFederated(context.Background(), auth.Identity{
		Email:             "second@example.com",
		Provider:          "google",
		ProviderAccountID: "g-2",
	}, auth.SignInMeta{})
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, second.Account.Role)
}

func TestSignInFederatedConsumesInvitation(t *testing.T) {
	f := newSignInFixture(t, auth.SignInConfig{})
	f.seedCredentials(t, "admin@example.com", "s3cret", models.RoleAdmin, true)

	_, _, err := f.invitations.Create(context.Background(), "admin@example.com", "invitee@example.com", models.RoleAdmin, 0)
	require.NoError(t, err)

	result, err := f.service.SignInFederated(context.Background(), auth.Identity{
		Email:             "invitee@example.com",
		Provider:          "google",
		ProviderAccountID: "g-inv",
	}, auth.SignInMeta{})
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, result.Account.Role)

	// The invitation is spent; signing in again grants nothing extra.
	_, found, err := f.invitations.Consume(context.Background(), "invitee@example.com")
	require.NoError(t, err)
	require.False(t, found)

	require.Contains(t, f.auditActions(t), models.AuditInvitationUsed)
}

func TestSignInFederatedLinksCredentialsAccount(t *testing.T) {
	f := newSignInFixture(t, auth.SignInConfig{})
	f.seedCredentials(t, "local@example.com", "s3cret", models.RoleUser, true)

	result, err := f.service.SignInFederated(context.Background(), auth.Identity{
		Email:             "local@example.com",
		Provider:          "github",
		ProviderAccountID: "gh-9",
	}, auth.SignInMeta{})
	require.NoError(t, err)
	require.False(t, result.Created)
	require.Equal(t, "github", result.Account.Provider)

	account, err := f.accounts.FindByEmail(context.Background(), "local@example.com")
	require.NoError(t, err)
	require.Equal(t, "github", account.Provider)
	require.Equal(t, "gh-9", account.ProviderAccountID)
}

func TestSignInFederatedProviderMismatch(t *testing.T) {
	f := newSignInFixture(t, auth.SignInConfig{})
	account := &models.Account{
		Email:    "sso@example.com",
		Role:     models.RoleUser,
		Provider: "okta",
		IsActive: true,
	}
	require.NoError(t, f.accounts.Create(context.Background(), account))

	_, err := f.service.SignInFederated(context.Background(), auth.Identity{
		Email:             "sso@example.com",
		Provider:          "google",
		ProviderAccountID: "g-x",
	}, auth.SignInMeta{})
	require.Error(t, err)
	appErr := apperrors.FromError(err)
	require.Equal(t, "PROVIDER_CONFLICT", appErr.Code)
	require.Contains(t, appErr.Message, "okta")
}

func TestSignInFederatedRequiresProvider(t *testing.T) {
	f := newSignInFixture(t, auth.SignInConfig{})

	_, err := f.service.SignInFederated(context.Background(), auth.Identity{
		Email: "x@example.com",
	}, auth.SignInMeta{})
	require.Error(t, err)

	_, err = f.service.SignInFederated(context.Background(), auth.Identity{
		Email:    "x@example.com",
		Provider: models.ProviderCredentials,
	}, auth.SignInMeta{})
	require.Error(t, err)
}

func TestSignOut(t *testing.T) {
	f := newSignInFixture(t, auth.SignInConfig{})
	f.seedCredentials(t, "admin@example.com", "s3cret", models.RoleAdmin, true)

	result, err := f.service.SignInCredentials(context.Background(), "admin@example.com", "s3cret", auth.SignInMeta{})
	require.NoError(t, err)

	require.NoError(t, f.service.SignOut(context.Background(), result.SessionID, auth.SignInMeta{}))

	_, ok := f.registry.Lookup(result.SessionID)
	require.False(t, ok)
	require.Contains(t, f.auditActions(t), models.AuditAdminLogout)

	// Signing out an unknown session is a quiet no-op.
	require.NoError(t, f.service.SignOut(context.Background(), "missing", auth.SignInMeta{}))
}
