package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/serviqo/serviqo/internal/models"
	"github.com/serviqo/serviqo/internal/services"
	"github.com/serviqo/serviqo/internal/store"
	"github.com/serviqo/serviqo/pkg/crypto"
	apperrors "github.com/serviqo/serviqo/pkg/errors"
	"github.com/serviqo/serviqo/pkg/logger"
	"github.com/serviqo/serviqo/pkg/metrics"
)

var (
	// ErrMissingCredentials rejects credential sign-in without email or password.
	ErrMissingCredentials = apperrors.New("MISSING_CREDENTIALS", "Email and password are required", http.StatusBadRequest)
	// ErrInvalidCredentials covers unknown accounts and wrong passwords alike.
	ErrInvalidCredentials = apperrors.New("INVALID_CREDENTIALS", "Invalid email or password", http.StatusUnauthorized)
	// ErrAccountDisabled rejects sign-in on soft-disabled accounts.
	ErrAccountDisabled = apperrors.New("ACCOUNT_DISABLED", "This account has been disabled", http.StatusForbidden)
)

// providerConflictError names the provider already linked to the account so
// the user knows which sign-in method to use instead.
func providerConflictError(linkedProvider string) *apperrors.AppError {
	return apperrors.New(
		"PROVIDER_CONFLICT",
		fmt.Sprintf("This email is already linked to %s; sign in with %s instead", linkedProvider, linkedProvider),
		http.StatusConflict,
	)
}

// Identity is the already-confirmed external identity delivered by the
// authentication collaborator on a federated callback.
type Identity struct {
	Email             string
	Name              string
	Provider          string
	ProviderAccountID string
}

// SignInMeta captures contextual information about the client.
type SignInMeta struct {
	IPAddress string
	UserAgent string
}

// SignInResult is handed back to the transport layer after a successful sign-in.
type SignInResult struct {
	Account     *models.Account
	SessionID   string
	AccessToken string
	Created     bool
}

// SignInConfig selects the bootstrap policy applied during role resolution.
type SignInConfig struct {
	BootstrapPolicy string
	BootstrapEmail  string
	Clock           func() time.Time
}

// SignInService implements the role-resolution state machine run on each
// successful identity confirmation, plus session issue and teardown.
type SignInService struct {
	accounts    *store.AccountStore
	invitations *services.InvitationService
	audit       *services.AuditService
	registry    *SessionRegistry
	jwt         *JWTService
	policy      string
	bootEmail   string
	now         func() time.Time
	log         *zap.Logger
}

// NewSignInService constructs a SignInService with the provided dependencies.
func NewSignInService(
	accounts *store.AccountStore,
	invitations *services.InvitationService,
	audit *services.AuditService,
	registry *SessionRegistry,
	jwtService *JWTService,
	cfg SignInConfig,
) (*SignInService, error) {
	if accounts == nil {
		return nil, errors.New("signin service: account store is required")
	}
	if invitations == nil {
		return nil, errors.New("signin service: invitation service is required")
	}
	if registry == nil {
		return nil, errors.New("signin service: session registry is required")
	}
	if jwtService == nil {
		return nil, errors.New("signin service: jwt service is required")
	}

	policy := cfg.BootstrapPolicy
	if policy == "" {
		policy = services.BootstrapPolicyEmail
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &SignInService{
		accounts:    accounts,
		invitations: invitations,
		audit:       audit,
		registry:    registry,
		jwt:         jwtService,
		policy:      policy,
		bootEmail:   store.NormalizeEmail(cfg.BootstrapEmail),
		now:         clock,
		log:         logger.WithModule("signin"),
	}, nil
}

// recordAudit writes an audit entry without letting an audit outage fail the
// surrounding sign-in; failures are logged only.
func (s *SignInService) recordAudit(ctx context.Context, entry services.AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		s.log.Warn("audit write failed",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}

// SignInCredentials authenticates a local credentials account.
func (s *SignInService) SignInCredentials(ctx context.Context, email, password string, meta SignInMeta) (*SignInResult, error) {
	email = store.NormalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, ErrMissingCredentials
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("signin service: load account: %w", err)
	}
	if account == nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, ErrInvalidCredentials
	}

	if account.Federated() {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, providerConflictError(account.Provider)
	}

	if account.PasswordHash == "" || !crypto.VerifyPassword(account.PasswordHash, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, ErrInvalidCredentials
	}

	if !account.IsActive {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, ErrAccountDisabled
	}

	return s.finishSignIn(ctx, account, meta, false)
}

// SignInFederated handles the callback for an externally confirmed identity.
// For a first-time email the initial role is resolved through the bootstrap /
// first-user / invitation / default chain; for an existing account the stored
// role is used as-is and only provider linkage may change.
func (s *SignInService) SignInFederated(ctx context.Context, identity Identity, meta SignInMeta) (*SignInResult, error) {
	email := store.NormalizeEmail(identity.Email)
	provider := strings.TrimSpace(identity.Provider)
	if email == "" {
		return nil, apperrors.NewBadRequest("identity email is required")
	}
	if provider == "" || provider == models.ProviderCredentials {
		return nil, apperrors.NewBadRequest("a federated provider is required")
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("signin service: load account: %w", err)
	}

	if account != nil {
		// First-time linking of a federated provider to a credentials
		// account is allowed; switching between two federated providers
		// is a hard failure.
		switch {
		case account.Provider == models.ProviderCredentials:
			if err := s.accounts.UpdateProvider(ctx, account.ID, provider, identity.ProviderAccountID); err != nil {
				return nil, fmt.Errorf("signin service: link provider: %w", err)
			}
			account.Provider = provider
			account.ProviderAccountID = identity.ProviderAccountID
		case account.Provider != provider:
			metrics.AuthAttempts.WithLabelValues("failure").Inc()
			return nil, providerConflictError(account.Provider)
		}

		if !account.IsActive {
			metrics.AuthAttempts.WithLabelValues("failure").Inc()
			return nil, ErrAccountDisabled
		}

		return s.finishSignIn(ctx, account, meta, false)
	}

	role, err := s.resolveInitialRole(ctx, email)
	if err != nil {
		return nil, err
	}

	account = &models.Account{
		Email:             email,
		Name:              strings.TrimSpace(identity.Name),
		Role:              role,
		Provider:          provider,
		ProviderAccountID: strings.TrimSpace(identity.ProviderAccountID),
		IsActive:          true,
	}
	if role == models.RoleSuperAdmin {
		now := s.now()
		account.PromotedBy = "system"
		account.PromotedAt = &now
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("signin service: create account: %w", err)
	}

	return s.finishSignIn(ctx, account, meta, true)
}

// SignOut tears down a session and audits the logout for privileged principals.
func (s *SignInService) SignOut(ctx context.Context, sessionID string, meta SignInMeta) error {
	session, ok := s.registry.Lookup(sessionID)
	if !ok {
		return nil
	}
	s.registry.Invalidate(sessionID)

	account, err := s.accounts.FindByID(ctx, session.PrincipalID)
	if err != nil || account == nil {
		return nil
	}

	if account.Role.Privileged() {
		s.recordAudit(ctx, services.AuditEntry{
			Action:     models.AuditAdminLogout,
			AdminEmail: account.Email,
			IPAddress:  meta.IPAddress,
		})
	}
	return nil
}

// resolveInitialRole evaluates, in strict order, the first matching branch:
// bootstrap email, first-user policy, pending invitation, default user.
func (s *SignInService) resolveInitialRole(ctx context.Context, email string) (models.Role, error) {
	if s.policy == services.BootstrapPolicyEmail && s.bootEmail != "" && email == s.bootEmail {
		count, err := s.accounts.CountByRole(ctx, models.RoleSuperAdmin)
		if err != nil {
			return "", fmt.Errorf("signin service: count super admins: %w", err)
		}
		if count == 0 {
			s.auditSystemPromotion(ctx, email, "bootstrap email matched on first sign-in")
			return models.RoleSuperAdmin, nil
		}
	}

	if s.policy == services.BootstrapPolicyFirstUser {
		count, err := s.accounts.CountAll(ctx)
		if err != nil {
			return "", fmt.Errorf("signin service: count accounts: %w", err)
		}
		if count == 0 {
			s.auditSystemPromotion(ctx, email, "first registrant auto-promoted")
			return models.RoleSuperAdmin, nil
		}
	}

	role, found, err := s.invitations.Consume(ctx, email)
	if err != nil {
		return "", fmt.Errorf("signin service: consume invitation: %w", err)
	}
	if found {
		return role, nil
	}

	return models.RoleUser, nil
}

func (s *SignInService) auditSystemPromotion(ctx context.Context, email, details string) {
	s.recordAudit(ctx, services.AuditEntry{
		Action:      models.AuditUserPromoted,
		AdminEmail:  "system",
		TargetEmail: email,
		Role:        string(models.RoleSuperAdmin),
		Details:     details,
	})
}

func (s *SignInService) finishSignIn(ctx context.Context, account *models.Account, meta SignInMeta, created bool) (*SignInResult, error) {
	// Last-login bookkeeping is best-effort.
	_ = s.accounts.RecordLogin(ctx, account.ID, meta.IPAddress, s.now())

	session := s.registry.Insert(account.ID)

	token, err := s.jwt.GenerateAccessToken(AccessTokenInput{
		UserID:    account.ID,
		Email:     account.Email,
		Role:      account.Role,
		SessionID: session.ID,
	})
	if err != nil {
		s.registry.Invalidate(session.ID)
		return nil, fmt.Errorf("signin service: issue token: %w", err)
	}

	if account.Role.Privileged() {
		s.recordAudit(ctx, services.AuditEntry{
			Action:     models.AuditAdminLogin,
			AdminEmail: account.Email,
			Role:       string(account.Role),
			IPAddress:  meta.IPAddress,
		})
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()

	return &SignInResult{
		Account:     account,
		SessionID:   session.ID,
		AccessToken: token,
		Created:     created,
	}, nil
}
