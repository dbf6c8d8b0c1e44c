package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/serviqo/serviqo/internal/models"
	"github.com/serviqo/serviqo/internal/store"
	"github.com/serviqo/serviqo/pkg/crypto"
	"github.com/serviqo/serviqo/pkg/logger"
)

// Bootstrap policies. Exactly one is active; supporting both at once could
// leave two different users each believing they are the initial super admin.
const (
	BootstrapPolicyEmail     = "email"
	BootstrapPolicyFirstUser = "first_user"
)

// BootstrapConfig selects the bootstrap policy and the configured seed identity.
// Password, when set, gives the bootstrap super admin a credentials login;
// without it the account can only sign in through a federated provider.
type BootstrapConfig struct {
	Policy   string
	Email    string
	Name     string
	Password string
}

// BootstrapService guarantees at least one super admin exists at process start.
type BootstrapService struct {
	accounts *store.AccountStore
	audit    *AuditService
	cfg      BootstrapConfig
	now      func() time.Time
	log      *zap.Logger
}

// NewBootstrapService constructs a BootstrapService.
func NewBootstrapService(accounts *store.AccountStore, audit *AuditService, cfg BootstrapConfig) (*BootstrapService, error) {
	if accounts == nil {
		return nil, errors.New("bootstrap service: account store is required")
	}
	switch cfg.Policy {
	case "", BootstrapPolicyEmail, BootstrapPolicyFirstUser:
	default:
		return nil, fmt.Errorf("bootstrap service: unknown policy %q", cfg.Policy)
	}

	return &BootstrapService{
		accounts: accounts,
		audit:    audit,
		cfg:      cfg,
		now:      time.Now,
		log:      logger.WithModule("bootstrap"),
	}, nil
}

// Run executes the one-time start-up routine under the email policy: when a
// bootstrap email is configured and no super admin exists, the matching
// account is promoted or created. Running again once a super admin exists is
// a no-op and writes no audit entry. The first_user policy is handled at
// sign-in time instead and Run does nothing under it.
func (s *BootstrapService) Run(ctx context.Context) error {
	ctx = ensureContext(ctx)

	if s.cfg.Policy == BootstrapPolicyFirstUser {
		s.log.Info("bootstrap deferred to first registrant")
		return nil
	}

	email := store.NormalizeEmail(s.cfg.Email)
	if email == "" {
		s.log.Warn("no bootstrap email configured; skipping super admin bootstrap")
		return nil
	}

	count, err := s.accounts.CountByRole(ctx, models.RoleSuperAdmin)
	if err != nil {
		return fmt.Errorf("bootstrap service: count super admins: %w", err)
	}
	if count > 0 {
		return nil
	}

	now := s.now()

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("bootstrap service: load account: %w", err)
	}

	passwordHash, err := s.passwordHash()
	if err != nil {
		return err
	}

	switch {
	case account == nil:
		if passwordHash == "" {
			s.log.Warn("no bootstrap password configured; credentials sign-in will be unavailable for the super admin")
		}
		account = &models.Account{
			Email:        email,
			Name:         s.cfg.Name,
			Role:         models.RoleSuperAdmin,
			Provider:     models.ProviderCredentials,
			PasswordHash: passwordHash,
			IsActive:     true,
			PromotedBy:   "system",
			PromotedAt:   &now,
		}
		if err := s.accounts.Create(ctx, account); err != nil {
			return fmt.Errorf("bootstrap service: create super admin: %w", err)
		}
		s.log.Info("created bootstrap super admin", zap.String("email", email))
	default:
		if err := s.accounts.UpdateRole(ctx, account.ID, models.RoleSuperAdmin, store.RoleChange{By: "system", At: now}); err != nil {
			return fmt.Errorf("bootstrap service: promote super admin: %w", err)
		}
		if passwordHash != "" && account.Provider == models.ProviderCredentials && account.PasswordHash == "" {
			if err := s.accounts.SetPassword(ctx, account.ID, passwordHash); err != nil {
				return fmt.Errorf("bootstrap service: set password: %w", err)
			}
		}
		s.log.Info("promoted bootstrap super admin", zap.String("email", email))
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:      models.AuditUserPromoted,
		AdminEmail:  "system",
		TargetEmail: email,
		Role:        string(models.RoleSuperAdmin),
		Details:     "bootstrap super admin",
	})

	return nil
}

func (s *BootstrapService) passwordHash() (string, error) {
	if s.cfg.Password == "" {
		return "", nil
	}
	hash, err := crypto.HashPassword(s.cfg.Password)
	if err != nil {
		return "", fmt.Errorf("bootstrap service: hash password: %w", err)
	}
	return hash, nil
}

// VerifyExists reports whether any super admin currently exists. Informational
// only; callers treat a missing super admin as a warning, not a failure.
func (s *BootstrapService) VerifyExists(ctx context.Context) (bool, error) {
	count, err := s.accounts.CountByRole(ensureContext(ctx), models.RoleSuperAdmin)
	if err != nil {
		return false, fmt.Errorf("bootstrap service: count super admins: %w", err)
	}
	return count > 0, nil
}
