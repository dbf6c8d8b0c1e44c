package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/serviqo/serviqo/internal/models"
	"github.com/serviqo/serviqo/internal/store"
	apperrors "github.com/serviqo/serviqo/pkg/errors"
	"github.com/serviqo/serviqo/pkg/logger"
	"github.com/serviqo/serviqo/pkg/metrics"
)

var (
	// ErrInsufficientPermission rejects actors below the privilege the operation needs.
	ErrInsufficientPermission = apperrors.New("INSUFFICIENT_PERMISSION", "You do not have permission to perform this action", http.StatusForbidden)
	// ErrTargetNotFound indicates the promotion/demotion target does not exist.
	ErrTargetNotFound = apperrors.New("TARGET_NOT_FOUND", "Target user not found", http.StatusNotFound)
	// ErrNoOpRole rejects promotions that would not change the target's role.
	ErrNoOpRole = apperrors.New("NO_OP_ROLE", "User already holds this role", http.StatusBadRequest)
	// ErrSelfPromotionDenied blocks promoting oneself to super admin.
	ErrSelfPromotionDenied = apperrors.New("SELF_PROMOTION_DENIED", "You cannot promote yourself to super admin", http.StatusBadRequest)
	// ErrSelfDemotionLockout prevents the only remaining super admin from demoting themselves.
	ErrSelfDemotionLockout = apperrors.New("SELF_DEMOTION_LOCKOUT", "You are the only super admin and cannot demote yourself", http.StatusBadRequest)
	// ErrAlreadyUser rejects demoting a target that already holds the base role.
	ErrAlreadyUser = apperrors.New("ALREADY_USER", "User already holds the base role", http.StatusBadRequest)
)

// SessionInvalidator removes every active session belonging to a principal so
// their next request must re-authenticate with the new role.
type SessionInvalidator interface {
	InvalidatePrincipal(principalID string) int
}

// TargetRef identifies a promotion/demotion target by id or email. Both entry
// points are supported; id wins when both are set.
type TargetRef struct {
	ID    string
	Email string
}

// RoleService orchestrates role promotion and demotion with authorization
// checks, audit writes, and session invalidation.
type RoleService struct {
	accounts *store.AccountStore
	audit    *AuditService
	sessions SessionInvalidator
	now      func() time.Time
	log      *zap.Logger
}

// RoleOption customises RoleService behaviour.
type RoleOption func(*RoleService)

// WithRoleClock injects a custom clock primarily for testing.
func WithRoleClock(clock func() time.Time) RoleOption {
	return func(s *RoleService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewRoleService constructs a RoleService with the provided dependencies.
// The session invalidator may be nil; invalidation is then skipped.
func NewRoleService(accounts *store.AccountStore, audit *AuditService, sessions SessionInvalidator, opts ...RoleOption) (*RoleService, error) {
	if accounts == nil {
		return nil, fmt.Errorf("role service: account store is required")
	}

	service := &RoleService{
		accounts: accounts,
		audit:    audit,
		sessions: sessions,
		now:      time.Now,
		log:      logger.WithModule("roles"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Promote raises the target account to newRole on behalf of actorEmail.
// Role update, audit write, and session invalidation form one logical unit:
// nothing happens unless the role update succeeds, while audit and session
// failures after the update are absorbed.
func (s *RoleService) Promote(ctx context.Context, actorEmail string, target TargetRef, newRole models.Role) (*models.Account, error) {
	ctx = ensureContext(ctx)

	if newRole != models.RoleAdmin && newRole != models.RoleSuperAdmin {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("cannot promote to role %q", newRole))
	}

	actor, err := s.requireActor(ctx, actorEmail)
	if err != nil {
		metrics.RoleChanges.WithLabelValues("promote", "denied").Inc()
		return nil, err
	}

	if newRole == models.RoleSuperAdmin && actor.Role != models.RoleSuperAdmin {
		metrics.RoleChanges.WithLabelValues("promote", "denied").Inc()
		return nil, ErrInsufficientPermission
	}

	account, err := s.resolveTarget(ctx, target)
	if err != nil {
		metrics.RoleChanges.WithLabelValues("promote", "denied").Inc()
		return nil, err
	}

	if newRole == models.RoleSuperAdmin && account.ID == actor.ID {
		metrics.RoleChanges.WithLabelValues("promote", "denied").Inc()
		return nil, ErrSelfPromotionDenied
	}

	if account.Role == newRole {
		metrics.RoleChanges.WithLabelValues("promote", "denied").Inc()
		return nil, ErrNoOpRole
	}

	oldRole := account.Role
	now := s.now()

	if err := s.accounts.UpdateRole(ctx, account.ID, newRole, store.RoleChange{By: actor.Email, At: now}); err != nil {
		metrics.RoleChanges.WithLabelValues("promote", "error").Inc()
		return nil, fmt.Errorf("role service: promote: %w", err)
	}

	account.Role = newRole
	account.PromotedBy = actor.Email
	account.PromotedAt = &now

	recordAudit(s.audit, ctx, AuditEntry{
		Action:      models.AuditUserPromoted,
		AdminEmail:  actor.Email,
		TargetEmail: account.Email,
		Role:        string(newRole),
		Details:     fmt.Sprintf("role changed from %s to %s", oldRole, newRole),
	})

	s.invalidateSessions(account)
	metrics.RoleChanges.WithLabelValues("promote", "success").Inc()

	return account, nil
}

// Demote lowers the target account to the base role on behalf of actorEmail.
func (s *RoleService) Demote(ctx context.Context, actorEmail string, target TargetRef) (*models.Account, error) {
	ctx = ensureContext(ctx)

	actor, err := s.requireActor(ctx, actorEmail)
	if err != nil {
		metrics.RoleChanges.WithLabelValues("demote", "denied").Inc()
		return nil, err
	}

	account, err := s.resolveTarget(ctx, target)
	if err != nil {
		metrics.RoleChanges.WithLabelValues("demote", "denied").Inc()
		return nil, err
	}

	if account.Role == models.RoleUser {
		metrics.RoleChanges.WithLabelValues("demote", "denied").Inc()
		return nil, ErrAlreadyUser
	}

	if account.Role == models.RoleSuperAdmin && actor.Role != models.RoleSuperAdmin {
		metrics.RoleChanges.WithLabelValues("demote", "denied").Inc()
		return nil, ErrInsufficientPermission
	}

	// Lockout safeguard: the last super admin may not remove themselves.
	// Advisory under concurrency; see the design notes.
	if account.ID == actor.ID && account.Role == models.RoleSuperAdmin {
		count, err := s.accounts.CountByRole(ctx, models.RoleSuperAdmin)
		if err != nil {
			metrics.RoleChanges.WithLabelValues("demote", "error").Inc()
			return nil, fmt.Errorf("role service: count super admins: %w", err)
		}
		if count <= 1 {
			metrics.RoleChanges.WithLabelValues("demote", "denied").Inc()
			return nil, ErrSelfDemotionLockout
		}
	}

	oldRole := account.Role
	now := s.now()

	if err := s.accounts.UpdateRole(ctx, account.ID, models.RoleUser, store.RoleChange{By: actor.Email, At: now, Demotion: true}); err != nil {
		metrics.RoleChanges.WithLabelValues("demote", "error").Inc()
		return nil, fmt.Errorf("role service: demote: %w", err)
	}

	account.Role = models.RoleUser
	account.DemotedBy = actor.Email
	account.DemotedAt = &now

	recordAudit(s.audit, ctx, AuditEntry{
		Action:      models.AuditUserDemoted,
		AdminEmail:  actor.Email,
		TargetEmail: account.Email,
		Role:        string(models.RoleUser),
		Details:     fmt.Sprintf("role changed from %s to %s", oldRole, models.RoleUser),
	})

	s.invalidateSessions(account)
	metrics.RoleChanges.WithLabelValues("demote", "success").Inc()

	return account, nil
}

func (s *RoleService) requireActor(ctx context.Context, actorEmail string) (*models.Account, error) {
	actorEmail = strings.TrimSpace(actorEmail)
	if actorEmail == "" {
		return nil, ErrInsufficientPermission
	}

	actor, err := s.accounts.FindByEmail(ctx, actorEmail)
	if err != nil {
		return nil, fmt.Errorf("role service: load actor: %w", err)
	}
	if actor == nil || !actor.IsActive || !actor.Role.Privileged() {
		return nil, ErrInsufficientPermission
	}
	return actor, nil
}

func (s *RoleService) resolveTarget(ctx context.Context, target TargetRef) (*models.Account, error) {
	if id := strings.TrimSpace(target.ID); id != "" {
		account, err := s.accounts.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrAccountNotFound) {
				return nil, ErrTargetNotFound
			}
			return nil, fmt.Errorf("role service: load target: %w", err)
		}
		return account, nil
	}

	if email := strings.TrimSpace(target.Email); email != "" {
		account, err := s.accounts.FindByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("role service: load target: %w", err)
		}
		if account == nil {
			return nil, ErrTargetNotFound
		}
		return account, nil
	}

	return nil, ErrTargetNotFound
}

func (s *RoleService) invalidateSessions(account *models.Account) {
	if s.sessions == nil {
		return
	}
	removed := s.sessions.InvalidatePrincipal(account.ID)
	if removed > 0 {
		s.log.Info("invalidated sessions after role change",
			zap.String("email", account.Email),
			zap.Int("sessions", removed),
		)
	}
}
