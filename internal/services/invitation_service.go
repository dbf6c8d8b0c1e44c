package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/serviqo/serviqo/internal/models"
	"github.com/serviqo/serviqo/internal/store"
	"github.com/serviqo/serviqo/pkg/crypto"
	apperrors "github.com/serviqo/serviqo/pkg/errors"
	"github.com/serviqo/serviqo/pkg/metrics"
)

const (
	defaultInvitationExpiry = 72 * time.Hour
	invitationTokenBytes    = 48
)

var (
	// ErrAlreadyPrivileged rejects inviting someone who already holds admin access.
	ErrAlreadyPrivileged = apperrors.New("ALREADY_PRIVILEGED", "User already holds admin access", http.StatusBadRequest)
	// ErrDuplicateInvitation enforces at most one valid invitation per email.
	ErrDuplicateInvitation = apperrors.New("DUPLICATE_INVITATION", "A valid invitation already exists for this email", http.StatusConflict)
	// ErrInvitationNotFound indicates the invitation does not exist.
	ErrInvitationNotFound = apperrors.New("INVITATION_NOT_FOUND", "Invitation not found", http.StatusNotFound)
	// ErrInvitationAlreadyUsed is terminal: a consumed invitation cannot be revoked.
	ErrInvitationAlreadyUsed = apperrors.New("INVITATION_ALREADY_USED", "Invitation has already been used", http.StatusBadRequest)
)

// InvitationOption customises InvitationService behaviour.
type InvitationOption func(*InvitationService)

// WithInvitationExpiry overrides the default invitation lifetime.
func WithInvitationExpiry(d time.Duration) InvitationOption {
	return func(s *InvitationService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithInvitationClock injects a custom clock primarily for testing.
func WithInvitationClock(clock func() time.Time) InvitationOption {
	return func(s *InvitationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// InvitationService manages the create/revoke/consume lifecycle of admin
// invitations. Token delivery is handed off to an external notification
// collaborator; this service only returns the raw token to the caller.
type InvitationService struct {
	invitations *store.InvitationStore
	accounts    *store.AccountStore
	audit       *AuditService
	expiry      time.Duration
	now         func() time.Time
}

// NewInvitationService constructs an InvitationService with the provided dependencies.
func NewInvitationService(invitations *store.InvitationStore, accounts *store.AccountStore, audit *AuditService, opts ...InvitationOption) (*InvitationService, error) {
	if invitations == nil {
		return nil, errors.New("invitation service: invitation store is required")
	}
	if accounts == nil {
		return nil, errors.New("invitation service: account store is required")
	}

	service := &InvitationService{
		invitations: invitations,
		accounts:    accounts,
		audit:       audit,
		expiry:      defaultInvitationExpiry,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Create issues a new invitation for inviteeEmail granting role on next
// sign-in. expirationHours of zero falls back to the configured default.
// The returned token is shown once and never stored in the clear.
func (s *InvitationService) Create(ctx context.Context, inviterEmail, inviteeEmail string, role models.Role, expirationHours int) (*models.Invitation, string, error) {
	ctx = ensureContext(ctx)

	if role != models.RoleAdmin && role != models.RoleSuperAdmin {
		return nil, "", apperrors.NewBadRequest(fmt.Sprintf("invitations cannot grant role %q", role))
	}

	inviter, err := s.requireInviter(ctx, inviterEmail)
	if err != nil {
		return nil, "", err
	}
	if role == models.RoleSuperAdmin && inviter.Role != models.RoleSuperAdmin {
		return nil, "", ErrInsufficientPermission
	}

	inviteeEmail = store.NormalizeEmail(inviteeEmail)
	if inviteeEmail == "" {
		return nil, "", apperrors.NewBadRequest("invitee email is required")
	}

	invitee, err := s.accounts.FindByEmail(ctx, inviteeEmail)
	if err != nil {
		return nil, "", fmt.Errorf("invitation service: load invitee: %w", err)
	}
	if invitee != nil && invitee.Role.Privileged() {
		return nil, "", ErrAlreadyPrivileged
	}

	now := s.now()

	existing, err := s.invitations.FindValidByEmail(ctx, inviteeEmail, now)
	if err != nil {
		return nil, "", fmt.Errorf("invitation service: check pending: %w", err)
	}
	if existing != nil {
		return nil, "", ErrDuplicateInvitation
	}

	rawToken, err := crypto.GenerateToken(invitationTokenBytes)
	if err != nil {
		return nil, "", fmt.Errorf("invitation service: generate token: %w", err)
	}

	expiry := s.expiry
	if expirationHours > 0 {
		expiry = time.Duration(expirationHours) * time.Hour
	}

	invitation := &models.Invitation{
		Email:     inviteeEmail,
		Role:      role,
		InvitedBy: inviter.Email,
		TokenHash: tokenHash(rawToken),
		ExpiresAt: now.Add(expiry),
		IsActive:  true,
	}

	if err := s.invitations.Create(ctx, invitation); err != nil {
		if isUniqueConstraintError(err) {
			return nil, "", ErrDuplicateInvitation
		}
		return nil, "", fmt.Errorf("invitation service: create: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:      models.AuditInvitationCreated,
		AdminEmail:  inviter.Email,
		TargetEmail: inviteeEmail,
		InvitedBy:   inviter.Email,
		Role:        string(role),
		Details:     fmt.Sprintf("invitation expires at %s", invitation.ExpiresAt.UTC().Format(time.RFC3339)),
	})
	metrics.InvitationEvents.WithLabelValues("created").Inc()

	return invitation, rawToken, nil
}

// Revoke deactivates a pending invitation. Used invitations are terminal and
// cannot be revoked; the privilege grant already took effect elsewhere.
func (s *InvitationService) Revoke(ctx context.Context, actorEmail, invitationID string) (*models.Invitation, error) {
	ctx = ensureContext(ctx)

	actor, err := s.requireInviter(ctx, actorEmail)
	if err != nil {
		return nil, err
	}

	invitation, err := s.invitations.FindByID(ctx, invitationID)
	if err != nil {
		if errors.Is(err, store.ErrInvitationNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("invitation service: load invitation: %w", err)
	}

	if invitation.IsUsed {
		return nil, ErrInvitationAlreadyUsed
	}

	now := s.now()
	if err := s.invitations.MarkRevoked(ctx, invitation.ID, actor.Email, now); err != nil {
		if errors.Is(err, store.ErrInvitationNotConsumable) {
			return nil, ErrInvitationAlreadyUsed
		}
		return nil, fmt.Errorf("invitation service: revoke: %w", err)
	}

	invitation.IsActive = false
	invitation.RevokedBy = actor.Email
	invitation.RevokedAt = &now

	recordAudit(s.audit, ctx, AuditEntry{
		Action:      models.AuditInvitationRevoked,
		AdminEmail:  actor.Email,
		TargetEmail: invitation.Email,
		Role:        string(invitation.Role),
	})
	metrics.InvitationEvents.WithLabelValues("revoked").Inc()

	return invitation, nil
}

// Consume redeems the unique valid invitation for email, returning the granted
// role. It is invoked only by the sign-in flow. The second return value is
// false when no consumable invitation exists.
func (s *InvitationService) Consume(ctx context.Context, email string) (models.Role, bool, error) {
	ctx = ensureContext(ctx)

	now := s.now()
	invitation, err := s.invitations.FindValidByEmail(ctx, email, now)
	if err != nil {
		return "", false, fmt.Errorf("invitation service: find valid: %w", err)
	}
	if invitation == nil {
		return "", false, nil
	}

	if err := s.invitations.MarkUsed(ctx, invitation.ID, now); err != nil {
		if errors.Is(err, store.ErrInvitationNotConsumable) {
			// Lost the race to another consumer; treat as no invitation.
			return "", false, nil
		}
		return "", false, fmt.Errorf("invitation service: mark used: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:      models.AuditInvitationUsed,
		TargetEmail: invitation.Email,
		InvitedBy:   invitation.InvitedBy,
		Role:        string(invitation.Role),
	})
	metrics.InvitationEvents.WithLabelValues("used").Inc()

	return invitation.Role, true, nil
}

// ExpireSweep deactivates invitations past their expiry. Scheduled out of
// band; a failed sweep is retried on the next interval.
func (s *InvitationService) ExpireSweep(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	swept, err := s.invitations.ExpireSweep(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		metrics.InvitationEvents.WithLabelValues("expired").Add(float64(swept))
	}
	return swept, nil
}

// List returns invitations for back-office display, newest first.
func (s *InvitationService) List(ctx context.Context, email string) ([]models.Invitation, error) {
	return s.invitations.List(ensureContext(ctx), email)
}

func (s *InvitationService) requireInviter(ctx context.Context, email string) (*models.Account, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrInsufficientPermission
	}

	actor, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("invitation service: load actor: %w", err)
	}
	if actor == nil || !actor.IsActive || !actor.Role.Privileged() {
		return nil, ErrInsufficientPermission
	}
	return actor, nil
}

func tokenHash(token string) string {
	checksum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(checksum[:])
}
