package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/serviqo/serviqo/internal/models"
)

var (
	// ErrInvitationNotFound indicates no invitation matches the identifier.
	ErrInvitationNotFound = errors.New("invitation store: not found")
	// ErrInvitationNotConsumable is returned when a conditional state change
	// (mark used, mark revoked) finds the invitation no longer eligible.
	ErrInvitationNotConsumable = errors.New("invitation store: not consumable")
)

// InvitationStore owns invitation rows. Validity is evaluated against the
// caller-supplied clock so expiry stays lazy and testable.
type InvitationStore struct {
	db *gorm.DB
}

// NewInvitationStore constructs an InvitationStore backed by the provided database.
func NewInvitationStore(db *gorm.DB) (*InvitationStore, error) {
	if db == nil {
		return nil, errors.New("invitation store: db is required")
	}
	return &InvitationStore{db: db}, nil
}

// FindValidByEmail returns the unique consumable invitation for an email, or
// (nil, nil) when none exists. Consumable means unused, active, and unexpired.
func (s *InvitationStore) FindValidByEmail(ctx context.Context, email string, now time.Time) (*models.Invitation, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, errors.New("invitation store: email is required")
	}

	var invitation models.Invitation
	err := s.db.WithContext(ctx).
		Where("email = ? AND is_used = ? AND is_active = ? AND expires_at > ?", email, false, true, now).
		First(&invitation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invitation store: find valid: %w", err)
	}
	return &invitation, nil
}

// FindByID loads an invitation by identifier.
func (s *InvitationStore) FindByID(ctx context.Context, id string) (*models.Invitation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("invitation store: id is required")
	}

	var invitation models.Invitation
	err := s.db.WithContext(ctx).First(&invitation, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invitation store: find by id: %w", err)
	}
	return &invitation, nil
}

// Create persists a new invitation.
func (s *InvitationStore) Create(ctx context.Context, invitation *models.Invitation) error {
	if invitation == nil {
		return errors.New("invitation store: invitation is required")
	}
	invitation.Email = NormalizeEmail(invitation.Email)

	if err := s.db.WithContext(ctx).Create(invitation).Error; err != nil {
		return fmt.Errorf("invitation store: create: %w", err)
	}
	return nil
}

// MarkUsed flips the invitation to used, conditionally on it still being
// consumable. The WHERE clause doubles as a compare-and-swap so two concurrent
// consumers cannot both succeed.
func (s *InvitationStore) MarkUsed(ctx context.Context, id string, now time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("id = ? AND is_used = ? AND is_active = ? AND expires_at > ?", id, false, true, now).
		Updates(map[string]any{
			"is_used": true,
			"used_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("invitation store: mark used: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvitationNotConsumable
	}
	return nil
}

// MarkRevoked deactivates an invitation that has not been used yet.
func (s *InvitationStore) MarkRevoked(ctx context.Context, id, revokedBy string, now time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("id = ? AND is_used = ?", id, false).
		Updates(map[string]any{
			"is_active":  false,
			"revoked_by": strings.TrimSpace(revokedBy),
			"revoked_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("invitation store: mark revoked: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvitationNotConsumable
	}
	return nil
}

// ExpireSweep deactivates every invitation past its expiry that is still
// unused and active, tagging it as revoked by the system.
func (s *InvitationStore) ExpireSweep(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("expires_at <= ? AND is_used = ? AND is_active = ?", now, false, true).
		Updates(map[string]any{
			"is_active":  false,
			"revoked_by": models.RevokedBySystem,
			"revoked_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("invitation store: expire sweep: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// List returns invitations newest-first, optionally filtered by email.
func (s *InvitationStore) List(ctx context.Context, email string) ([]models.Invitation, error) {
	query := s.db.WithContext(ctx).Model(&models.Invitation{})
	if email = NormalizeEmail(email); email != "" {
		query = query.Where("email = ?", email)
	}

	var invitations []models.Invitation
	if err := query.Order("created_at DESC").Find(&invitations).Error; err != nil {
		return nil, fmt.Errorf("invitation store: list: %w", err)
	}
	return invitations, nil
}
