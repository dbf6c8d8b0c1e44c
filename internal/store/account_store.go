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

// ErrAccountNotFound indicates the requested account does not exist.
var ErrAccountNotFound = errors.New("account store: not found")

// RoleChange carries the provenance recorded alongside a role update.
type RoleChange struct {
	By       string
	At       time.Time
	Demotion bool
}

// AccountFilters captures listing filters.
type AccountFilters struct {
	Role     models.Role
	IsActive *bool
	Query    string
}

// ListAccountsOptions controls pagination for account listing.
type ListAccountsOptions struct {
	Page     int
	PageSize int
	Filters  AccountFilters
}

// AccountStore is the persistence wrapper for principals. It carries no
// authorization logic; callers are expected to have checked privilege already.
type AccountStore struct {
	db *gorm.DB
}

// NewAccountStore constructs an AccountStore backed by the provided database.
func NewAccountStore(db *gorm.DB) (*AccountStore, error) {
	if db == nil {
		return nil, errors.New("account store: db is required")
	}
	return &AccountStore{db: db}, nil
}

// NormalizeEmail lowercases and trims an email for use as an identity key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindByEmail loads an account by its case-insensitive email. A missing
// account returns (nil, nil).
func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, errors.New("account store: email is required")
	}

	var account models.Account
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("account store: find by email: %w", err)
	}
	return &account, nil
}

// FindByID loads an account by identifier.
func (s *AccountStore) FindByID(ctx context.Context, id string) (*models.Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("account store: id is required")
	}

	var account models.Account
	err := s.db.WithContext(ctx).First(&account, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account store: find by id: %w", err)
	}
	return &account, nil
}

// Create persists a new account, normalising the email first.
func (s *AccountStore) Create(ctx context.Context, account *models.Account) error {
	if account == nil {
		return errors.New("account store: account is required")
	}
	account.Email = NormalizeEmail(account.Email)
	if account.Email == "" {
		return errors.New("account store: email is required")
	}
	if !account.Role.Valid() {
		account.Role = models.RoleUser
	}

	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		return fmt.Errorf("account store: create: %w", err)
	}
	return nil
}

// UpdateRole sets the account's role together with its provenance columns.
// Promotion and demotion each overwrite only their own provenance pair.
func (s *AccountStore) UpdateRole(ctx context.Context, id string, role models.Role, change RoleChange) error {
	if !role.Valid() {
		return fmt.Errorf("account store: invalid role %q", role)
	}

	updates := map[string]any{"role": role}
	if change.Demotion {
		updates["demoted_by"] = change.By
		updates["demoted_at"] = change.At
	} else {
		updates["promoted_by"] = change.By
		updates["promoted_at"] = change.At
	}

	result := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("account store: update role: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetActive toggles the soft-disable flag.
func (s *AccountStore) SetActive(ctx context.Context, id string, active bool) error {
	result := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", id).
		Update("is_active", active)
	if result.Error != nil {
		return fmt.Errorf("account store: set active: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetPassword stores a new bcrypt hash for the account.
func (s *AccountStore) SetPassword(ctx context.Context, id, passwordHash string) error {
	result := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", id).
		Update("password_hash", passwordHash)
	if result.Error != nil {
		return fmt.Errorf("account store: set password: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// RecordLogin stamps last-login bookkeeping on the account.
func (s *AccountStore) RecordLogin(ctx context.Context, id, ip string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_login_at": at,
			"last_login_ip": strings.TrimSpace(ip),
		}).Error
	if err != nil {
		return fmt.Errorf("account store: record login: %w", err)
	}
	return nil
}

// UpdateProvider links an account to a federated identity provider.
func (s *AccountStore) UpdateProvider(ctx context.Context, id, provider, providerAccountID string) error {
	err := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"provider":            strings.TrimSpace(provider),
			"provider_account_id": strings.TrimSpace(providerAccountID),
		}).Error
	if err != nil {
		return fmt.Errorf("account store: update provider: %w", err)
	}
	return nil
}

// CountByRole returns the number of accounts holding the given role.
func (s *AccountStore) CountByRole(ctx context.Context, role models.Role) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("role = ?", role).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("account store: count by role: %w", err)
	}
	return count, nil
}

// CountAll returns the total number of registered accounts.
func (s *AccountStore) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Account{}).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("account store: count all: %w", err)
	}
	return count, nil
}

// List retrieves accounts matching the supplied filters with pagination.
func (s *AccountStore) List(ctx context.Context, opts ListAccountsOptions) ([]models.Account, int64, error) {
	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	query := s.db.WithContext(ctx).Model(&models.Account{})
	if opts.Filters.Role != "" {
		query = query.Where("role = ?", opts.Filters.Role)
	}
	if opts.Filters.IsActive != nil {
		query = query.Where("is_active = ?", *opts.Filters.IsActive)
	}
	if q := strings.TrimSpace(opts.Filters.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("account store: count: %w", err)
	}

	var accounts []models.Account
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&accounts).Error; err != nil {
		return nil, 0, fmt.Errorf("account store: list: %w", err)
	}

	return accounts, total, nil
}
