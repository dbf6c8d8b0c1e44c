package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProviderCredentials marks accounts that authenticate with a local password.
// Any other provider value identifies a federated identity provider.
const ProviderCredentials = "credentials"

// Account describes a registered principal. Emails are stored lowercased and
// act as the external identity key; the role is mutated only by the role
// service, the sign-in flow (initial assignment), or bootstrap.
type Account struct {
	ID    string `gorm:"primaryKey;type:uuid" json:"id"`
	Email string `gorm:"uniqueIndex;not null" json:"email"`
	Name  string `json:"name"`

	Role     Role   `gorm:"not null;default:user;index" json:"role"`
	Provider string `gorm:"not null;default:credentials" json:"provider"`

	// ProviderAccountID is the identifier assigned by a federated provider.
	ProviderAccountID string `json:"provider_account_id,omitempty"`

	// PasswordHash is set only for credentials accounts.
	PasswordHash string `json:"-"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	// Provenance of the last role change. Last writer wins.
	PromotedBy string     `json:"promoted_by,omitempty"`
	PromotedAt *time.Time `json:"promoted_at,omitempty"`
	DemotedBy  string     `json:"demoted_by,omitempty"`
	DemotedAt  *time.Time `json:"demoted_at,omitempty"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP string     `json:"last_login_ip,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Federated reports whether the account is linked to an external identity provider.
func (a *Account) Federated() bool {
	return a.Provider != "" && a.Provider != ProviderCredentials
}
