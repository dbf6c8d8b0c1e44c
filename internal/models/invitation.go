package models

import "time"

// RevokedBySystem tags invitations deactivated by the expiry sweep rather than
// an administrator.
const RevokedBySystem = "system"

// Invitation is a time-boxed, single-use grant of a privileged role to the
// holder of the matching email. Only the SHA-256 hash of the token is stored.
type Invitation struct {
	BaseModel

	Email     string `gorm:"not null;index" json:"email"`
	Role      Role   `gorm:"not null" json:"role"`
	InvitedBy string `gorm:"not null" json:"invited_by"`
	TokenHash string `gorm:"uniqueIndex;not null" json:"-"`

	ExpiresAt time.Time `gorm:"index" json:"expires_at"`

	IsUsed bool       `gorm:"default:false;index" json:"is_used"`
	UsedAt *time.Time `json:"used_at,omitempty"`

	IsActive  bool       `gorm:"default:true;index" json:"is_active"`
	RevokedBy string     `json:"revoked_by,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Consumable reports whether the invitation can still be redeemed at the given
// instant. Expiry is evaluated lazily; the stored flags are not required to
// reflect it.
func (i *Invitation) Consumable(now time.Time) bool {
	return !i.IsUsed && i.IsActive && now.Before(i.ExpiresAt)
}

// Status derives a display status for back-office listings.
func (i *Invitation) Status(now time.Time) string {
	switch {
	case i.IsUsed:
		return "used"
	case !i.IsActive:
		return "revoked"
	case !now.Before(i.ExpiresAt):
		return "expired"
	default:
		return "pending"
	}
}
