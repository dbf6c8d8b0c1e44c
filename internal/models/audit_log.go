package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Audit actions form a closed enum; entries with any other action are rejected
// at the service boundary.
const (
	AuditUserPromoted      = "USER_PROMOTED"
	AuditUserDemoted       = "USER_DEMOTED"
	AuditInvitationCreated = "INVITATION_CREATED"
	AuditInvitationUsed    = "INVITATION_USED"
	AuditInvitationRevoked = "INVITATION_REVOKED"
	AuditAdminLogin        = "ADMIN_LOGIN"
	AuditAdminLogout       = "ADMIN_LOGOUT"
	AuditPermissionChanged = "PERMISSION_CHANGED"
)

// AuditLog records a single privilege-affecting action. Rows are append-only;
// nothing in this codebase updates or deletes them apart from retention cleanup.
type AuditLog struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	Action      string    `gorm:"not null;index" json:"action"`
	AdminEmail  string    `gorm:"index" json:"admin_email,omitempty"`
	TargetEmail string    `gorm:"index" json:"target_email,omitempty"`
	InvitedBy   string    `json:"invited_by,omitempty"`
	Role        string    `json:"role,omitempty"`
	IPAddress   string    `json:"ip_address,omitempty"`
	Details     string    `json:"details,omitempty"`
	Timestamp   time.Time `gorm:"index" json:"timestamp"`
}

// BeforeCreate assigns an identifier and defaults the timestamp to write time.
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	return nil
}
