package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/serviqo/serviqo/internal/models"
)

var auditActions = map[string]struct{}{
	models.AuditUserPromoted:      {},
	models.AuditUserDemoted:       {},
	models.AuditInvitationCreated: {},
	models.AuditInvitationUsed:    {},
	models.AuditInvitationRevoked: {},
	models.AuditAdminLogin:        {},
	models.AuditAdminLogout:       {},
	models.AuditPermissionChanged: {},
}

// AuditEntry captures a single privilege-affecting event to persist.
type AuditEntry struct {
	Action      string
	AdminEmail  string
	TargetEmail string
	InvitedBy   string
	Role        string
	IPAddress   string
	Details     string
	Timestamp   *time.Time
}

// AuditFilters encapsulates optional filters when querying audit logs.
type AuditFilters struct {
	AdminEmail  string
	TargetEmail string
	Action      string
	Since       *time.Time
	Until       *time.Time
}

// AuditListOptions controls pagination and filtering for audit queries.
type AuditListOptions struct {
	Page     int
	PageSize int
	Filters  AuditFilters
}

// AuditService persists and retrieves audit log entries. Rows are immutable
// once written; retention cleanup is the only deletion path.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService constructs an AuditService using the provided database handle.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db}, nil
}

// Log stores an audit entry. The action must belong to the closed enum; the
// timestamp defaults to write time when omitted.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	ctx = ensureContext(ctx)

	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return errors.New("audit service: action is required")
	}
	if _, ok := auditActions[action]; !ok {
		return fmt.Errorf("audit service: unknown action %q", action)
	}

	row := models.AuditLog{
		Action:      action,
		AdminEmail:  strings.ToLower(strings.TrimSpace(entry.AdminEmail)),
		TargetEmail: strings.ToLower(strings.TrimSpace(entry.TargetEmail)),
		InvitedBy:   strings.ToLower(strings.TrimSpace(entry.InvitedBy)),
		Role:        strings.TrimSpace(entry.Role),
		IPAddress:   strings.TrimSpace(entry.IPAddress),
		Details:     strings.TrimSpace(entry.Details),
	}

	if entry.Timestamp != nil {
		row.Timestamp = *entry.Timestamp
	}

	return s.db.WithContext(ctx).Create(&row).Error
}

// List returns paginated audit logs ordered by timestamp descending.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) ([]models.AuditLog, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	var (
		results []models.AuditLog
		total   int64
	)

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})
	query = applyAuditFilters(query, opts.Filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count logs: %w", err)
	}

	if err := query.
		Order("timestamp DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&results).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: list logs: %w", err)
	}

	return results, total, nil
}

// Export returns audit logs that match the provided filters without pagination.
func (s *AuditService) Export(ctx context.Context, filters AuditFilters) ([]models.AuditLog, error) {
	ctx = ensureContext(ctx)

	var logs []models.AuditLog
	query := s.db.WithContext(ctx).Model(&models.AuditLog{})
	query = applyAuditFilters(query, filters)

	if err := query.Order("timestamp DESC").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("audit service: export logs: %w", err)
	}

	return logs, nil
}

// CleanupOlderThan removes audit logs older than the supplied retention window (in days).
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)

	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result := s.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup logs: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func applyAuditFilters(query *gorm.DB, filters AuditFilters) *gorm.DB {
	if filters.AdminEmail != "" {
		query = query.Where("admin_email = ?", strings.ToLower(filters.AdminEmail))
	}
	if filters.TargetEmail != "" {
		query = query.Where("target_email = ?", strings.ToLower(filters.TargetEmail))
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.Since != nil {
		query = query.Where("timestamp >= ?", *filters.Since)
	}
	if filters.Until != nil {
		query = query.Where("timestamp <= ?", *filters.Until)
	}
	return query
}
