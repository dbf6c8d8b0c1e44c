package handlers

import (
	"encoding/csv"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/serviqo/serviqo/internal/services"
	apperrors "github.com/serviqo/serviqo/pkg/errors"
	"github.com/serviqo/serviqo/pkg/response"
)

// AuditHandler exposes read-only access to the audit trail.
type AuditHandler struct {
	audit *services.AuditService
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(audit *services.AuditService) (*AuditHandler, error) {
	if audit == nil {
		return nil, errors.New("audit handler: audit service is required")
	}
	return &AuditHandler{audit: audit}, nil
}

func auditFilters(c *gin.Context) (services.AuditFilters, error) {
	filters := services.AuditFilters{
		AdminEmail:  c.Query("admin_email"),
		TargetEmail: c.Query("target_email"),
		Action:      c.Query("action"),
	}

	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, apperrors.NewBadRequest("since must be RFC3339")
		}
		filters.Since = &since
	}
	if raw := c.Query("until"); raw != "" {
		until, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, apperrors.NewBadRequest("until must be RFC3339")
		}
		filters.Until = &until
	}

	return filters, nil
}

// List handles GET /api/audit with pagination and filters.
func (h *AuditHandler) List(c *gin.Context) {
	filters, err := auditFilters(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	opts := services.AuditListOptions{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "per_page", 50),
		Filters:  filters,
	}

	logs, total, err := h.audit.List(c.Request.Context(), opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, logs, pageMeta(opts.Page, opts.PageSize, total))
}

// Export handles GET /api/audit/export. format=csv streams a CSV file;
// anything else returns the full JSON result set.
func (h *AuditHandler) Export(c *gin.Context) {
	filters, err := auditFilters(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	logs, err := h.audit.Export(c.Request.Context(), filters)
	if err != nil {
		response.Error(c, err)
		return
	}

	if c.Query("format") != "csv" {
		response.Success(c, http.StatusOK, logs)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="audit-log.csv"`)

	writer := csv.NewWriter(c.Writer)
	_ = writer.Write([]string{"timestamp", "action", "admin_email", "target_email", "invited_by", "role", "ip_address", "details"})
	for i := range logs {
		entry := &logs[i]
		_ = writer.Write([]string{
			entry.Timestamp.UTC().Format(time.RFC3339),
			entry.Action,
			entry.AdminEmail,
			entry.TargetEmail,
			entry.InvitedBy,
			entry.Role,
			entry.IPAddress,
			entry.Details,
		})
	}
	writer.Flush()
}
