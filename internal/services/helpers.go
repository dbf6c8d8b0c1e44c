package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/serviqo/serviqo/pkg/logger"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// recordAudit logs the supplied entry while tolerating audit failures. The
// surrounding state change must never be rolled back by an audit outage;
// a failed write is reported through the logger and otherwise swallowed.
func recordAudit(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	if err := audit.Log(ctx, entry); err != nil {
		logger.WithModule("audit").Warn("audit write failed",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}
