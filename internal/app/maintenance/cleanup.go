package maintenance

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	iauth "github.com/serviqo/serviqo/internal/auth"
	"github.com/serviqo/serviqo/internal/services"
	"github.com/serviqo/serviqo/pkg/logger"
)

const (
	defaultAuditRetentionDays = 365
	defaultInvitationSpec     = "@every 10m"
	defaultSessionSpec        = "@hourly"
	defaultAuditSpec          = "@daily"
)

// Cleaner coordinates background maintenance: sweeping expired invitations,
// purging dead sessions, and enforcing audit log retention. The sweep is a
// safety net; expiry is also enforced lazily at read time.
type Cleaner struct {
	invitations *services.InvitationService
	registry    *iauth.SessionRegistry
	audit       *services.AuditService
	cron        *cron.Cron
	log         *zap.Logger
	enabled     bool
	retention   int

	invitationSchedule string
	sessionSchedule    string
	auditSchedule      string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithInvitationSchedule overrides the cron specification for the invitation sweep.
func WithInvitationSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.invitationSchedule = spec
		}
	}
}

// WithSessionSchedule overrides the cron specification for session cleanup.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency
// results in the corresponding cleanup job being skipped.
func NewCleaner(invitations *services.InvitationService, registry *iauth.SessionRegistry, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		invitations:        invitations,
		registry:           registry,
		audit:              audit,
		retention:          defaultAuditRetentionDays,
		invitationSchedule: defaultInvitationSpec,
		sessionSchedule:    defaultSessionSpec,
		auditSchedule:      defaultAuditSpec,
		log:                logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.invitations != nil || cleaner.registry != nil || cleaner.audit != nil

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at
// least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.invitations != nil {
		if _, err := c.cron.AddFunc(c.invitationSchedule, func() {
			swept, err := c.invitations.ExpireSweep(context.Background())
			if err != nil {
				c.log.Warn("invitation sweep failed", zap.Error(err))
				return
			}
			if swept > 0 {
				c.log.Info("expired invitations swept", zap.Int64("count", swept))
			}
		}); err != nil {
			return err
		}
	}

	if c.registry != nil {
		if _, err := c.cron.AddFunc(c.sessionSchedule, func() {
			if removed := c.registry.Sweep(); removed > 0 {
				c.log.Info("stale sessions removed", zap.Int("count", removed))
			}
		}); err != nil {
			return err
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			if _, err := c.audit.CleanupOlderThan(context.Background(), c.retention); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily
// used in tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.invitations != nil {
		if _, err := c.invitations.ExpireSweep(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.registry != nil {
		c.registry.Sweep()
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.audit.CleanupOlderThan(ctx, c.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
