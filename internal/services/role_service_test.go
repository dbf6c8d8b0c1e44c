package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/serviqo/serviqo/internal/database/testutil"
	"github.com/serviqo/serviqo/internal/models"
	"github.com/serviqo/serviqo/internal/services"
	"github.com/serviqo/serviqo/internal/store"
)

type fakeInvalidator struct {
	calls []string
}

func (f *fakeInvalidator) InvalidatePrincipal(principalID string) int {
	f.calls = append(f.calls, principalID)
	return 1
}

type roleFixture struct {
	db          *gorm.DB
	accounts    *store.AccountStore
	audit       *services.AuditService
	sessions    *fakeInvalidator
	service     *services.RoleService
	clock       time.Time
	actorSuper  *models.Account
	actorAdmin  *models.Account
	plainUser   *models.Account
	secondSuper *models.Account
}

func newRoleFixture(t *testing.T) *roleFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	accounts, err := store.NewAccountStore(db)
	require.NoError(t, err)
	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	clock := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	sessions := &fakeInvalidator{}
	service, err := services.NewRoleService(accounts, audit, sessions,
		services.WithRoleClock(func() time.Time { return clock }))
	require.NoError(t, err)

	fixture := &roleFixture{
		db:       db,
		accounts: accounts,
		audit:    audit,
		sessions: sessions,
		service:  service,
		clock:    clock,
	}
	fixture.actorSuper = fixture.seed(t, "root@example.com", models.RoleSuperAdmin, true)
	fixture.actorAdmin = fixture.seed(t, "admin@example.com", models.RoleAdmin, true)
	fixture.plainUser = fixture.seed(t, "user@example.com", models.RoleUser, true)
	return fixture
}

func (f *roleFixture) seed(t *testing.T, email string, role models.Role, active bool) *models.Account {
	t.Helper()
	account := &models.Account{Email: email, Role: role, IsActive: active}
	require.NoError(t, f.accounts.Create(context.Background(), account))
	return account
}

func (f *roleFixture) auditLogs(t *testing.T) []models.AuditLog {
	t.Helper()
	var logs []models.AuditLog
	require.NoError(t, f.db.Order("timestamp ASC").Find(&logs).Error)
	return logs
}

func TestPromoteByAdmin(t *testing.T) {
	f := newRoleFixture(t)

	account, err := f.service.Promote(context.Background(), f.actorAdmin.Email,
		services.TargetRef{Email: f.plainUser.Email}, models.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, account.Role)
	require.Equal(t, f.actorAdmin.Email, account.PromotedBy)
	require.NotNil(t, account.PromotedAt)

	require.Equal(t, []string{f.plainUser.ID}, f.sessions.calls)

	logs := f.auditLogs(t)
	require.Len(t, logs, 1)
	require.Equal(t, models.AuditUserPromoted, logs[0].Action)
	require.Equal(t, f.actorAdmin.Email, logs[0].AdminEmail)
	require.Equal(t, f.plainUser.Email, logs[0].TargetEmail)
	require.Contains(t, logs[0].Details, "user to admin")
}

func TestPromoteToSuperAdminRequiresSuperAdmin(t *testing.T) {
	f := newRoleFixture(t)

	_, err := f.service.Promote(context.Background(), f.actorAdmin.Email,
		services.TargetRef{Email: f.plainUser.Email}, models.RoleSuperAdmin)
	require.ErrorIs(t, err, services.ErrInsufficientPermission)

	account, err := f.service.Promote(context.Background(), f.actorSuper.Email,
		services.TargetRef{Email: f.plainUser.Email}, models.RoleSuperAdmin)
	require.NoError(t, err)
	require.Equal(t, models.RoleSuperAdmin, account.Role)
}

func TestPromoteRejectsNonPrivilegedActor(t *testing.T) {
	f := newRoleFixture(t)

	_, err := f.service.Promote(context.Background(), f.plainUser.Email,
		services.TargetRef{Email: f.actorAdmin.Email}, models.RoleAdmin)
	require.ErrorIs(t, err, services.ErrInsufficientPermission)

	// A disabled admin loses their authority too.
	disabled := f.seed(t, "former@example.com", models.RoleAdmin, false)
	_, err = f.service.Promote(context.Background(), disabled.Email,
		services.TargetRef{Email: f.plainUser.Email}, models.RoleAdmin)
	require.ErrorIs(t, err, services.ErrInsufficientPermission)
}

func TestPromoteNoOp(t *testing.T) {
	f := newRoleFixture(t)

	_, err := f.service.Promote(context.Background(), f.actorSuper.Email,
		services.TargetRef{Email: f.actorAdmin.Email}, models.RoleAdmin)
	require.ErrorIs(t, err, services.ErrNoOpRole)
	require.Empty(t, f.sessions.calls)
	require.Empty(t, f.auditLogs(t))
}

func TestPromoteSelfToSuperAdminDenied(t *testing.T) {
	f := newRoleFixture(t)

	_, err := f.service.Promote(context.Background(), f.actorAdmin.Email,
		services.TargetRef{Email: f.actorAdmin.Email}, models.RoleSuperAdmin)
	// The privilege gate runs first: an admin cannot grant super_admin at all.
	require.ErrorIs(t, err, services.ErrInsufficientPermission)

	_, err = f.service.Promote(context.Background(), f.actorSuper.Email,
		services.TargetRef{Email: f.actorSuper.Email}, models.RoleSuperAdmin)
	require.ErrorIs(t, err, services.ErrSelfPromotionDenied)
}

func TestPromoteUnknownTarget(t *testing.T) {
	f := newRoleFixture(t)

	_, err := f.service.Promote(context.Background(), f.actorSuper.Email,
		services.TargetRef{Email: "ghost@example.com"}, models.RoleAdmin)
	require.ErrorIs(t, err, services.ErrTargetNotFound)

	_, err = f.service.Promote(context.Background(), f.actorSuper.Email,
		services.TargetRef{ID: "no-such-id"}, models.RoleAdmin)
	require.ErrorIs(t, err, services.ErrTargetNotFound)
}

func TestPromoteRejectsUserRole(t *testing.T) {
	f := newRoleFixture(t)

	_, err := f.service.Promote(context.Background(), f.actorSuper.Email,
		services.TargetRef{Email: f.plainUser.Email}, models.RoleUser)
	require.Error(t, err)
}

func TestDemote(t *testing.T) {
	f := newRoleFixture(t)

	account, err := f.service.Demote(context.Background(), f.actorSuper.Email,
		services.TargetRef{Email: f.actorAdmin.Email})
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, account.Role)
	require.Equal(t, f.actorSuper.Email, account.DemotedBy)
	require.NotNil(t, account.DemotedAt)

	require.Equal(t, []string{f.actorAdmin.ID}, f.sessions.calls)

	logs := f.auditLogs(t)
	require.Len(t, logs, 1)
	require.Equal(t, models.AuditUserDemoted, logs[0].Action)
	require.Contains(t, logs[0].Details, "admin to user")
}

func TestPromoteThenDemoteRestoresRole(t *testing.T) {
	f := newRoleFixture(t)

	promoted, err := f.service.Promote(context.Background(), f.actorSuper.Email,
		services.TargetRef{Email: f.plainUser.Email}, models.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, promoted.Role)

	demoted, err := f.service.Demote(context.Background(), f.actorSuper.Email,
		services.TargetRef{Email: f.plainUser.Email})
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, demoted.Role)

	// The stored role is back where it started and each step left its own
	// audit entry.
	reloaded, err := f.accounts.FindByID(context.Background(), f.plainUser.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, reloaded.Role)

	logs := f.auditLogs(t)
	require.Len(t, logs, 2)
	require.NotEqual(t, logs[0].ID, logs[1].ID)
	require.ElementsMatch(t,
		[]string{models.AuditUserPromoted, models.AuditUserDemoted},
		[]string{logs[0].Action, logs[1].Action})

	require.Equal(t, []string{f.plainUser.ID, f.plainUser.ID}, f.sessions.calls)
}

func TestPromoteToleratesAuditOutage(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	accounts, err := store.NewAccountStore(db)
	require.NoError(t, err)

	// Audit writes go to a separate, already-closed database so every Log
	// call fails while the role update itself still works.
	auditDB := testutil.MustOpenTestDB(t)
	audit, err := services.NewAuditService(auditDB)
	require.NoError(t, err)
	sqlDB, err := auditDB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	service, err := services.NewRoleService(accounts, audit, nil)
	require.NoError(t, err)

	actor := &models.Account{Email: "root@example.com", Role: models.RoleSuperAdmin, IsActive: true}
	require.NoError(t, accounts.Create(context.Background(), actor))
	target := &models.Account{Email: "user@example.com", Role: models.RoleUser, IsActive: true}
	require.NoError(t, accounts.Create(context.Background(), target))

	account, err := service.Promote(context.Background(), actor.Email,
		services.TargetRef{Email: target.Email}, models.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, account.Role)

	reloaded, err := accounts.FindByID(context.Background(), target.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, reloaded.Role)
}

func TestDemoteAlreadyUser(t *testing.T) {
	f := newRoleFixture(t)

	_, err := f.service.Demote(context.Background(), f.actorSuper.Email,
		services.TargetRef{Email: f.plainUser.Email})
	require.ErrorIs(t, err, services.ErrAlreadyUser)
}

func TestDemoteSuperAdminRequiresSuperAdmin(t *testing.T) {
	f := newRoleFixture(t)

	_, err := f.service.Demote(context.Background(), f.actorAdmin.Email,
		services.TargetRef{Email: f.actorSuper.Email})
	require.ErrorIs(t, err, services.ErrInsufficientPermission)
}

func TestSoleSuperAdminSelfDemotionLockout(t *testing.T) {
	f := newRoleFixture(t)

	_, err := f.service.Demote(context.Background(), f.actorSuper.Email,
		services.TargetRef{Email: f.actorSuper.Email})
	require.ErrorIs(t, err, services.ErrSelfDemotionLockout)

	// With a second super admin present, self-demotion goes through.
	f.secondSuper = f.seed(t, "root2@example.com", models.RoleSuperAdmin, true)
	account, err := f.service.Demote(context.Background(), f.actorSuper.Email,
		services.TargetRef{Email: f.actorSuper.Email})
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, account.Role)
}

func TestDemoteOtherSuperAdminAllowedWhenLast(t *testing.T) {
	f := newRoleFixture(t)
	other := f.seed(t, "root2@example.com", models.RoleSuperAdmin, true)

	// The lockout protects only against self-demotion; a peer super admin can
	// still be demoted even when two remain.
	account, err := f.service.Demote(context.Background(), f.actorSuper.Email,
		services.TargetRef{Email: other.Email})
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, account.Role)
}
