package api

import (
	"github.com/gin-gonic/gin"

	"github.com/serviqo/serviqo/internal/handlers"
	"github.com/serviqo/serviqo/internal/middleware"
	"github.com/serviqo/serviqo/internal/models"
)

// registerAdminRoutes wires the back-office endpoints. Everything here
// requires at least the admin role; the services apply the finer-grained
// checks such as super-admin-only operations.
func registerAdminRoutes(group *gin.RouterGroup, deps Dependencies) error {
	accountHandler, err := handlers.NewAccountHandler(deps.Accounts, deps.Roles)
	if err != nil {
		return err
	}
	inviteHandler, err := handlers.NewInviteHandler(deps.Invitations)
	if err != nil {
		return err
	}
	auditHandler, err := handlers.NewAuditHandler(deps.Audit)
	if err != nil {
		return err
	}

	admin := group.Group("")
	admin.Use(middleware.Auth(deps.JWT, deps.Registry))
	admin.Use(middleware.RequireRole(models.RoleAdmin))

	accounts := admin.Group("/accounts")
	accounts.GET("", accountHandler.List)
	accounts.POST("/:id/promote", accountHandler.Promote)
	accounts.POST("/:id/demote", accountHandler.Demote)
	accounts.PATCH("/:id/active", accountHandler.SetActive)

	// Body-addressed variants of promote/demote; the /accounts/:id forms
	// cannot take a static sibling route in gin's tree.
	roles := admin.Group("/roles")
	roles.POST("/promote", accountHandler.PromoteByRef)
	roles.POST("/demote", accountHandler.DemoteByRef)

	invites := admin.Group("/invites")
	invites.GET("", inviteHandler.List)
	invites.POST("", inviteHandler.Create)
	invites.DELETE("/:id", inviteHandler.Revoke)

	audit := admin.Group("/audit")
	audit.GET("", auditHandler.List)
	audit.GET("/export", auditHandler.Export)

	return nil
}
