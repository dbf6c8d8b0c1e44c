package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/serviqo/serviqo/internal/auth"
	"github.com/serviqo/serviqo/internal/handlers"
	"github.com/serviqo/serviqo/internal/middleware"
	"github.com/serviqo/serviqo/internal/services"
	"github.com/serviqo/serviqo/internal/store"
)

// Dependencies bundles everything the router needs.
type Dependencies struct {
	DB          *gorm.DB
	Accounts    *store.AccountStore
	Roles       *services.RoleService
	Invitations *services.InvitationService
	Audit       *services.AuditService
	Bootstrap   *services.BootstrapService
	SignIn      *auth.SignInService
	JWT         *auth.JWTService
	Registry    *auth.SessionRegistry
}

func (d Dependencies) validate() error {
	switch {
	case d.DB == nil:
		return errors.New("api: db is required")
	case d.Accounts == nil:
		return errors.New("api: account store is required")
	case d.Roles == nil:
		return errors.New("api: role service is required")
	case d.Invitations == nil:
		return errors.New("api: invitation service is required")
	case d.Audit == nil:
		return errors.New("api: audit service is required")
	case d.SignIn == nil:
		return errors.New("api: signin service is required")
	case d.JWT == nil:
		return errors.New("api: jwt service is required")
	case d.Registry == nil:
		return errors.New("api: session registry is required")
	}
	return nil
}

// NewRouter assembles the gin engine with middleware and all route groups.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.Metrics())

	healthHandler, err := handlers.NewHealthHandler(deps.DB, deps.Bootstrap)
	if err != nil {
		return nil, err
	}
	router.GET("/health", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := router.Group("/api")
	if err := registerAuthRoutes(apiGroup, deps); err != nil {
		return nil, err
	}
	if err := registerAdminRoutes(apiGroup, deps); err != nil {
		return nil, err
	}

	return router, nil
}
