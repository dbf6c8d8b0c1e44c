package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/serviqo/serviqo/internal/services"
	"github.com/serviqo/serviqo/pkg/response"
)

// HealthHandler reports process and database health.
type HealthHandler struct {
	db        *gorm.DB
	bootstrap *services.BootstrapService
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *gorm.DB, bootstrap *services.BootstrapService) (*HealthHandler, error) {
	if db == nil {
		return nil, errors.New("health handler: db is required")
	}
	return &HealthHandler{db: db, bootstrap: bootstrap}, nil
}

// Check handles GET /health. A reachable database is required; a missing
// super admin is reported as a warning but does not fail the check.
func (h *HealthHandler) Check(c *gin.Context) {
	status := gin.H{"status": "ok"}

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		status["status"] = "degraded"
		status["database"] = "unreachable"
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	status["database"] = "ok"

	if h.bootstrap != nil {
		exists, err := h.bootstrap.VerifyExists(c.Request.Context())
		if err == nil && !exists {
			status["warning"] = "no super admin account exists"
		}
	}

	response.Success(c, http.StatusOK, status)
}
