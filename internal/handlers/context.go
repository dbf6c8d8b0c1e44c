package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/serviqo/serviqo/internal/middleware"
)

func currentEmail(c *gin.Context) string {
	return c.GetString(middleware.CtxEmailKey)
}

func currentUserID(c *gin.Context) string {
	return c.GetString(middleware.CtxUserIDKey)
}

func currentSessionID(c *gin.Context) string {
	return c.GetString(middleware.CtxSessionIDKey)
}
