package api

import (
	"github.com/gin-gonic/gin"

	"github.com/serviqo/serviqo/internal/handlers"
	"github.com/serviqo/serviqo/internal/middleware"
)

func registerAuthRoutes(group *gin.RouterGroup, deps Dependencies) error {
	handler, err := handlers.NewAuthHandler(deps.SignIn, deps.Accounts)
	if err != nil {
		return err
	}

	authGroup := group.Group("/auth")
	authGroup.POST("/login", handler.Login)
	authGroup.POST("/callback", handler.FederatedCallback)

	authed := authGroup.Group("")
	authed.Use(middleware.Auth(deps.JWT, deps.Registry))
	authed.POST("/logout", handler.Logout)
	authed.GET("/me", handler.Me)

	return nil
}
