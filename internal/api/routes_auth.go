package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accountd/internal/handlers"
)

func registerAuthRoutes(api *gin.RouterGroup, handler *handlers.AuthHandler, requireAuth gin.HandlerFunc) {
	auth := api.Group("/auth")
	{
		auth.POST("/register", handler.Register)
		auth.POST("/login", handler.Login)
		auth.POST("/verify", handler.Verify)
		auth.POST("/forgot", handler.ForgotPassword)
		auth.POST("/reset", handler.ResetPassword)
	}

	auth.GET("/me", requireAuth, handler.Me)
}
