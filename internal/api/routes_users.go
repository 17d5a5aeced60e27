package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accountd/internal/handlers"
	"github.com/charlesng35/accountd/internal/middleware"
)

func registerUserRoutes(api *gin.RouterGroup, handler *handlers.UserHandler, checker middleware.OwnershipChecker, requireAuth gin.HandlerFunc) {
	users := api.Group("/users")
	users.Use(requireAuth)
	{
		users.GET("/:id", middleware.RequireOwnership(checker, "id"), handler.Get)
	}
}
