package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accountd/internal/middleware"
)

func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

// sessionUserID returns the user id stored by middleware.RequireAuth, if any.
func sessionUserID(c *gin.Context) (string, bool) {
	id := c.GetString(middleware.CtxUserIDKey)
	return id, id != ""
}
