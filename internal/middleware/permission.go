package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accountd/internal/models"
	"github.com/charlesng35/accountd/pkg/errors"
	"github.com/charlesng35/accountd/pkg/metrics"
	"github.com/charlesng35/accountd/pkg/response"
)

// OwnershipChecker decides whether a user may act on another user's resources.
type OwnershipChecker interface {
	UserHasPermissionToUser(user *models.User, targetID string) bool
}

// RequireOwnership allows the request only when the authenticated user may act on the
// user named by the path parameter param. It must run after Auth.
func RequireOwnership(checker OwnershipChecker, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(CtxUserIDKey)
		if userID == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		caller := &models.User{BaseModel: models.BaseModel{ID: userID}, Username: c.GetString(CtxUsernameKey)}
		if !checker.UserHasPermissionToUser(caller, c.Param(param)) {
			metrics.OwnershipChecks.WithLabelValues("denied").Inc()
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}

		metrics.OwnershipChecks.WithLabelValues("allowed").Inc()
		c.Next()
	}
}
