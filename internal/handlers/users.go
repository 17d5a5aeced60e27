package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accountd/internal/services"
	"github.com/charlesng35/accountd/pkg/response"
)

// UserHandler serves per-user resources. Routes are guarded by middleware.RequireOwnership.
type UserHandler struct {
	accounts *services.AccountService
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(accounts *services.AccountService) (*UserHandler, error) {
	if accounts == nil {
		return nil, errors.New("user handler: account service is required")
	}
	return &UserHandler{accounts: accounts}, nil
}

// GET /api/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.accounts.GetUser(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}
