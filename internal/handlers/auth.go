package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accountd/internal/services"
	appErrors "github.com/charlesng35/accountd/pkg/errors"
	"github.com/charlesng35/accountd/pkg/response"
	appValidator "github.com/charlesng35/accountd/pkg/validator"
)

// AuthHandler exposes the account lifecycle over HTTP.
type AuthHandler struct {
	accounts *services.AccountService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(accounts *services.AccountService) (*AuthHandler, error) {
	if accounts == nil {
		return nil, errors.New("auth handler: account service is required")
	}
	return &AuthHandler{accounts: accounts}, nil
}

type registerRequest struct {
	Username        string `json:"username" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
	FirstName       string `json:"first_name" validate:"required"`
	LastName        string `json:"last_name" validate:"required"`
}

func registrationRules(req registerRequest) appValidator.RuleSet {
	return appValidator.RuleSet{
		"username":         {appValidator.Required(), appValidator.Length(3, 255)},
		"email":            {appValidator.Required(), appValidator.Email()},
		"password":         {appValidator.Required(), appValidator.Password()},
		"confirm_password": {appValidator.EqualTo("password", req.Password)},
		"first_name":       {appValidator.Required()},
		"last_name":        {appValidator.Required()},
	}
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if !applyRules(c, registrationRules(req), map[string]string{
		"username":         strings.TrimSpace(req.Username),
		"email":            strings.TrimSpace(req.Email),
		"password":         req.Password,
		"confirm_password": req.ConfirmPassword,
		"first_name":       req.FirstName,
		"last_name":        req.LastName,
	}) {
		return
	}

	user, err := h.accounts.Register(requestContext(c), services.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	token, err := h.accounts.Login(requestContext(c), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		// Unverified accounts surface USER_NOT_VERIFIED with resend_attempted in details.
		response.Error(c, err)
		return
	}
	if token == "" {
		response.Error(c, appErrors.ErrInvalidCredentials)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"jwt": token})
}

// POST /api/auth/verify?token=
func (h *AuthHandler) Verify(c *gin.Context) {
	verified, err := h.accounts.Verify(requestContext(c), strings.TrimSpace(c.Query("token")))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !verified {
		response.Error(c, appErrors.ErrVerificationFailed)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"verified": true})
}

// POST /api/auth/forgot?email=
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		response.Error(c, appErrors.NewBadRequest("email is required"))
		return
	}

	if err := h.accounts.ForgotPassword(requestContext(c), email); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sent": true})
}

type resetRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

var resetRules = appValidator.RuleSet{
	"password": {appValidator.Required(), appValidator.Password()},
}

// POST /api/auth/reset
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if !applyRules(c, resetRules, map[string]string{"password": req.Password}) {
		return
	}

	if err := h.accounts.ResetPassword(requestContext(c), strings.TrimSpace(req.Token), req.Password); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"reset": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	user, err := h.accounts.GetUser(requestContext(c), userID)
	if err != nil {
		// A valid session for a deleted account is treated as unauthenticated.
		if errors.Is(err, appErrors.ErrNotFound) {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}
