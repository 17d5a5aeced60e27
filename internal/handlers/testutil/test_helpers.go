package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/charlesng35/accountd/internal/api"
	"github.com/charlesng35/accountd/internal/app"
	iauth "github.com/charlesng35/accountd/internal/auth"
	sharedtestutil "github.com/charlesng35/accountd/internal/database/testutil"
	"github.com/charlesng35/accountd/internal/models"
	"github.com/charlesng35/accountd/internal/services"
	"github.com/charlesng35/accountd/internal/store"
	"github.com/charlesng35/accountd/pkg/mail"
	"github.com/charlesng35/accountd/pkg/response"
)

// FrontendURL is the link base used in emails sent by the test environment.
const FrontendURL = "https://app.example.com"

// Mailer records outbound email instead of delivering it.
type Mailer struct {
	mu       sync.Mutex
	messages []mail.Message
	err      error
}

// Send implements mail.Mailer.
func (m *Mailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

// Fail makes every later Send return err. A nil err restores delivery.
func (m *Mailer) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Sent returns a copy of the delivered messages.
func (m *Mailer) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mail.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	Store    *store.GormStore
	Router   *gin.Engine
	Tokens   *iauth.TokenIssuer
	Accounts *services.AccountService
	Mailer   *Mailer
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	st, err := store.New(sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate()))
	require.NoError(t, err)

	cfg := &app.Config{
		Server: app.ServerConfig{Port: 8000},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
			},
			Hashing: app.HashingSettings{Cost: bcrypt.MinCost, Workers: 4},
		},
		Email: app.EmailConfig{
			From:        "no-reply@accountd.test",
			FrontendURL: FrontendURL,
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}

	tokens, err := iauth.NewTokenIssuer(cfg.Auth.TokenConfig())
	require.NoError(t, err)
	credentials, err := iauth.NewCredentialService(cfg.Auth.CredentialConfig())
	require.NoError(t, err)
	verification, err := services.NewVerificationTokenManager(st, tokens,
		services.WithResendCooldown(cfg.Auth.ResendCooldown()))
	require.NoError(t, err)

	mailer := &Mailer{}
	notifier, err := services.NewNotifier(mailer, cfg.Email.From, cfg.Email.FrontendURL)
	require.NoError(t, err)

	accounts, err := services.NewAccountService(st, credentials, tokens, verification, notifier)
	require.NoError(t, err)

	router, err := api.NewRouter(cfg, api.Dependencies{Accounts: accounts, Tokens: tokens})
	require.NoError(t, err)

	return &Env{
		T:        t,
		Store:    st,
		Router:   router,
		Tokens:   tokens,
		Accounts: accounts,
		Mailer:   mailer,
	}
}

// RegisterPayload builds a valid registration body for username.
func RegisterPayload(username, password string) map[string]string {
	return map[string]string{
		"username":         username,
		"email":            username + "@example.com",
		"password":         password,
		"confirm_password": password,
		"first_name":       "Test",
		"last_name":        "User",
	}
}

// Register creates an unverified account through the API and returns it.
func (e *Env) Register(username, password string) UserPayload {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/register", RegisterPayload(username, password), "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	var user UserPayload
	DecodeInto(e.T, DecodeResponse(e.T, w).Data, &user)
	require.NotEmpty(e.T, user.ID)
	return user
}

// CreateVerifiedUser registers an account and follows the emailed verification link.
func (e *Env) CreateVerifiedUser(username, password string) UserPayload {
	e.T.Helper()

	user := e.Register(username, password)
	token := e.LastEmailToken()

	w := e.Request(http.MethodPost, "/api/auth/verify?token="+url.QueryEscape(token), nil, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())
	return user
}

// LastEmailToken returns the token query parameter from the link in the newest email.
func (e *Env) LastEmailToken() string {
	e.T.Helper()

	sent := e.Mailer.Sent()
	require.NotEmpty(e.T, sent, "expected at least one email")
	body := strings.TrimSpace(sent[len(sent)-1].Body)
	lines := strings.Split(body, "\n")

	link, err := url.Parse(strings.TrimSpace(lines[len(lines)-1]))
	require.NoError(e.T, err)
	token := link.Query().Get("token")
	require.NotEmpty(e.T, token)
	return token
}

// UserPayload captures the user fields returned from auth endpoints.
type UserPayload struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	EmailVerified bool   `json:"email_verified"`
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	JWT string `json:"jwt"`
}

// Login authenticates a verified user and returns the session token.
func (e *Env) Login(username, password string) string {
	e.T.Helper()

	payload := map[string]string{
		"username": username,
		"password": password,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.JWT)
	return result.JWT
}

// FindUser loads a user straight from the store.
func (e *Env) FindUser(username string) *models.User {
	e.T.Helper()
	user, err := e.Store.FindUserByUsername(context.Background(), username)
	require.NoError(e.T, err)
	return user
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
