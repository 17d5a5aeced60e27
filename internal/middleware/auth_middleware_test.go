package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/accountd/internal/auth"
	"github.com/charlesng35/accountd/internal/models"
)

func newTestIssuer(t *testing.T) *iauth.TokenIssuer {
	t.Helper()
	issuer, err := iauth.NewTokenIssuer(iauth.TokenConfig{
		Secret:     "secret",
		Issuer:     "test-suite",
		SessionTTL: time.Minute,
	})
	require.NoError(t, err)
	return issuer
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	issuer := newTestIssuer(t)
	user := &models.User{BaseModel: models.BaseModel{ID: "user-123"}, Username: "alice", Email: "alice@x.com"}

	token, err := issuer.IssueSession(user)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/secure", Auth(issuer), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":  c.GetString(CtxUserIDKey),
			"username": c.GetString(CtxUsernameKey),
			"kind":     claimsKind(c),
		})
	})

	// Missing Authorization header -> 401
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, `Bearer realm="accountd"`, w.Header().Get("WWW-Authenticate"))

	// Valid token -> downstream handler executes
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "user-123", payload["user_id"])
	require.Equal(t, "alice", payload["username"])
	require.Equal(t, string(iauth.KindSession), payload["kind"])
}

func claimsKind(c *gin.Context) string {
	claims, ok := SessionClaims(c)
	if !ok {
		return ""
	}
	return string(claims.Type)
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":     "abc",
		"bearer  abc ":   "abc",
		"  Bearer abc":   "abc",
		"Bearer":         "",
		"Bearer ":        "",
		"Basic dXNlcg==": "",
		"":               "",
	}
	for header, want := range cases {
		got, ok := bearerToken(header)
		require.Equal(t, want, got, header)
		require.Equal(t, want != "", ok, header)
	}
}

func TestAuthMiddlewareRejectsNonSessionTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)

	issuer := newTestIssuer(t)
	reset, err := issuer.IssuePasswordReset(&models.User{Email: "alice@x.com"})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/secure", Auth(issuer), func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, header := range []string{"Bearer " + reset, "Bearer garbage", "Basic abc"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/secure", nil)
		req.Header.Set("Authorization", header)
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}
