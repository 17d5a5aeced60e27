package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/charlesng35/accountd/internal/models"
	"github.com/charlesng35/accountd/pkg/crypto"
)

const (
	// DefaultSessionTTL is the fallback validity period for session tokens.
	DefaultSessionTTL = time.Hour
	// DefaultPasswordResetTTL is the fallback validity period for password reset tokens.
	DefaultPasswordResetTTL = 15 * time.Minute

	verificationNonceBytes = 16
)

// ErrInvalidToken is returned for any token that fails signature, issuer, type or expiry checks.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenKind distinguishes the purpose a token was minted for.
type TokenKind string

const (
	KindSession           TokenKind = "session"
	KindEmailVerification TokenKind = "email_verification"
	KindPasswordReset     TokenKind = "password_reset"
)

// TokenConfig bundles the configuration required to build a TokenIssuer.
type TokenConfig struct {
	Secret string
	Issuer string

	SessionTTL time.Duration
	// VerificationTTL of zero mints verification tokens without an expiry.
	VerificationTTL  time.Duration
	PasswordResetTTL time.Duration

	Clock func() time.Time
}

// Claims represents the custom claims embedded in issued tokens.
type Claims struct {
	Type     TokenKind `json:"typ"`
	Username string    `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and parses HS256 tokens. It keeps no per-token state.
type TokenIssuer struct {
	secret          []byte
	issuer          string
	sessionTTL      time.Duration
	verificationTTL time.Duration
	resetTTL        time.Duration
	now             func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer when provided with the required configuration.
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}

	resetTTL := cfg.PasswordResetTTL
	if resetTTL <= 0 {
		resetTTL = DefaultPasswordResetTTL
	}

	verificationTTL := cfg.VerificationTTL
	if verificationTTL < 0 {
		verificationTTL = 0
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &TokenIssuer{
		secret:          []byte(cfg.Secret),
		issuer:          cfg.Issuer,
		sessionTTL:      sessionTTL,
		verificationTTL: verificationTTL,
		resetTTL:        resetTTL,
		now:             now,
	}, nil
}

// IssueSession returns a session token whose subject is the user id.
func (s *TokenIssuer) IssueSession(user *models.User) (string, error) {
	if user == nil || user.ID == "" {
		return "", errors.New("jwt: user id is required")
	}
	return s.sign(KindSession, user.ID, user.Username, "", s.sessionTTL)
}

// IssueVerification returns an email verification token for the user. Each token carries a
// random id so tokens minted within the same second still differ.
func (s *TokenIssuer) IssueVerification(user *models.User) (string, error) {
	if user == nil || user.ID == "" {
		return "", errors.New("jwt: user id is required")
	}
	nonce, err := crypto.GenerateToken(verificationNonceBytes)
	if err != nil {
		return "", fmt.Errorf("jwt: generate token id: %w", err)
	}
	return s.sign(KindEmailVerification, user.ID, "", nonce, s.verificationTTL)
}

// IssuePasswordReset returns a reset token whose subject is the user's email address.
func (s *TokenIssuer) IssuePasswordReset(user *models.User) (string, error) {
	if user == nil || strings.TrimSpace(user.Email) == "" {
		return "", errors.New("jwt: user email is required")
	}
	return s.sign(KindPasswordReset, user.Email, "", "", s.resetTTL)
}

// ParseSession validates a session token and returns its claims.
func (s *TokenIssuer) ParseSession(token string) (*Claims, error) {
	return s.parse(token, KindSession)
}

// ParseVerification validates an email verification token and returns its claims.
func (s *TokenIssuer) ParseVerification(token string) (*Claims, error) {
	return s.parse(token, KindEmailVerification)
}

// ParsePasswordResetSubject validates a reset token and returns the email it was issued for.
func (s *TokenIssuer) ParsePasswordResetSubject(token string) (string, error) {
	claims, err := s.parse(token, KindPasswordReset)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *TokenIssuer) sign(kind TokenKind, subject, username, id string, ttl time.Duration) (string, error) {
	now := s.now()

	claims := &Claims{
		Type:     kind,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       id,
			Subject:  subject,
			Issuer:   s.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

func (s *TokenIssuer) parse(tokenString string, kind TokenKind) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("%w: token string is empty", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithIssuedAt(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var claims Claims
	_, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Type != kind {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, kind, claims.Type)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &claims, nil
}
