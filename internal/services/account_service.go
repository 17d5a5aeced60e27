package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/accountd/internal/auth"
	"github.com/charlesng35/accountd/internal/models"
	"github.com/charlesng35/accountd/internal/store"
	apperrors "github.com/charlesng35/accountd/pkg/errors"
	"github.com/charlesng35/accountd/pkg/logger"
	"github.com/charlesng35/accountd/pkg/metrics"
)

// RegisterInput carries already validated registration fields.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// AccountOption customises the AccountService.
type AccountOption func(*AccountService)

// WithAccountLogger replaces the module logger.
func WithAccountLogger(log *zap.Logger) AccountOption {
	return func(s *AccountService) {
		if log != nil {
			s.log = log
		}
	}
}

// AccountService drives the account lifecycle: registration, verification-gated login
// and password reset.
type AccountService struct {
	store        store.Store
	credentials  *auth.CredentialService
	tokens       *auth.TokenIssuer
	verification *VerificationTokenManager
	notifier     *Notifier
	log          *zap.Logger
}

// NewAccountService constructs an AccountService instance.
func NewAccountService(
	st store.Store,
	credentials *auth.CredentialService,
	tokens *auth.TokenIssuer,
	verification *VerificationTokenManager,
	notifier *Notifier,
	opts ...AccountOption,
) (*AccountService, error) {
	switch {
	case st == nil:
		return nil, errors.New("account service: store is required")
	case credentials == nil:
		return nil, errors.New("account service: credential service is required")
	case tokens == nil:
		return nil, errors.New("account service: token issuer is required")
	case verification == nil:
		return nil, errors.New("account service: verification manager is required")
	case notifier == nil:
		return nil, errors.New("account service: notifier is required")
	}

	svc := &AccountService{
		store:        st,
		credentials:  credentials,
		tokens:       tokens,
		verification: verification,
		notifier:     notifier,
		log:          logger.WithModule("accounts"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Register creates an unverified user and emails its first verification token. The user and
// token rows are committed before the email is sent so no transaction is held during delivery.
// A failed send deletes the user again, so callers see all or nothing.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(input.Email)

	exists, err := s.store.UserExists(ctx, username, email)
	if err != nil {
		metrics.Registrations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("account service: register: %w", err)
	}
	if exists {
		metrics.Registrations.WithLabelValues("conflict").Inc()
		return nil, ErrUserAlreadyExists
	}

	hash, err := s.credentials.Hash(ctx, input.Password)
	if err != nil {
		metrics.Registrations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("account service: register: %w", err)
	}

	user := &models.User{
		BaseModel: models.BaseModel{ID: models.NewID()},
		Username:  username,
		Email:     email,
		Password:  hash,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
	}

	token, err := s.verification.CreateAndAttach(user)
	if err != nil {
		metrics.Registrations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("account service: register: %w", err)
	}

	err = s.store.CreateUser(ctx, user)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrDuplicate):
		metrics.Registrations.WithLabelValues("conflict").Inc()
		return nil, ErrUserAlreadyExists
	default:
		metrics.Registrations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("account service: register: %w", err)
	}

	if err := s.notifier.SendVerification(ctx, user, token.Token); err != nil {
		metrics.Registrations.WithLabelValues("email_failure").Inc()
		metrics.VerificationEmails.WithLabelValues("register", "failed").Inc()
		s.log.Warn("verification email failed, removing registration", zap.String("username", username), zap.Error(err))

		if derr := s.store.DeleteUser(context.WithoutCancel(ctx), user.ID); derr != nil {
			s.log.Error("remove unconfirmed registration", zap.String("user_id", user.ID), zap.Error(derr))
			return nil, emailFailure(errors.Join(err, derr))
		}
		return nil, emailFailure(err)
	}

	metrics.Registrations.WithLabelValues("success").Inc()
	metrics.VerificationEmails.WithLabelValues("register", "sent").Inc()
	s.log.Info("user registered", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// Login returns a session token for a verified user. Unknown users and wrong passwords yield
// an empty token and a nil error so callers cannot tell them apart. Unverified users get a
// *UserNotVerifiedError, and a new verification email when the cooldown has elapsed.
func (s *AccountService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.store.FindUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("account service: login: %w", err)
	}

	ok, err := s.credentials.Verify(ctx, password, user.Password)
	if err != nil {
		return "", fmt.Errorf("account service: login: %w", err)
	}
	if !ok {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return "", nil
	}

	if user.EmailVerified {
		token, err := s.tokens.IssueSession(user)
		if err != nil {
			return "", fmt.Errorf("account service: login: %w", err)
		}
		metrics.AuthAttempts.WithLabelValues("success").Inc()
		return token, nil
	}

	metrics.AuthAttempts.WithLabelValues("unverified").Inc()
	resent, err := s.resendVerification(ctx, user.ID)
	if err != nil {
		return "", err
	}
	return "", newUserNotVerifiedError(resent)
}

// resendVerification sends a fresh verification token when the newest one is older than the
// cooldown. The owner row is locked while the token is recorded so concurrent logins do not both
// resend. The email goes out after commit; a failed send deletes the new token again.
func (s *AccountService) resendVerification(ctx context.Context, userID string) (bool, error) {
	var (
		user  *models.User
		token *models.VerificationToken
	)
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		locked, err := tx.FindUserForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if err := s.verification.LoadTokens(ctx, tx, locked); err != nil {
			return err
		}
		if !s.verification.ShouldResend(locked) {
			return nil
		}

		fresh, err := s.verification.CreateAndAttach(locked)
		if err != nil {
			return err
		}
		if err := tx.CreateVerificationToken(ctx, fresh); err != nil {
			return err
		}
		user, token = locked, fresh
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("account service: resend verification: %w", err)
	}
	if token == nil {
		return false, nil
	}

	if err := s.notifier.SendVerification(ctx, user, token.Token); err != nil {
		metrics.VerificationEmails.WithLabelValues("resend", "failed").Inc()
		s.log.Warn("verification resend failed", zap.String("user_id", userID), zap.Error(err))

		if derr := s.store.DeleteVerificationToken(context.WithoutCancel(ctx), token.ID); derr != nil {
			s.log.Error("remove unsent verification token", zap.String("user_id", userID), zap.Error(derr))
			return false, emailFailure(errors.Join(err, derr))
		}
		return false, emailFailure(err)
	}

	metrics.VerificationEmails.WithLabelValues("resend", "sent").Inc()
	s.log.Info("verification email resent", zap.String("user_id", userID))
	return true, nil
}

// Verify consumes a verification token. It returns true only for the call that verified the user.
func (s *AccountService) Verify(ctx context.Context, token string) (bool, error) {
	verified, err := s.verification.Consume(ctx, token)
	if err != nil {
		metrics.Verifications.WithLabelValues("error").Inc()
		return false, err
	}
	if verified {
		metrics.Verifications.WithLabelValues("verified").Inc()
	} else {
		metrics.Verifications.WithLabelValues("noop").Inc()
	}
	return verified, nil
}

// ForgotPassword emails a password reset link. Nothing is persisted.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.store.FindUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		metrics.PasswordResets.WithLabelValues("unknown_email").Inc()
		return ErrEmailNotFound
	}
	if err != nil {
		return fmt.Errorf("account service: forgot password: %w", err)
	}

	token, err := s.tokens.IssuePasswordReset(user)
	if err != nil {
		return fmt.Errorf("account service: forgot password: %w", err)
	}

	if err := s.notifier.SendPasswordReset(ctx, user, token); err != nil {
		s.log.Warn("password reset email failed", zap.String("user_id", user.ID), zap.Error(err))
		return emailFailure(err)
	}

	metrics.PasswordResets.WithLabelValues("requested").Inc()
	s.log.Info("password reset requested", zap.String("user_id", user.ID))
	return nil
}

// ResetPassword replaces the password of the account named by a reset token. A valid token
// for an email that no longer exists is accepted silently.
func (s *AccountService) ResetPassword(ctx context.Context, token, password string) error {
	email, err := s.tokens.ParsePasswordResetSubject(token)
	if err != nil {
		metrics.PasswordResets.WithLabelValues("invalid_token").Inc()
		return ErrInvalidToken.WithInternal(err)
	}

	user, err := s.store.FindUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("account service: reset password: %w", err)
	}

	hash, err := s.credentials.Hash(ctx, password)
	if err != nil {
		return fmt.Errorf("account service: reset password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("account service: reset password: %w", err)
	}

	metrics.PasswordResets.WithLabelValues("completed").Inc()
	s.log.Info("password reset", zap.String("user_id", user.ID))
	return nil
}

// GetUser loads a user by id.
func (s *AccountService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.store.FindUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrNotFound.WithInternal(err)
	}
	if err != nil {
		return nil, fmt.Errorf("account service: get user: %w", err)
	}
	return user, nil
}

// UserHasPermissionToUser reports whether user may act on the account identified by targetID.
func (s *AccountService) UserHasPermissionToUser(user *models.User, targetID string) bool {
	return user != nil && user.ID != "" && user.ID == targetID
}
