package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/accountd/internal/auth"
	"github.com/charlesng35/accountd/internal/models"
	"github.com/charlesng35/accountd/internal/store"
	"github.com/charlesng35/accountd/pkg/logger"
)

// DefaultResendCooldown is the minimum age of the newest verification token before
// a gated login sends another one.
const DefaultResendCooldown = time.Hour

// VerificationOption customises the VerificationTokenManager.
type VerificationOption func(*VerificationTokenManager)

// WithResendCooldown overrides the resend cooldown.
func WithResendCooldown(d time.Duration) VerificationOption {
	return func(m *VerificationTokenManager) {
		if d > 0 {
			m.cooldown = d
		}
	}
}

// WithVerificationClock injects a custom time source.
func WithVerificationClock(clock func() time.Time) VerificationOption {
	return func(m *VerificationTokenManager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithVerificationLogger replaces the module logger.
func WithVerificationLogger(log *zap.Logger) VerificationOption {
	return func(m *VerificationTokenManager) {
		if log != nil {
			m.log = log
		}
	}
}

// VerificationTokenManager creates verification tokens, decides when they may be resent and
// consumes them.
type VerificationTokenManager struct {
	store    store.Store
	issuer   *auth.TokenIssuer
	cooldown time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewVerificationTokenManager constructs a manager with the provided dependencies.
func NewVerificationTokenManager(st store.Store, issuer *auth.TokenIssuer, opts ...VerificationOption) (*VerificationTokenManager, error) {
	if st == nil {
		return nil, errors.New("verification tokens: store is required")
	}
	if issuer == nil {
		return nil, errors.New("verification tokens: token issuer is required")
	}

	manager := &VerificationTokenManager{
		store:    st,
		issuer:   issuer,
		cooldown: DefaultResendCooldown,
		now:      time.Now,
		log:      logger.WithModule("verification"),
	}
	for _, opt := range opts {
		opt(manager)
	}
	return manager, nil
}

// CreateAndAttach mints a token for user, stamps it with the current time and appends it to
// user.VerificationTokens so it becomes the most recent. Nothing is persisted.
func (m *VerificationTokenManager) CreateAndAttach(user *models.User) (*models.VerificationToken, error) {
	if user == nil || user.ID == "" {
		return nil, errors.New("verification tokens: user id is required")
	}

	value, err := m.issuer.IssueVerification(user)
	if err != nil {
		return nil, fmt.Errorf("verification tokens: issue: %w", err)
	}

	user.VerificationTokens = append(user.VerificationTokens, models.VerificationToken{
		BaseModel: models.BaseModel{CreatedAt: m.now()},
		Token:     value,
		UserID:    user.ID,
	})
	return user.LatestVerificationToken(), nil
}

// ShouldResend reports whether a new verification email may be sent. It is true when the
// user has no token or the newest one is at least the cooldown old.
func (m *VerificationTokenManager) ShouldResend(user *models.User) bool {
	latest := user.LatestVerificationToken()
	if latest == nil {
		return true
	}
	return !latest.CreatedAt.After(m.now().Add(-m.cooldown))
}

// LoadTokens replaces user.VerificationTokens with the persisted tokens, oldest first.
func (m *VerificationTokenManager) LoadTokens(ctx context.Context, st store.Store, user *models.User) error {
	tokens, err := st.ListVerificationTokens(ctx, user.ID)
	if err != nil {
		return err
	}
	user.VerificationTokens = tokens
	return nil
}

// Consume verifies the owner of token. Within one transaction it locks the owner, flips
// email_verified and deletes every token the owner holds. It returns false without error
// for unknown, malformed or already consumed tokens.
func (m *VerificationTokenManager) Consume(ctx context.Context, token string) (bool, error) {
	claims, err := m.issuer.ParseVerification(token)
	if err != nil {
		m.log.Debug("rejected verification token", zap.Error(err))
		return false, nil
	}

	var consumed bool
	err = m.store.WithTx(ctx, func(tx store.Store) error {
		record, err := tx.FindVerificationToken(ctx, token)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if record.UserID != claims.Subject {
			return nil
		}

		user, err := tx.FindUserForUpdate(ctx, record.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if user.EmailVerified {
			return nil
		}

		changed, err := tx.MarkEmailVerified(ctx, user.ID)
		if err != nil || !changed {
			return err
		}

		removed, err := tx.DeleteVerificationTokens(ctx, user.ID)
		if err != nil {
			return err
		}

		consumed = true
		m.log.Info("email verified",
			zap.String("user_id", user.ID),
			zap.Int64("tokens_removed", removed),
		)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("verification tokens: consume: %w", err)
	}
	return consumed, nil
}
