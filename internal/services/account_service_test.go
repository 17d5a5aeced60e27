package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/accountd/internal/auth"
	"github.com/charlesng35/accountd/internal/models"
	"github.com/charlesng35/accountd/internal/store"
	apperrors "github.com/charlesng35/accountd/pkg/errors"
)

// blindStore skips the existence pre-check so the unique indexes decide.
type blindStore struct {
	store.Store
}

func (blindStore) UserExists(context.Context, string, string) (bool, error) {
	return false, nil
}

func TestNewAccountServiceRequiresDependencies(t *testing.T) {
	env := newTestEnv(t)
	notifier, err := NewNotifier(env.mailer, "", "")
	require.NoError(t, err)

	_, err = NewAccountService(nil, env.credentials, env.issuer, env.verification, notifier)
	require.Error(t, err)
	_, err = NewAccountService(env.store, nil, env.issuer, env.verification, notifier)
	require.Error(t, err)
	_, err = NewAccountService(env.store, env.credentials, nil, env.verification, notifier)
	require.Error(t, err)
	_, err = NewAccountService(env.store, env.credentials, env.issuer, nil, notifier)
	require.Error(t, err)
	_, err = NewAccountService(env.store, env.credentials, env.issuer, env.verification, nil)
	require.Error(t, err)
}

func TestRegisterCreatesPendingUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.accounts.Register(ctx, aliceInput())
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	require.False(t, user.EmailVerified)
	require.NotEqual(t, "Passw0rd!", user.Password)

	ok, err := env.credentials.Verify(ctx, "Passw0rd!", user.Password)
	require.NoError(t, err)
	require.True(t, ok)

	tokens, err := env.store.ListVerificationTokens(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)

	sent := env.mailer.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, []string{"alice@x.com"}, sent[0].To)
	require.Equal(t, "no-reply@accountd.test", sent[0].From)
	require.Contains(t, sent[0].Body, "https://app.example.com/auth/verify?token=")
	require.Equal(t, tokens[0].Token, tokenFromLink(t, sent[0].Body))

	require.Equal(t, 1, env.logs.FilterMessage("user registered").Len())
}

func TestRegisterRejectsDuplicatesIgnoringCase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.accounts.Register(ctx, aliceInput())
	require.NoError(t, err)

	input := aliceInput()
	input.Username = "ALICE"
	input.Email = "other@x.com"
	_, err = env.accounts.Register(ctx, input)
	require.ErrorIs(t, err, ErrUserAlreadyExists)

	input = aliceInput()
	input.Username = "bob"
	input.Email = "Alice@X.com"
	_, err = env.accounts.Register(ctx, input)
	require.ErrorIs(t, err, ErrUserAlreadyExists)

	require.Len(t, env.mailer.Sent(), 1)
}

func TestRegisterMapsUniqueViolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.accounts.Register(ctx, aliceInput())
	require.NoError(t, err)

	notifier, err := NewNotifier(env.mailer, "", "http://localhost")
	require.NoError(t, err)
	racing, err := NewAccountService(blindStore{env.store}, env.credentials, env.issuer, env.verification, notifier)
	require.NoError(t, err)

	input := aliceInput()
	input.Username = "Alice"
	_, err = racing.Register(ctx, input)
	require.ErrorIs(t, err, ErrUserAlreadyExists)
	require.Len(t, env.mailer.Sent(), 1)
}

func TestRegisterEmailFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	smtpErr := errors.New("smtp unavailable")
	env.mailer.Fail(smtpErr)

	_, err := env.accounts.Register(ctx, aliceInput())
	require.ErrorIs(t, err, ErrEmailFailure)
	require.ErrorIs(t, err, smtpErr)

	_, err = env.store.FindUserByUsername(ctx, "alice")
	require.ErrorIs(t, err, store.ErrNotFound)

	env.mailer.Fail(nil)
	_, err = env.accounts.Register(ctx, aliceInput())
	require.NoError(t, err)
}

func TestRegisterDeliveryDoesNotBlockOtherLogins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.accounts.Register(ctx, bobInput())
	require.NoError(t, err)

	mailer := newGatedMailer()
	slow := env.withMailer(t, mailer)

	done := make(chan error, 1)
	go func() {
		_, err := slow.Register(ctx, aliceInput())
		done <- err
	}()
	mailer.waitEntered(t)

	loginCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err = env.accounts.Login(loginCtx, "bob", "Passw0rd!")
	var notVerified *UserNotVerifiedError
	require.ErrorAs(t, err, &notVerified)

	close(mailer.release)
	require.NoError(t, <-done)

	user, err := env.store.FindUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.False(t, user.EmailVerified)
}

func TestRegisterCancelledDeliveryRemovesUser(t *testing.T) {
	env := newTestEnv(t)
	mailer := newGatedMailer()
	slow := env.withMailer(t, mailer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := slow.Register(ctx, aliceInput())
		done <- err
	}()
	mailer.waitEntered(t)
	cancel()

	err := <-done
	require.ErrorIs(t, err, ErrEmailFailure)
	require.ErrorIs(t, err, context.Canceled)

	_, err = env.store.FindUserByUsername(context.Background(), "alice")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestResendDeliveryDoesNotBlockOtherLogins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.accounts.Register(ctx, aliceInput())
	require.NoError(t, err)
	_, err = env.accounts.Register(ctx, bobInput())
	require.NoError(t, err)
	env.clock.Advance(2 * DefaultResendCooldown)

	mailer := newGatedMailer()
	slow := env.withMailer(t, mailer)

	done := make(chan error, 1)
	go func() {
		_, err := slow.Login(ctx, "alice", "Passw0rd!")
		done <- err
	}()
	mailer.waitEntered(t)

	loginCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err = env.accounts.Login(loginCtx, "bob", "Wrong-passw0rd")
	require.NoError(t, err)

	close(mailer.release)
	var notVerified *UserNotVerifiedError
	require.ErrorAs(t, <-done, &notVerified)
	require.True(t, notVerified.ResendAttempted)
}

func TestLoginUniformFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.accounts.Register(ctx, aliceInput())
	require.NoError(t, err)

	token, err := env.accounts.Login(ctx, "nobody", "Passw0rd!")
	require.NoError(t, err)
	require.Empty(t, token)

	token, err = env.accounts.Login(ctx, "alice", "wrong-password1")
	require.NoError(t, err)
	require.Empty(t, token)
}

func TestLoginUnverifiedRespectsCooldown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.accounts.Register(ctx, aliceInput())
	require.NoError(t, err)

	_, err = env.accounts.Login(ctx, "alice", "Passw0rd!")
	var notVerified *UserNotVerifiedError
	require.ErrorAs(t, err, &notVerified)
	require.False(t, notVerified.ResendAttempted)
	require.Len(t, env.mailer.Sent(), 1)

	env.clock.Advance(DefaultResendCooldown - time.Second)
	_, err = env.accounts.Login(ctx, "alice", "Passw0rd!")
	require.ErrorAs(t, err, &notVerified)
	require.False(t, notVerified.ResendAttempted)
	require.Len(t, env.mailer.Sent(), 1)

	env.clock.Advance(time.Second)
	_, err = env.accounts.Login(ctx, "alice", "Passw0rd!")
	require.ErrorAs(t, err, &notVerified)
	require.True(t, notVerified.ResendAttempted)
	require.Len(t, env.mailer.Sent(), 2)

	tokens, err := env.store.ListVerificationTokens(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	require.Equal(t, tokens[1].Token, tokenFromLink(t, env.mailer.Last(t).Body))

	// The fresh token restarts the cooldown.
	_, err = env.accounts.Login(ctx, "alice", "Passw0rd!")
	require.ErrorAs(t, err, &notVerified)
	require.False(t, notVerified.ResendAttempted)
	require.Len(t, env.mailer.Sent(), 2)
}

func TestLoginUnverifiedErrorCarriesTransportDetail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.accounts.Register(ctx, aliceInput())
	require.NoError(t, err)

	_, err = env.accounts.Login(ctx, "alice", "Passw0rd!")
	appErr := apperrors.FromError(err)
	require.Equal(t, apperrors.ErrUserNotVerified.Code, appErr.Code)
	require.Equal(t, false, appErr.Details["resend_attempted"])

	var notVerified *UserNotVerifiedError
	require.ErrorAs(t, err, &notVerified)
	require.Same(t, notVerified.Unwrap(), notVerified.Unwrap())
	require.ErrorIs(t, err, apperrors.ErrUserNotVerified)
}

func TestLoginResendEmailFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.accounts.Register(ctx, aliceInput())
	require.NoError(t, err)

	env.clock.Advance(2 * DefaultResendCooldown)
	env.mailer.Fail(errors.New("smtp unavailable"))

	token, err := env.accounts.Login(ctx, "alice", "Passw0rd!")
	require.Empty(t, token)
	require.ErrorIs(t, err, ErrEmailFailure)

	tokens, err := env.store.ListVerificationTokens(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1, "failed resend must not persist a token")
}

func TestVerifyIsIdempotentAndClearsAllTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.accounts.Register(ctx, aliceInput())
	require.NoError(t, err)
	first := tokenFromLink(t, env.mailer.Last(t).Body)

	env.clock.Advance(DefaultResendCooldown)
	_, err = env.accounts.Login(ctx, "alice", "Passw0rd!")
	var notVerified *UserNotVerifiedError
	require.ErrorAs(t, err, &notVerified)
	require.True(t, notVerified.ResendAttempted)
	second := tokenFromLink(t, env.mailer.Last(t).Body)

	ok, err := env.accounts.Verify(ctx, first)
	require.NoError(t, err)
	require.True(t, ok)

	tokens, err := env.store.ListVerificationTokens(ctx, user.ID)
	require.NoError(t, err)
	require.Empty(t, tokens)

	ok, err = env.accounts.Verify(ctx, second)
	require.NoError(t, err)
	require.False(t, ok, "remaining tokens are invalidated")

	ok, err = env.accounts.Verify(ctx, first)
	require.NoError(t, err)
	require.False(t, ok, "verification is idempotent")

	session, err := env.accounts.Login(ctx, "alice", "Passw0rd!")
	require.NoError(t, err)
	claims, err := env.issuer.ParseSession(session)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.Subject)
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	err := env.accounts.ForgotPassword(context.Background(), "ghost@x.com")
	require.ErrorIs(t, err, ErrEmailNotFound)
	require.Empty(t, env.mailer.Sent())
}

func TestForgotPasswordEmailFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.accounts.Register(ctx, aliceInput())
	require.NoError(t, err)

	env.mailer.Fail(errors.New("smtp unavailable"))
	require.ErrorIs(t, env.accounts.ForgotPassword(ctx, "alice@x.com"), ErrEmailFailure)
}

func TestResetPasswordRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.accounts.Register(ctx, aliceInput())
	require.NoError(t, err)

	err = env.accounts.ResetPassword(ctx, "garbage", "N3wPassword")
	require.ErrorIs(t, err, ErrInvalidToken)
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	require.NoError(t, env.accounts.ForgotPassword(ctx, "ALICE@x.com"))
	token := tokenFromLink(t, env.mailer.Last(t).Body)

	env.clock.Advance(auth.DefaultPasswordResetTTL + time.Second)
	require.ErrorIs(t, env.accounts.ResetPassword(ctx, token, "N3wPassword"), ErrInvalidToken)

	session, err := env.issuer.IssueSession(&models.User{BaseModel: models.BaseModel{ID: "x"}})
	require.NoError(t, err)
	require.ErrorIs(t, env.accounts.ResetPassword(ctx, session, "N3wPassword"), ErrInvalidToken)
}

func TestResetPasswordUnknownEmailIsNoop(t *testing.T) {
	env := newTestEnv(t)

	token, err := env.issuer.IssuePasswordReset(&models.User{Email: "ghost@x.com"})
	require.NoError(t, err)
	require.NoError(t, env.accounts.ResetPassword(context.Background(), token, "N3wPassword"))
}

func TestUserHasPermissionToUser(t *testing.T) {
	env := newTestEnv(t)
	user := &models.User{BaseModel: models.BaseModel{ID: "u-1"}}

	require.True(t, env.accounts.UserHasPermissionToUser(user, "u-1"))
	require.False(t, env.accounts.UserHasPermissionToUser(user, "u-2"))
	require.False(t, env.accounts.UserHasPermissionToUser(nil, "u-1"))
	require.False(t, env.accounts.UserHasPermissionToUser(&models.User{}, ""))
}

func TestGetUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.accounts.Register(ctx, aliceInput())
	require.NoError(t, err)

	loaded, err := env.accounts.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", loaded.Username)

	_, err = env.accounts.GetUser(ctx, "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAliceLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.accounts.Register(ctx, aliceInput())
	require.NoError(t, err)

	token, err := env.accounts.Login(ctx, "alice", "Passw0rd!")
	require.Empty(t, token)
	var notVerified *UserNotVerifiedError
	require.ErrorAs(t, err, &notVerified)
	require.False(t, notVerified.ResendAttempted)

	ok, err := env.accounts.Verify(ctx, tokenFromLink(t, env.mailer.Last(t).Body))
	require.NoError(t, err)
	require.True(t, ok)

	token, err = env.accounts.Login(ctx, "Alice", "Passw0rd!")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	require.NoError(t, env.accounts.ForgotPassword(ctx, "alice@x.com"))
	reset := env.mailer.Last(t)
	require.Equal(t, passwordResetSubject, reset.Subject)
	require.Contains(t, reset.Body, "https://app.example.com/auth/reset?token=")

	require.NoError(t, env.accounts.ResetPassword(ctx, tokenFromLink(t, reset.Body), "N3wPassw0rd"))

	token, err = env.accounts.Login(ctx, "alice", "Passw0rd!")
	require.NoError(t, err)
	require.Empty(t, token)

	token, err = env.accounts.Login(ctx, "alice", "N3wPassw0rd")
	require.NoError(t, err)
	claims, err := env.issuer.ParseSession(token)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.Subject)
	require.Equal(t, "alice", claims.Username)
}

func TestConcurrentRegistrationsProduceOneUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const workers = 4
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.accounts.Register(ctx, aliceInput())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrUserAlreadyExists):
				conflicts++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, created)
	require.Equal(t, workers-1, conflicts)
}
