package services

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/charlesng35/accountd/internal/auth"
	"github.com/charlesng35/accountd/internal/database/testutil"
	"github.com/charlesng35/accountd/internal/store"
	"github.com/charlesng35/accountd/pkg/mail"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	err      error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *recordingMailer) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mail.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

func (m *recordingMailer) Last(t *testing.T) mail.Message {
	t.Helper()
	sent := m.Sent()
	require.NotEmpty(t, sent, "expected at least one email")
	return sent[len(sent)-1]
}

// gatedMailer holds every Send until release is closed.
type gatedMailer struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedMailer() *gatedMailer {
	return &gatedMailer{entered: make(chan struct{}), release: make(chan struct{})}
}

func (m *gatedMailer) Send(ctx context.Context, _ mail.Message) error {
	m.once.Do(func() { close(m.entered) })
	select {
	case <-m.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitEntered blocks until a Send is in flight.
func (m *gatedMailer) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-m.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("mailer was never called")
	}
}

type testEnv struct {
	store        *store.GormStore
	clock        *fakeClock
	mailer       *recordingMailer
	issuer       *auth.TokenIssuer
	credentials  *auth.CredentialService
	verification *VerificationTokenManager
	accounts     *AccountService
	logs         *observer.ObservedLogs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.New(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret: "test-secret",
		Issuer: "accountd-test",
		Clock:  clock.Now,
	})
	require.NoError(t, err)

	credentials, err := auth.NewCredentialService(auth.CredentialConfig{Cost: bcrypt.MinCost, Workers: 4})
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	verification, err := NewVerificationTokenManager(st, issuer,
		WithVerificationClock(clock.Now),
		WithVerificationLogger(log),
	)
	require.NoError(t, err)

	mailer := &recordingMailer{}
	notifier, err := NewNotifier(mailer, "no-reply@accountd.test", "https://app.example.com/")
	require.NoError(t, err)

	accounts, err := NewAccountService(st, credentials, issuer, verification, notifier, WithAccountLogger(log))
	require.NoError(t, err)

	return &testEnv{
		store:        st,
		clock:        clock,
		mailer:       mailer,
		issuer:       issuer,
		credentials:  credentials,
		verification: verification,
		accounts:     accounts,
		logs:         logs,
	}
}

// withMailer builds an AccountService sharing env's store and tokens but sending through mailer.
func (e *testEnv) withMailer(t *testing.T, mailer mail.Mailer) *AccountService {
	t.Helper()
	notifier, err := NewNotifier(mailer, "no-reply@accountd.test", "https://app.example.com/")
	require.NoError(t, err)
	accounts, err := NewAccountService(e.store, e.credentials, e.issuer, e.verification, notifier)
	require.NoError(t, err)
	return accounts
}

func bobInput() RegisterInput {
	input := aliceInput()
	input.Username = "bob"
	input.Email = "bob@x.com"
	input.FirstName = "Bob"
	return input
}

func aliceInput() RegisterInput {
	return RegisterInput{
		Username:  "alice",
		Email:     "alice@x.com",
		Password:  "Passw0rd!",
		FirstName: "Alice",
		LastName:  "Liddell",
	}
}

// tokenFromLink extracts the token query parameter from the link on the last line of an email body.
func tokenFromLink(t *testing.T, body string) string {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(body), "\n")
	link, err := url.Parse(lines[len(lines)-1])
	require.NoError(t, err)
	token := link.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}
