package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	testutil "github.com/charlesng35/accountd/internal/database/testutil"
	"github.com/charlesng35/accountd/internal/models"
	"github.com/charlesng35/accountd/internal/monitoring"
	"github.com/charlesng35/accountd/internal/store"
)

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}

type pruneFunc func(ctx context.Context, olderThan time.Time) (int64, error)

func (f pruneFunc) PruneVerificationTokens(ctx context.Context, olderThan time.Time) (int64, error) {
	return f(ctx, olderThan)
}

func TestCleanerRunOncePrunesSupersededTokens(t *testing.T) {
	st, err := store.New(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))
	require.NoError(t, err)
	ctx := context.Background()
	clock := &fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}

	user := &models.User{Username: "pending", Email: "pending@example.com", Password: "hash", FirstName: "P", LastName: "U"}
	require.NoError(t, st.CreateUser(ctx, user))

	for i, age := range []time.Duration{30 * 24 * time.Hour, 10 * 24 * time.Hour, time.Hour} {
		require.NoError(t, st.CreateVerificationToken(ctx, &models.VerificationToken{
			BaseModel: models.BaseModel{CreatedAt: clock.Now().Add(-age)},
			Token:     []string{"oldest", "older", "newest"}[i],
			UserID:    user.ID,
		}))
	}

	tracker := monitoring.NewJobTracker()
	c := NewCleaner(st,
		WithNow(clock.Now),
		WithTokenRetention(7*24*time.Hour),
		WithTracker(tracker),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)

	require.NoError(t, c.RunOnce(ctx))

	tokens, err := st.ListVerificationTokens(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	require.Equal(t, "newest", tokens[0].Token)

	jobs := tracker.Snapshot()
	require.Len(t, jobs, 1)
	require.Equal(t, JobPruneVerificationTokens, jobs[0].Job)
	require.Equal(t, "success", jobs[0].LastStatus)
}

func TestCleanerUsesRetentionCutoff(t *testing.T) {
	now := time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)
	var cutoff time.Time
	c := NewCleaner(pruneFunc(func(_ context.Context, olderThan time.Time) (int64, error) {
		cutoff = olderThan
		return 0, nil
	}), WithNow(func() time.Time { return now }), WithTokenRetention(48*time.Hour))

	require.NoError(t, c.RunOnce(context.Background()))
	require.Equal(t, now.Add(-48*time.Hour), cutoff)
}

func TestCleanerRunOnceReportsFailures(t *testing.T) {
	boom := errors.New("database unavailable")
	tracker := monitoring.NewJobTracker()
	c := NewCleaner(pruneFunc(func(context.Context, time.Time) (int64, error) {
		return 0, boom
	}), WithTracker(tracker))

	err := c.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
	require.ErrorContains(t, err, JobPruneVerificationTokens)

	jobs := tracker.Snapshot()
	require.Len(t, jobs, 1)
	require.Equal(t, "failure", jobs[0].LastStatus)
	require.EqualValues(t, 1, jobs[0].ConsecutiveFailures)
}

func TestCleanerWithoutStoreIsNoop(t *testing.T) {
	c := NewCleaner(nil)
	require.NoError(t, c.Start())
	require.NoError(t, c.RunOnce(context.Background()))
	<-c.Stop().Done()
}

func TestCleanerStartRejectsInvalidSchedule(t *testing.T) {
	c := NewCleaner(pruneFunc(func(context.Context, time.Time) (int64, error) {
		return 0, nil
	}), WithSchedule("not a schedule"))

	require.ErrorContains(t, c.Start(), "schedule "+JobPruneVerificationTokens)
}

func TestCleanerStartAndStop(t *testing.T) {
	c := NewCleaner(pruneFunc(func(context.Context, time.Time) (int64, error) {
		return 0, nil
	}), WithSchedule("@every 1h"))

	require.NoError(t, c.Start())
	select {
	case <-c.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("cleaner did not stop")
	}
}
