package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/accountd/internal/monitoring"
	"github.com/charlesng35/accountd/internal/store"
	"github.com/charlesng35/accountd/pkg/logger"
)

const (
	// JobPruneVerificationTokens is the tracker name of the verification token pruning job.
	JobPruneVerificationTokens = "prune_verification_tokens"

	defaultTokenRetention = 7 * 24 * time.Hour
	defaultTokenSpec      = "@daily"
)

// Pruner is the subset of the store used by the cleaner.
type Pruner interface {
	PruneVerificationTokens(ctx context.Context, olderThan time.Time) (int64, error)
}

var _ Pruner = (store.Store)(nil)

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) error
}

// Cleaner coordinates background maintenance such as removing verification tokens
// that can no longer be redeemed.
type Cleaner struct {
	tokens    Pruner
	tracker   *monitoring.JobTracker
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention time.Duration
	schedule  string
	jobs      []job
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for retention cutoffs.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithTokenRetention sets how long superseded verification tokens are kept.
func WithTokenRetention(retention time.Duration) Option {
	return func(cleaner *Cleaner) {
		if retention > 0 {
			cleaner.retention = retention
		}
	}
}

// WithSchedule overrides the cron expression for token pruning.
func WithSchedule(expr string) Option {
	return func(cleaner *Cleaner) {
		if expr != "" {
			cleaner.schedule = expr
		}
	}
}

// WithTracker records every run in tracker so health probes can report on it.
func WithTracker(tracker *monitoring.JobTracker) Option {
	return func(cleaner *Cleaner) {
		cleaner.tracker = tracker
	}
}

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(cleaner *Cleaner) {
		if log != nil {
			cleaner.log = log
		}
	}
}

// NewCleaner constructs a Cleaner. A nil pruner leaves the cleaner without jobs.
func NewCleaner(tokens Pruner, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		tokens:    tokens,
		now:       time.Now,
		retention: defaultTokenRetention,
		schedule:  defaultTokenSpec,
		log:       logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	if cleaner.tokens != nil {
		cleaner.jobs = append(cleaner.jobs, job{
			name:     JobPruneVerificationTokens,
			schedule: cleaner.schedule,
			run:      cleaner.pruneVerificationTokens,
		})
	}

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one job exists.
func (c *Cleaner) Start() error {
	if len(c.jobs) == 0 {
		return nil
	}

	for _, j := range c.jobs {
		if _, err := c.cron.AddFunc(j.schedule, func() {
			if err := c.execute(context.Background(), j); err != nil {
				c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", j.name, err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler. The returned context is done once running jobs finish.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every job sequentially and returns the combined failures.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs {
		errs = multierr.Append(errs, c.execute(ctx, j))
	}
	return errs
}

func (c *Cleaner) execute(ctx context.Context, j job) error {
	start := time.Now()
	err := j.run(ctx)
	if c.tracker != nil {
		c.tracker.Record(j.name, err, time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	return nil
}

func (c *Cleaner) pruneVerificationTokens(ctx context.Context) error {
	if c.tokens == nil {
		return errors.New("token store is required")
	}

	cutoff := c.now().Add(-c.retention)
	removed, err := c.tokens.PruneVerificationTokens(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		c.log.Info("pruned verification tokens", zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
	}
	return nil
}
