package mail

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds redelivery of transient failures.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first. Values below 1 mean 1.
	Attempts uint64
	// Backoff is the first delay; it doubles per retry up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// RetryingMailer retries Send on errors classified by Transient.
type RetryingMailer struct {
	next   Mailer
	policy RetryPolicy
}

// WithRetry wraps next with policy.
func WithRetry(next Mailer, policy RetryPolicy) *RetryingMailer {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if policy.Backoff <= 0 {
		policy.Backoff = 250 * time.Millisecond
	}
	if policy.MaxBackoff < policy.Backoff {
		policy.MaxBackoff = policy.Backoff
	}
	return &RetryingMailer{next: next, policy: policy}
}

// Send delivers msg, retrying transient failures until the attempts are used up or
// ctx is done. The last delivery error is returned.
func (m *RetryingMailer) Send(ctx context.Context, msg Message) error {
	backoff := retry.NewExponential(m.policy.Backoff)
	backoff = retry.WithCappedDuration(m.policy.MaxBackoff, backoff)
	backoff = retry.WithMaxRetries(m.policy.Attempts-1, backoff)

	var last error
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		last = m.next.Send(ctx, msg)
		if Transient(last) {
			return retry.RetryableError(last)
		}
		return last
	})
	if err != nil && last != nil {
		return last
	}
	return err
}
