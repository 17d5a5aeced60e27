package auth

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"github.com/charlesng35/accountd/pkg/crypto"
)

// CredentialConfig tunes password hashing.
type CredentialConfig struct {
	// Cost is the bcrypt work factor. Zero selects bcrypt.DefaultCost.
	Cost int
	// Workers bounds concurrent hash operations. Zero selects runtime.NumCPU().
	Workers int
}

// CredentialService hashes and verifies passwords on a bounded pool so bursts of logins
// cannot pin every CPU on bcrypt.
type CredentialService struct {
	cost int
	sem  *semaphore.Weighted
}

// NewCredentialService constructs a CredentialService.
func NewCredentialService(cfg CredentialConfig) (*CredentialService, error) {
	cost := cfg.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("credentials: bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &CredentialService{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(workers)),
	}, nil
}

// Hash returns a salted bcrypt hash of plaintext.
func (s *CredentialService) Hash(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("credentials: password is required")
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("credentials: acquire worker: %w", err)
	}
	defer s.sem.Release(1)

	hash, err := crypto.HashPassword(plaintext, s.cost)
	if err != nil {
		return "", fmt.Errorf("credentials: hash password: %w", err)
	}
	return hash, nil
}

// Verify reports whether plaintext matches hash. A malformed hash is a mismatch; the only
// error is a cancelled context while waiting for a worker.
func (s *CredentialService) Verify(ctx context.Context, plaintext, hash string) (bool, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("credentials: acquire worker: %w", err)
	}
	defer s.sem.Release(1)

	return crypto.VerifyPassword(hash, plaintext), nil
}
