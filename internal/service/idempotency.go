package service

import (
	"context"
	"errors"
	"time"

	"alcyxob/fitness-workspace/internal/domain"
	"alcyxob/fitness-workspace/internal/repository"

	"github.com/cenkalti/backoff/v4"
)

// --- Error Definitions ---
var (
	ErrDuplicateInFlight = errors.New("a request with this idempotency key is still in flight")
)

// IdempotencyGuard deduplicates retried mutation requests per scope. The
// reservation is a unique-indexed insert: exactly one concurrent duplicate
// executes the mutation, everyone else observes the cached response.
type IdempotencyGuard struct {
	repo repository.IdempotencyRepository
	ttl  time.Duration

	// How long a reservation-race loser waits for the winner to finish.
	pollInterval time.Duration
	pollBudget   time.Duration
}

// NewIdempotencyGuard creates a guard with the given replay TTL.
func NewIdempotencyGuard(repo repository.IdempotencyRepository, ttl time.Duration) *IdempotencyGuard {
	if ttl <= 0 {
		ttl = domain.DefaultIdempotencyTTL
	}
	return &IdempotencyGuard{
		repo:         repo,
		ttl:          ttl,
		pollInterval: 100 * time.Millisecond,
		pollBudget:   time.Second,
	}
}

// CheckOrReserve resolves (scopeKey, key) to either a cached response (HIT)
// or a fresh reservation (MISS). On MISS the caller must call exactly one
// of Store (on success) or Release (on failure).
func (g *IdempotencyGuard) CheckOrReserve(ctx context.Context, scopeKey, key string) (*domain.CommitResult, bool, error) {
	record := &domain.IdempotencyRecord{
		ScopeKey:  scopeKey,
		Key:       key,
		Status:    domain.IdempotencyPending,
		ExpiresAt: time.Now().UTC().Add(g.ttl),
	}
	err := g.repo.Reserve(ctx, record)
	if err == nil {
		return nil, true, nil // MISS: we hold the reservation
	}
	if !errors.Is(err, repository.ErrDuplicateKey) {
		return nil, false, err
	}

	// Lost the reservation race. The winner either already completed (return
	// its response) or is still committing (wait briefly for it).
	cached, err := g.awaitWinner(ctx, scopeKey, key)
	if err != nil {
		return nil, false, err
	}
	return cached, false, nil
}

// awaitWinner polls for the winner's completed record with a constant
// backoff bounded by the poll budget.
func (g *IdempotencyGuard) awaitWinner(ctx context.Context, scopeKey, key string) (*domain.CommitResult, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(g.pollInterval),
			uint64(g.pollBudget/g.pollInterval),
		), ctx)

	var cached *domain.CommitResult
	err := backoff.Retry(func() error {
		record, err := g.repo.Get(ctx, scopeKey, key)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// Winner released after a failure; tell the caller to retry.
				return backoff.Permanent(ErrDuplicateInFlight)
			}
			return backoff.Permanent(err)
		}
		if record.Status != domain.IdempotencyCompleted {
			return ErrDuplicateInFlight // keep polling
		}
		cached = record.Response
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

// Store persists the response on the reservation. Must be called exactly
// once after a successful mutation.
func (g *IdempotencyGuard) Store(ctx context.Context, scopeKey, key string, response *domain.CommitResult) error {
	return g.repo.Complete(ctx, scopeKey, key, response)
}

// Release frees the reservation after a failed attempt so the caller can
// retry with the same key.
func (g *IdempotencyGuard) Release(ctx context.Context, scopeKey, key string) error {
	return g.repo.Release(ctx, scopeKey, key)
}
