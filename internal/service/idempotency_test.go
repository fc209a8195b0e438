package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"alcyxob/fitness-workspace/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestGuard(repo *fakeIdempotencyRepo) *IdempotencyGuard {
	g := NewIdempotencyGuard(repo, time.Hour)
	// Keep the loser's polling cheap in tests.
	g.pollInterval = 5 * time.Millisecond
	g.pollBudget = 50 * time.Millisecond
	return g
}

func TestGuardReserveStoreReplay(t *testing.T) {
	repo := newFakeIdempotencyRepo()
	g := newTestGuard(repo)
	scope := domain.WorkspaceScope(primitive.NewObjectID())

	cached, reserved, err := g.CheckOrReserve(context.Background(), scope, "key-1")
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.Nil(t, cached)

	response := &domain.CommitResult{NewVersion: 3, Phase: domain.PhaseActive}
	require.NoError(t, g.Store(context.Background(), scope, "key-1", response))

	cached, reserved, err = g.CheckOrReserve(context.Background(), scope, "key-1")
	require.NoError(t, err)
	assert.False(t, reserved)
	require.NotNil(t, cached)
	assert.Equal(t, int64(3), cached.NewVersion)
}

func TestGuardKeysAreScoped(t *testing.T) {
	repo := newFakeIdempotencyRepo()
	g := newTestGuard(repo)

	_, reserved, err := g.CheckOrReserve(context.Background(), domain.WorkspaceScope(primitive.NewObjectID()), "key-1")
	require.NoError(t, err)
	assert.True(t, reserved)

	// The same key under a different workspace is a fresh reservation.
	_, reserved, err = g.CheckOrReserve(context.Background(), domain.WorkspaceScope(primitive.NewObjectID()), "key-1")
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestGuardLoserWaitsForWinner(t *testing.T) {
	repo := newFakeIdempotencyRepo()
	g := newTestGuard(repo)
	scope := domain.WorkspaceScope(primitive.NewObjectID())

	_, reserved, err := g.CheckOrReserve(context.Background(), scope, "key-1")
	require.NoError(t, err)
	require.True(t, reserved)

	var wg sync.WaitGroup
	wg.Add(1)
	var loserCached *domain.CommitResult
	var loserErr error
	go func() {
		defer wg.Done()
		loserCached, _, loserErr = g.CheckOrReserve(context.Background(), scope, "key-1")
	}()

	// Let the loser start polling, then finish as the winner.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, g.Store(context.Background(), scope, "key-1", &domain.CommitResult{NewVersion: 9}))
	wg.Wait()

	require.NoError(t, loserErr)
	require.NotNil(t, loserCached)
	assert.Equal(t, int64(9), loserCached.NewVersion)
}

func TestGuardPendingForeverExhaustsBudget(t *testing.T) {
	repo := newFakeIdempotencyRepo()
	g := newTestGuard(repo)
	scope := domain.WorkspaceScope(primitive.NewObjectID())

	_, reserved, err := g.CheckOrReserve(context.Background(), scope, "key-1")
	require.NoError(t, err)
	require.True(t, reserved)

	// The winner never stores nor releases: the duplicate gives up.
	_, _, err = g.CheckOrReserve(context.Background(), scope, "key-1")
	assert.ErrorIs(t, err, ErrDuplicateInFlight)
}

func TestGuardReleaseAllowsRetry(t *testing.T) {
	repo := newFakeIdempotencyRepo()
	g := newTestGuard(repo)
	scope := domain.WorkspaceScope(primitive.NewObjectID())

	_, reserved, err := g.CheckOrReserve(context.Background(), scope, "key-1")
	require.NoError(t, err)
	require.True(t, reserved)

	require.NoError(t, g.Release(context.Background(), scope, "key-1"))

	_, reserved, err = g.CheckOrReserve(context.Background(), scope, "key-1")
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestGuardReleaseNeverDropsCompletedRecord(t *testing.T) {
	repo := newFakeIdempotencyRepo()
	g := newTestGuard(repo)
	scope := domain.WorkspaceScope(primitive.NewObjectID())

	_, _, err := g.CheckOrReserve(context.Background(), scope, "key-1")
	require.NoError(t, err)
	require.NoError(t, g.Store(context.Background(), scope, "key-1", &domain.CommitResult{NewVersion: 1}))

	require.NoError(t, g.Release(context.Background(), scope, "key-1"))

	cached, reserved, err := g.CheckOrReserve(context.Background(), scope, "key-1")
	require.NoError(t, err)
	assert.False(t, reserved)
	require.NotNil(t, cached)
	assert.Equal(t, int64(1), cached.NewVersion)
}
