package service

import (
	"context"
	"testing"
	"time"

	"alcyxob/fitness-workspace/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type sweeperFixture struct {
	workspaceRepo *fakeWorkspaceRepo
	cardRepo      *fakeCardRepo
	queueRepo     *fakeQueueRepo
	eventRepo     *fakeEventRepo
	now           time.Time
	service       SweeperService
}

func newSweeperFixture() *sweeperFixture {
	f := &sweeperFixture{
		workspaceRepo: newFakeWorkspaceRepo(),
		cardRepo:      newFakeCardRepo(),
		queueRepo:     newFakeQueueRepo(),
		eventRepo:     newFakeEventRepo(),
		now:           time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC),
	}
	svc := NewSweeperService(f.workspaceRepo, f.cardRepo, f.queueRepo, f.eventRepo, fakeTxnRunner{}).(*sweeperService)
	svc.now = func() time.Time { return f.now }
	f.service = svc
	return f
}

func (f *sweeperFixture) workspace(t *testing.T, version int64) *domain.Workspace {
	t.Helper()
	ws := domain.NewWorkspace(primitive.NewObjectID(), "hypertrophy-block-1")
	ws.Version = version
	_, err := f.workspaceRepo.Create(context.Background(), ws)
	require.NoError(t, err)
	return ws
}

// proposal inserts a proposed card whose TTL deadline sits the given
// duration away from the fixture clock (negative means overdue).
func (f *sweeperFixture) proposal(t *testing.T, ws *domain.Workspace, deadline time.Duration) domain.Card {
	t.Helper()
	expires := f.now.Add(deadline)
	card := domain.Card{
		ID:          primitive.NewObjectID(),
		WorkspaceID: ws.ID,
		Type:        domain.CardTypeNote,
		Status:      domain.StatusProposed,
		Lane:        domain.LaneAnalysis,
		Content:     map[string]any{"text": "deload next week"},
		Origin:      domain.OriginAgent,
		ExpiresAt:   &expires,
	}
	require.NoError(t, f.cardRepo.Insert(context.Background(), &card))
	_, err := f.queueRepo.Insert(context.Background(), &domain.QueueEntry{
		WorkspaceID: ws.ID, CardID: card.ID, Lane: card.Lane, Priority: 1, InsertedAt: f.now,
	})
	require.NoError(t, err)
	return card
}

func TestSweepWorkspaceExpiresOverdueProposals(t *testing.T) {
	f := newSweeperFixture()
	ws := f.workspace(t, 4)
	overdue := f.proposal(t, ws, -time.Minute)
	fresh := f.proposal(t, ws, 30*time.Minute)

	n, err := f.service.SweepWorkspace(context.Background(), ws.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.cardRepo.GetByID(context.Background(), overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status)

	untouched, err := f.cardRepo.GetByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProposed, untouched.Status)

	stored, err := f.workspaceRepo.GetByID(context.Background(), ws.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stored.Version)

	// The expired card left the queue, the fresh one stayed.
	entries, err := f.queueRepo.GetByWorkspace(context.Background(), ws.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, fresh.ID, entries[0].CardID)

	events, err := f.eventRepo.GetFromVersion(context.Background(), ws.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventCardsExpired, events[0].Type)
	assert.Equal(t, domain.OriginSystem, events[0].CausedBy)
	assert.False(t, events[0].Reversible)
	assert.Equal(t, int64(5), events[0].Version)
}

func TestSweepWorkspaceNoopConsumesNoVersion(t *testing.T) {
	f := newSweeperFixture()
	ws := f.workspace(t, 4)
	f.proposal(t, ws, 30*time.Minute)

	n, err := f.service.SweepWorkspace(context.Background(), ws.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	stored, err := f.workspaceRepo.GetByID(context.Background(), ws.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stored.Version)

	events, err := f.eventRepo.GetFromVersion(context.Background(), ws.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSweepAllVisitsEveryWorkspaceWithOverdue(t *testing.T) {
	f := newSweeperFixture()
	first := f.workspace(t, 0)
	second := f.workspace(t, 0)
	clean := f.workspace(t, 0)
	f.proposal(t, first, -time.Hour)
	f.proposal(t, first, -time.Minute)
	f.proposal(t, second, -time.Minute)
	f.proposal(t, clean, time.Hour)

	total, err := f.service.SweepAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	stored, err := f.workspaceRepo.GetByID(context.Background(), clean.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.Version)
}

func TestSweepWorkspaceUnknownID(t *testing.T) {
	f := newSweeperFixture()
	_, err := f.service.SweepWorkspace(context.Background(), primitive.NewObjectID())
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))
}
