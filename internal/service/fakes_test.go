package service

import (
	"context"
	"sync"
	"time"

	"alcyxob/fitness-workspace/internal/domain"
	"alcyxob/fitness-workspace/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-memory repository fakes. They implement the repository interfaces
// closely enough for service tests: sentinel errors, duplicate-key
// behavior on unique indexes, and the version-filtered update.

type fakeTxnRunner struct{}

func (fakeTxnRunner) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- workspaces ---

type fakeWorkspaceRepo struct {
	mu         sync.Mutex
	workspaces map[primitive.ObjectID]*domain.Workspace
}

func newFakeWorkspaceRepo() *fakeWorkspaceRepo {
	return &fakeWorkspaceRepo{workspaces: make(map[primitive.ObjectID]*domain.Workspace)}
}

func (f *fakeWorkspaceRepo) Create(ctx context.Context, ws *domain.Workspace) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.workspaces {
		if existing.OwnerID == ws.OwnerID && existing.Purpose == ws.Purpose {
			return primitive.NilObjectID, repository.ErrDuplicateKey
		}
	}
	if ws.ID.IsZero() {
		ws.ID = primitive.NewObjectID()
	}
	clone := *ws
	f.workspaces[ws.ID] = &clone
	return ws.ID, nil
}

func (f *fakeWorkspaceRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws, ok := f.workspaces[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *ws
	return &clone, nil
}

func (f *fakeWorkspaceRepo) GetByOwnerAndPurpose(ctx context.Context, ownerID primitive.ObjectID, purpose string) (*domain.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ws := range f.workspaces {
		if ws.OwnerID == ownerID && ws.Purpose == purpose {
			clone := *ws
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeWorkspaceRepo) ListByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]domain.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Workspace
	for _, ws := range f.workspaces {
		if ws.OwnerID == ownerID {
			out = append(out, *ws)
		}
	}
	return out, nil
}

func (f *fakeWorkspaceRepo) BumpVersion(ctx context.Context, id primitive.ObjectID, expected int64, phase domain.Phase, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws, ok := f.workspaces[id]
	if !ok {
		return repository.ErrNotFound
	}
	if ws.Version != expected {
		return repository.ErrStaleVersion
	}
	ws.Version = expected + 1
	ws.Phase = phase
	ws.UpdatedAt = now
	return nil
}

// --- cards ---

type fakeCardRepo struct {
	mu    sync.Mutex
	cards map[primitive.ObjectID]domain.Card
}

func newFakeCardRepo() *fakeCardRepo {
	return &fakeCardRepo{cards: make(map[primitive.ObjectID]domain.Card)}
}

func (f *fakeCardRepo) Insert(ctx context.Context, card *domain.Card) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if card.ID.IsZero() {
		card.ID = primitive.NewObjectID()
	}
	f.cards[card.ID] = *card
	return nil
}

func (f *fakeCardRepo) InsertMany(ctx context.Context, cards []domain.Card) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range cards {
		if cards[i].ID.IsZero() {
			cards[i].ID = primitive.NewObjectID()
		}
		f.cards[cards[i].ID] = cards[i]
	}
	return nil
}

func (f *fakeCardRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	card, ok := f.cards[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &card, nil
}

func (f *fakeCardRepo) GetByWorkspace(ctx context.Context, workspaceID primitive.ObjectID) ([]domain.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Card
	for _, card := range f.cards {
		if card.WorkspaceID == workspaceID {
			out = append(out, card)
		}
	}
	return out, nil
}

func (f *fakeCardRepo) Upsert(ctx context.Context, card *domain.Card) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards[card.ID] = *card
	return nil
}

func (f *fakeCardRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cards[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.cards, id)
	return nil
}

func (f *fakeCardRepo) GetLiveBySetPair(ctx context.Context, workspaceID primitive.ObjectID, exerciseID string, setIndex int) ([]domain.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Card
	for _, card := range f.cards {
		if card.WorkspaceID != workspaceID {
			continue
		}
		if card.Status != domain.StatusProposed && card.Status != domain.StatusActive {
			continue
		}
		if card.Refs == nil || card.Refs.SetIndex == nil {
			continue
		}
		if card.Refs.ExerciseID == exerciseID && *card.Refs.SetIndex == setIndex {
			out = append(out, card)
		}
	}
	return out, nil
}

func (f *fakeCardRepo) GetExpiredProposals(ctx context.Context, workspaceID primitive.ObjectID, now time.Time) ([]domain.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Card
	for _, card := range f.cards {
		if card.WorkspaceID == workspaceID && card.ExpiredBy(now) {
			out = append(out, card)
		}
	}
	return out, nil
}

func (f *fakeCardRepo) ListWorkspacesWithExpired(ctx context.Context, now time.Time) ([]primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[primitive.ObjectID]bool)
	var out []primitive.ObjectID
	for _, card := range f.cards {
		if card.ExpiredBy(now) && !seen[card.WorkspaceID] {
			seen[card.WorkspaceID] = true
			out = append(out, card.WorkspaceID)
		}
	}
	return out, nil
}

// --- queue ---

type fakeQueueRepo struct {
	mu      sync.Mutex
	entries map[primitive.ObjectID]domain.QueueEntry // keyed by entry id
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{entries: make(map[primitive.ObjectID]domain.QueueEntry)}
}

func (f *fakeQueueRepo) Insert(ctx context.Context, entry *domain.QueueEntry) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.entries {
		if existing.WorkspaceID == entry.WorkspaceID && existing.CardID == entry.CardID {
			return primitive.NilObjectID, repository.ErrDuplicateKey
		}
	}
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if entry.InsertedAt.IsZero() {
		entry.InsertedAt = time.Now().UTC()
	}
	f.entries[entry.ID] = *entry
	return entry.ID, nil
}

func (f *fakeQueueRepo) GetByWorkspace(ctx context.Context, workspaceID primitive.ObjectID) ([]domain.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.QueueEntry
	for _, entry := range f.entries {
		if entry.WorkspaceID == workspaceID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *fakeQueueRepo) DeleteByCardIDs(ctx context.Context, workspaceID primitive.ObjectID, cardIDs []primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	drop := make(map[primitive.ObjectID]bool, len(cardIDs))
	for _, id := range cardIDs {
		drop[id] = true
	}
	for id, entry := range f.entries {
		if entry.WorkspaceID == workspaceID && drop[entry.CardID] {
			delete(f.entries, id)
		}
	}
	return nil
}

func (f *fakeQueueRepo) CountByWorkspace(ctx context.Context, workspaceID primitive.ObjectID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, entry := range f.entries {
		if entry.WorkspaceID == workspaceID {
			n++
		}
	}
	return n, nil
}

// --- events ---

type fakeEventRepo struct {
	mu     sync.Mutex
	events []domain.Event
}

func newFakeEventRepo() *fakeEventRepo { return &fakeEventRepo{} }

func (f *fakeEventRepo) Append(ctx context.Context, event *domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.WorkspaceID == event.WorkspaceID && e.Version == event.Version {
			return repository.ErrDuplicateKey
		}
	}
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeEventRepo) GetLatest(ctx context.Context, workspaceID primitive.ObjectID) (*domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *domain.Event
	for i := range f.events {
		e := &f.events[i]
		if e.WorkspaceID != workspaceID {
			continue
		}
		if latest == nil || e.Version > latest.Version {
			latest = e
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	clone := *latest
	return &clone, nil
}

func (f *fakeEventRepo) GetFromVersion(ctx context.Context, workspaceID primitive.ObjectID, fromVersion int64) ([]domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Event
	for _, e := range f.events {
		if e.WorkspaceID == workspaceID && e.Version > fromVersion {
			out = append(out, e)
		}
	}
	// Events arrive in append order here, which is version order.
	return out, nil
}

func (f *fakeEventRepo) GetOlderThan(ctx context.Context, workspaceID primitive.ObjectID, cutoff time.Time) ([]domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Event
	for _, e := range f.events {
		if e.WorkspaceID == workspaceID && e.CreatedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEventRepo) ListWorkspaceIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[primitive.ObjectID]bool)
	var out []primitive.ObjectID
	for _, e := range f.events {
		if !seen[e.WorkspaceID] {
			seen[e.WorkspaceID] = true
			out = append(out, e.WorkspaceID)
		}
	}
	return out, nil
}

// --- idempotency ---

type fakeIdempotencyRepo struct {
	mu      sync.Mutex
	records map[string]*domain.IdempotencyRecord
}

func newFakeIdempotencyRepo() *fakeIdempotencyRepo {
	return &fakeIdempotencyRepo{records: make(map[string]*domain.IdempotencyRecord)}
}

func idemKey(scopeKey, key string) string { return scopeKey + "|" + key }

func (f *fakeIdempotencyRepo) Reserve(ctx context.Context, record *domain.IdempotencyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := idemKey(record.ScopeKey, record.Key)
	if _, ok := f.records[k]; ok {
		return repository.ErrDuplicateKey
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	clone := *record
	f.records[k] = &clone
	return nil
}

func (f *fakeIdempotencyRepo) Get(ctx context.Context, scopeKey, key string) (*domain.IdempotencyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[idemKey(scopeKey, key)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (f *fakeIdempotencyRepo) Complete(ctx context.Context, scopeKey, key string, response *domain.CommitResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[idemKey(scopeKey, key)]
	if !ok {
		return repository.ErrNotFound
	}
	record.Status = domain.IdempotencyCompleted
	record.Response = response
	return nil
}

func (f *fakeIdempotencyRepo) Release(ctx context.Context, scopeKey, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := idemKey(scopeKey, key)
	record, ok := f.records[k]
	if ok && record.Status == domain.IdempotencyPending {
		delete(f.records, k)
	}
	return nil
}
