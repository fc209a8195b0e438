package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"alcyxob/fitness-workspace/internal/domain"
	"alcyxob/fitness-workspace/internal/reducer"
	"alcyxob/fitness-workspace/internal/repository"
	"alcyxob/fitness-workspace/internal/validation"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WorkspaceView is the read-side projection of one workspace.
type WorkspaceView struct {
	Workspace *domain.Workspace   `json:"workspace"`
	Cards     []domain.Card       `json:"cards"`
	Queue     []domain.QueueEntry `json:"queue"`
}

// ReplayReport compares the live state against an event-log reconstruction.
type ReplayReport struct {
	Version    int64    `json:"version"`
	CardCount  int      `json:"cardCount"`
	QueueCount int      `json:"queueCount"`
	Consistent bool     `json:"consistent"`
	Mismatches []string `json:"mismatches,omitempty"`
}

// WorkspaceService is the transaction coordinator: it wraps the reducer in
// an atomic read-check-write unit with optimistic concurrency on the
// workspace version counter. callerID scopes reads and writes to the
// owning account; primitive.NilObjectID bypasses the check for admin and
// internal callers.
type WorkspaceService interface {
	Bootstrap(ctx context.Context, ownerID primitive.ObjectID, purpose string) (*domain.Workspace, bool, error)
	Get(ctx context.Context, callerID, workspaceID primitive.ObjectID) (*WorkspaceView, error)
	ListByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]domain.Workspace, error)
	Apply(ctx context.Context, callerID, workspaceID primitive.ObjectID, expectedVersion int64, action *domain.Action) (*domain.CommitResult, error)
	Events(ctx context.Context, callerID, workspaceID primitive.ObjectID, fromVersion int64) ([]domain.Event, error)
	Replay(ctx context.Context, callerID, workspaceID primitive.ObjectID) (*ReplayReport, error)
}

// workspaceService implements the WorkspaceService interface.
type workspaceService struct {
	workspaceRepo repository.WorkspaceRepository
	cardRepo      repository.CardRepository
	queueRepo     repository.QueueRepository
	eventRepo     repository.EventRepository
	guard         *IdempotencyGuard
	queue         *QueueManager
	txn           repository.TxnRunner
	chain         *validation.Chain
	undoWindow    time.Duration
	now           func() time.Time // injectable clock, tests pin it
}

// NewWorkspaceService creates a new instance of workspaceService.
func NewWorkspaceService(
	workspaceRepo repository.WorkspaceRepository,
	cardRepo repository.CardRepository,
	queueRepo repository.QueueRepository,
	eventRepo repository.EventRepository,
	guard *IdempotencyGuard,
	queue *QueueManager,
	txn repository.TxnRunner,
	undoWindow time.Duration,
) WorkspaceService {
	if undoWindow <= 0 {
		undoWindow = reducer.DefaultUndoWindow
	}
	return &workspaceService{
		workspaceRepo: workspaceRepo,
		cardRepo:      cardRepo,
		queueRepo:     queueRepo,
		eventRepo:     eventRepo,
		guard:         guard,
		queue:         queue,
		txn:           txn,
		chain:         validation.NewActionChain(),
		undoWindow:    undoWindow,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Bootstrap finds or creates the workspace for (owner, purpose). The
// returned bool reports whether it was created by this call.
func (s *workspaceService) Bootstrap(ctx context.Context, ownerID primitive.ObjectID, purpose string) (*domain.Workspace, bool, error) {
	if ownerID == primitive.NilObjectID || purpose == "" {
		return nil, false, domain.NewFieldError(domain.CodeInvalidArgument,
			"ownerId and purpose are required", "purpose", purpose)
	}

	ws, err := s.workspaceRepo.GetByOwnerAndPurpose(ctx, ownerID, purpose)
	if err == nil {
		return ws, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	fresh := domain.NewWorkspace(ownerID, purpose)
	if _, err := s.workspaceRepo.Create(ctx, fresh); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			// Lost a concurrent create; the winner's document is ours to use.
			ws, err := s.workspaceRepo.GetByOwnerAndPurpose(ctx, ownerID, purpose)
			return ws, false, err
		}
		return nil, false, err
	}
	return fresh, true, nil
}

// Get returns the live projection of one workspace.
func (s *workspaceService) Get(ctx context.Context, callerID, workspaceID primitive.ObjectID) (*WorkspaceView, error) {
	ws, err := s.loadOwned(ctx, callerID, workspaceID)
	if err != nil {
		return nil, err
	}
	cards, err := s.cardRepo.GetByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	entries, err := s.queueRepo.GetByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	domain.SortForSurfacing(entries)
	return &WorkspaceView{Workspace: ws, Cards: cards, Queue: entries}, nil
}

// ListByOwner returns every workspace owned by one account.
func (s *workspaceService) ListByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]domain.Workspace, error) {
	return s.workspaceRepo.ListByOwner(ctx, ownerID)
}

// loadOwned fetches the workspace and verifies the caller owns it. A
// mismatch reports NOT_FOUND rather than forbidden so workspace ids do not
// leak across accounts.
func (s *workspaceService) loadOwned(ctx context.Context, callerID, workspaceID primitive.ObjectID) (*domain.Workspace, error) {
	ws, err := s.workspaceRepo.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, mapRepoError(err, "workspace")
	}
	if callerID != primitive.NilObjectID && ws.OwnerID != callerID {
		return nil, domain.NewError(domain.CodeNotFound, "workspace not found")
	}
	return ws, nil
}

// Apply runs one action through the full pipeline: validator chain,
// idempotency guard, then one atomic read-check-reduce-write transaction.
// On STALE_VERSION the caller must re-fetch and may retry exactly once
// with the fresh version; this method never retries it automatically.
func (s *workspaceService) Apply(ctx context.Context, callerID, workspaceID primitive.ObjectID, expectedVersion int64, action *domain.Action) (*domain.CommitResult, error) {
	if workspaceID == primitive.NilObjectID {
		return nil, domain.NewFieldError(domain.CodeInvalidArgument,
			"workspaceId is required", "workspaceId", "missing")
	}

	// Gate before the transaction: rejecting inside one wastes a commit slot.
	req := &validation.Request{Action: action}
	if err := s.chain.Validate(req); err != nil {
		return nil, err
	}

	scope := domain.WorkspaceScope(workspaceID)
	cached, reserved, err := s.guard.CheckOrReserve(ctx, scope, action.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if !reserved {
		return cached, nil
	}

	var commit *domain.CommitResult
	err = s.txn.WithTransaction(ctx, func(txCtx context.Context) error {
		var txErr error
		commit, txErr = s.applyInTxn(txCtx, callerID, workspaceID, expectedVersion, action, req.DecodedPayload)
		return txErr
	})
	if err != nil {
		if relErr := s.guard.Release(ctx, scope, action.IdempotencyKey); relErr != nil {
			log.Printf("WARN: failed to release idempotency reservation %s/%s: %v", scope, action.IdempotencyKey, relErr)
		}
		return nil, err
	}

	if storeErr := s.guard.Store(ctx, scope, action.IdempotencyKey, commit); storeErr != nil {
		// The commit stands; only replay protection degraded. Loud log, no error.
		log.Printf("ERROR: failed to store idempotent response %s/%s: %v", scope, action.IdempotencyKey, storeErr)
	}

	// Best-effort cap restoration, outside the transaction on purpose.
	s.queue.TrimQuietly(ctx, workspaceID)
	return commit, nil
}

// applyInTxn is the body of the atomic unit: re-read, version check,
// reduce, write. Any error aborts the transaction with zero side effects.
func (s *workspaceService) applyInTxn(ctx context.Context, callerID, workspaceID primitive.ObjectID, expectedVersion int64, action *domain.Action, payload any) (*domain.CommitResult, error) {
	ws, err := s.loadOwned(ctx, callerID, workspaceID)
	if err != nil {
		return nil, err
	}
	if ws.Version != expectedVersion {
		return nil, domain.NewFieldError(domain.CodeStaleVersion,
			"workspace version conflict", "expectedVersion",
			fmt.Sprintf("expected %d, current is %d", expectedVersion, ws.Version))
	}

	cards, err := s.cardRepo.GetByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	entries, err := s.queueRepo.GetByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	lastEvent, err := s.eventRepo.GetLatest(ctx, workspaceID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	state := &reducer.State{
		Workspace:  ws,
		Cards:      cards,
		Queue:      entries,
		LastEvent:  lastEvent,
		UndoWindow: s.undoWindow,
	}
	result, err := reducer.Reduce(state, action, payload, s.now())
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.workspaceRepo.BumpVersion(ctx, workspaceID, expectedVersion, result.Phase, now); err != nil {
		return nil, mapRepoError(err, "workspace")
	}
	for i := range result.Upserts {
		if err := s.cardRepo.Upsert(ctx, &result.Upserts[i]); err != nil {
			return nil, err
		}
	}
	for _, id := range result.Removals {
		if err := s.cardRepo.Delete(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	for i := range result.QueueAdds {
		if _, err := s.queueRepo.Insert(ctx, &result.QueueAdds[i]); err != nil {
			return nil, err
		}
	}
	if err := s.queueRepo.DeleteByCardIDs(ctx, workspaceID, result.QueueRemovals); err != nil {
		return nil, err
	}
	if err := s.eventRepo.Append(ctx, result.Event); err != nil {
		return nil, err
	}
	return &result.Commit, nil
}

// Events returns the audit log from a given version (exclusive) onward.
func (s *workspaceService) Events(ctx context.Context, callerID, workspaceID primitive.ObjectID, fromVersion int64) ([]domain.Event, error) {
	if _, err := s.loadOwned(ctx, callerID, workspaceID); err != nil {
		return nil, err
	}
	return s.eventRepo.GetFromVersion(ctx, workspaceID, fromVersion)
}

// Replay rebuilds the workspace from its event log and reports whether the
// reconstruction matches the live card/queue state.
func (s *workspaceService) Replay(ctx context.Context, callerID, workspaceID primitive.ObjectID) (*ReplayReport, error) {
	view, err := s.Get(ctx, callerID, workspaceID)
	if err != nil {
		return nil, err
	}
	events, err := s.eventRepo.GetFromVersion(ctx, workspaceID, 0)
	if err != nil {
		return nil, err
	}

	m := reducer.NewMaterialized()
	if err := m.Replay(events); err != nil {
		return nil, fmt.Errorf("event log replay failed: %w", err)
	}

	report := &ReplayReport{
		Version:    m.Version,
		CardCount:  len(m.Cards),
		QueueCount: len(m.Queue),
		Consistent: true,
	}
	if m.Version != view.Workspace.Version {
		report.addMismatch(fmt.Sprintf("version: live %d, replayed %d", view.Workspace.Version, m.Version))
	}
	if m.Phase != view.Workspace.Phase {
		report.addMismatch(fmt.Sprintf("phase: live %s, replayed %s", view.Workspace.Phase, m.Phase))
	}

	// Proposals enter the store without an event; the log first hears of
	// one when it gets decided or swept. A live proposed card (and its
	// queue slot) the log never mentioned is expected, not drift.
	liveCards := make(map[primitive.ObjectID]bool, len(view.Cards))
	for _, live := range view.Cards {
		liveCards[live.ID] = true
		replayed, ok := m.Cards[live.ID]
		if !ok {
			if live.Status == domain.StatusProposed {
				continue
			}
			report.addMismatch(fmt.Sprintf("card %s: missing from replay", live.ID.Hex()))
			continue
		}
		if replayed.Status != live.Status {
			report.addMismatch(fmt.Sprintf("card %s: live status %s, replayed %s", live.ID.Hex(), live.Status, replayed.Status))
		}
	}
	for id := range m.Cards {
		if !liveCards[id] {
			report.addMismatch(fmt.Sprintf("card %s: replayed but not live", id.Hex()))
		}
	}

	liveQueue := make(map[primitive.ObjectID]bool, len(view.Queue))
	for _, entry := range view.Queue {
		liveQueue[entry.CardID] = true
		if _, ok := m.Queue[entry.CardID]; ok {
			continue
		}
		if _, evented := m.Cards[entry.CardID]; !evented {
			continue // undecided proposal's slot
		}
		report.addMismatch(fmt.Sprintf("queue entry for card %s: missing from replay", entry.CardID.Hex()))
	}
	for cardID := range m.Queue {
		if !liveQueue[cardID] {
			report.addMismatch(fmt.Sprintf("queue entry for card %s: replayed but not live", cardID.Hex()))
		}
	}
	return report, nil
}

func (r *ReplayReport) addMismatch(msg string) {
	r.Consistent = false
	r.Mismatches = append(r.Mismatches, msg)
}

// mapRepoError translates repository sentinels into the domain taxonomy.
func mapRepoError(err error, what string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return domain.NewError(domain.CodeNotFound, what+" not found")
	case errors.Is(err, repository.ErrStaleVersion):
		return domain.NewError(domain.CodeStaleVersion, "workspace version conflict")
	}
	return err
}
