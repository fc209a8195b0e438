package service

import (
	"context"
	"errors"
	"log"
	"time"

	"alcyxob/fitness-workspace/internal/domain"
	"alcyxob/fitness-workspace/internal/reducer"
	"alcyxob/fitness-workspace/internal/repository"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultSweepInterval is how often the background sweeper fires when the
// config does not say otherwise.
const DefaultSweepInterval = time.Minute

// SweeperService expires overdue proposals. Each workspace sweep is one
// ordinary transaction competing for the version counter like any other
// writer, so a sweep can lose to a concurrent user action and pick the
// workspace up again on the next pass.
type SweeperService interface {
	SweepWorkspace(ctx context.Context, workspaceID primitive.ObjectID) (int, error)
	SweepAll(ctx context.Context) (int, error)
	Run(ctx context.Context, interval time.Duration)
}

type sweeperService struct {
	workspaceRepo repository.WorkspaceRepository
	cardRepo      repository.CardRepository
	queueRepo     repository.QueueRepository
	eventRepo     repository.EventRepository
	txn           repository.TxnRunner
	now           func() time.Time
}

// NewSweeperService creates a new instance of sweeperService.
func NewSweeperService(
	workspaceRepo repository.WorkspaceRepository,
	cardRepo repository.CardRepository,
	queueRepo repository.QueueRepository,
	eventRepo repository.EventRepository,
	txn repository.TxnRunner,
) SweeperService {
	return &sweeperService{
		workspaceRepo: workspaceRepo,
		cardRepo:      cardRepo,
		queueRepo:     queueRepo,
		eventRepo:     eventRepo,
		txn:           txn,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SweepWorkspace expires every overdue proposal in one workspace within a
// single transaction. Returns how many cards were expired; zero with a nil
// error means the sweep was a no-op and consumed no version.
func (s *sweeperService) SweepWorkspace(ctx context.Context, workspaceID primitive.ObjectID) (int, error) {
	var expired int
	err := s.txn.WithTransaction(ctx, func(txCtx context.Context) error {
		ws, err := s.workspaceRepo.GetByID(txCtx, workspaceID)
		if err != nil {
			return mapRepoError(err, "workspace")
		}
		cards, err := s.cardRepo.GetByWorkspace(txCtx, workspaceID)
		if err != nil {
			return err
		}
		entries, err := s.queueRepo.GetByWorkspace(txCtx, workspaceID)
		if err != nil {
			return err
		}

		state := &reducer.State{Workspace: ws, Cards: cards, Queue: entries}
		result, err := reducer.SweepExpired(state, s.now())
		if err != nil {
			return err
		}
		if result == nil {
			return nil
		}

		if err := s.workspaceRepo.BumpVersion(txCtx, workspaceID, ws.Version, result.Phase, s.now()); err != nil {
			return mapRepoError(err, "workspace")
		}
		for i := range result.Upserts {
			if err := s.cardRepo.Upsert(txCtx, &result.Upserts[i]); err != nil {
				return err
			}
		}
		if err := s.queueRepo.DeleteByCardIDs(txCtx, workspaceID, result.QueueRemovals); err != nil {
			return err
		}
		if err := s.eventRepo.Append(txCtx, result.Event); err != nil {
			return err
		}
		expired = len(result.Upserts)
		return nil
	})
	return expired, err
}

// SweepAll sweeps every workspace that currently holds an overdue proposal.
// A version conflict on one workspace does not abort the pass.
func (s *sweeperService) SweepAll(ctx context.Context) (int, error) {
	ids, err := s.cardRepo.ListWorkspacesWithExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	total := 0
	for _, id := range ids {
		n, err := s.SweepWorkspace(ctx, id)
		if err != nil {
			if domain.IsCode(err, domain.CodeStaleVersion) || errors.Is(err, repository.ErrStaleVersion) {
				log.Printf("WARN: sweep lost version race on workspace %s, will retry next pass", id.Hex())
				continue
			}
			return total, err
		}
		total += n
	}
	return total, nil
}

// Run drives periodic sweeps until the context is cancelled. Consecutive
// failures back off exponentially before the ticker cadence resumes.
func (s *sweeperService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0 // never give up, the loop owns its lifetime

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.SweepAll(ctx); err != nil {
				wait := policy.NextBackOff()
				log.Printf("ERROR: proposal sweep failed: %v (backing off %s)", err, wait)
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
			} else {
				policy.Reset()
				if n > 0 {
					log.Printf("expired %d overdue proposals", n)
				}
			}
		}
	}
}
