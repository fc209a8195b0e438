package repository

import (
	"alcyxob/fitness-workspace/internal/domain"
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for repository layer
var (
	ErrNotFound     = RepositoryError("not found")
	ErrDuplicateKey = RepositoryError("duplicate key")
	ErrStaleVersion = RepositoryError("stale version")
	ErrUpdateFailed = RepositoryError("update failed")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// TxnRunner executes fn inside one atomic unit against the backing store.
// Every write fn performs through a repository sees the transaction's
// isolation; the commit is all-or-nothing. The mongo implementation also
// retries transient transaction errors internally.
type TxnRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// WorkspaceRepository persists the root aggregate.
type WorkspaceRepository interface {
	Create(ctx context.Context, ws *domain.Workspace) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Workspace, error)
	GetByOwnerAndPurpose(ctx context.Context, ownerID primitive.ObjectID, purpose string) (*domain.Workspace, error)
	ListByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]domain.Workspace, error)
	// BumpVersion performs the optimistic-concurrency write: it matches on
	// (id, version=expected) and sets version=expected+1 plus the new phase.
	// Returns ErrStaleVersion when nothing matched.
	BumpVersion(ctx context.Context, id primitive.ObjectID, expected int64, phase domain.Phase, now time.Time) error
}

// CardRepository persists cards keyed by id.
type CardRepository interface {
	Insert(ctx context.Context, card *domain.Card) error
	InsertMany(ctx context.Context, cards []domain.Card) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Card, error)
	GetByWorkspace(ctx context.Context, workspaceID primitive.ObjectID) ([]domain.Card, error)
	Upsert(ctx context.Context, card *domain.Card) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	// GetLiveBySetPair returns non-terminal cards holding the given
	// (exerciseId, setIndex) pair, for the uniqueness pre-check on Propose.
	GetLiveBySetPair(ctx context.Context, workspaceID primitive.ObjectID, exerciseID string, setIndex int) ([]domain.Card, error)
	// GetExpiredProposals returns proposed cards whose TTL deadline passed.
	GetExpiredProposals(ctx context.Context, workspaceID primitive.ObjectID, now time.Time) ([]domain.Card, error)
	// ListWorkspacesWithExpired names the workspaces the sweeper must visit.
	ListWorkspacesWithExpired(ctx context.Context, now time.Time) ([]primitive.ObjectID, error)
}

// QueueRepository persists the surface-next entries.
type QueueRepository interface {
	Insert(ctx context.Context, entry *domain.QueueEntry) (primitive.ObjectID, error)
	GetByWorkspace(ctx context.Context, workspaceID primitive.ObjectID) ([]domain.QueueEntry, error)
	DeleteByCardIDs(ctx context.Context, workspaceID primitive.ObjectID, cardIDs []primitive.ObjectID) error
	CountByWorkspace(ctx context.Context, workspaceID primitive.ObjectID) (int64, error)
}

// EventRepository is the append-only audit log. There is deliberately no
// update or delete; archival copies events out, it never removes them.
type EventRepository interface {
	Append(ctx context.Context, event *domain.Event) error
	GetLatest(ctx context.Context, workspaceID primitive.ObjectID) (*domain.Event, error)
	GetFromVersion(ctx context.Context, workspaceID primitive.ObjectID, fromVersion int64) ([]domain.Event, error)
	GetOlderThan(ctx context.Context, workspaceID primitive.ObjectID, cutoff time.Time) ([]domain.Event, error)
	ListWorkspaceIDs(ctx context.Context) ([]primitive.ObjectID, error)
}

// IdempotencyRepository persists reservation records. Reserve must be
// backed by a unique index on (scopeKey, key) so that exactly one
// concurrent duplicate wins; it returns ErrDuplicateKey to the losers.
type IdempotencyRepository interface {
	Reserve(ctx context.Context, record *domain.IdempotencyRecord) error
	Get(ctx context.Context, scopeKey, key string) (*domain.IdempotencyRecord, error)
	Complete(ctx context.Context, scopeKey, key string, response *domain.CommitResult) error
	// Release deletes a still-pending reservation after a failed attempt,
	// so a client retry with the same key can run. Completed records are
	// never released.
	Release(ctx context.Context, scopeKey, key string) error
}

// UserRepository defines the interface for interacting with account data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
}
