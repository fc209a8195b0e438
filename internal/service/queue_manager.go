package service

import (
	"context"
	"log"

	"alcyxob/fitness-workspace/internal/domain"
	"alcyxob/fitness-workspace/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// QueueManager maintains the capped, ordered surface-next list. Trimming
// runs outside the commit on purpose: the transaction must not read its own
// writes, so the cap is restored best-effort right after a commit rather
// than enforced inside it. The list may transiently exceed the cap by a
// small margin between commits.
type QueueManager struct {
	queueRepo repository.QueueRepository
}

// NewQueueManager creates a new QueueManager.
func NewQueueManager(queueRepo repository.QueueRepository) *QueueManager {
	return &QueueManager{queueRepo: queueRepo}
}

// Insert adds one entry. Used by the propose path, which never runs a
// transaction.
func (m *QueueManager) Insert(ctx context.Context, entry *domain.QueueEntry) (primitive.ObjectID, error) {
	return m.queueRepo.Insert(ctx, entry)
}

// Trim restores the cap, evicting lowest-priority/oldest entries first.
// Returns the card ids whose entries were evicted.
func (m *QueueManager) Trim(ctx context.Context, workspaceID primitive.ObjectID) ([]primitive.ObjectID, error) {
	entries, err := m.queueRepo.GetByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	victims := domain.SelectEvictions(entries, domain.QueueCap)
	if len(victims) == 0 {
		return nil, nil
	}
	cardIDs := make([]primitive.ObjectID, len(victims))
	for i, v := range victims {
		cardIDs[i] = v.CardID
	}
	if err := m.queueRepo.DeleteByCardIDs(ctx, workspaceID, cardIDs); err != nil {
		return nil, err
	}
	return cardIDs, nil
}

// TrimQuietly is the post-commit best-effort call: a trim failure is logged
// and swallowed, never surfaced to the caller whose commit already stands.
func (m *QueueManager) TrimQuietly(ctx context.Context, workspaceID primitive.ObjectID) {
	if _, err := m.Trim(ctx, workspaceID); err != nil {
		log.Printf("WARN: post-commit queue trim failed for workspace %s: %v", workspaceID.Hex(), err)
	}
}
