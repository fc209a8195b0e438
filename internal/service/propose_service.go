package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"alcyxob/fitness-workspace/internal/domain"
	"alcyxob/fitness-workspace/internal/repository"
	"alcyxob/fitness-workspace/internal/validation"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultProposalTTL bounds how long an undecided proposal stays live
// before the sweeper expires it.
const DefaultProposalTTL = time.Hour

// CardDraft is one proposed card as submitted by an agent.
type CardDraft struct {
	Type       domain.CardType  `json:"type"`
	Lane       domain.Lane      `json:"lane"`
	Content    map[string]any   `json:"content"`
	Refs       *domain.CardRefs `json:"refs,omitempty"`
	Priority   int              `json:"priority"`
	TTLMinutes *int             `json:"ttlMinutes,omitempty"` // overrides the configured proposal TTL
}

// ProposeResult reports what a batch proposal produced. QueueInserted can
// be lower than the card count when the post-insert trim evicted some of
// the new entries straight away. GroupID is the batch's generated group
// identifier, usable as the ACCEPT_ALL / REJECT_ALL target.
type ProposeResult struct {
	CardIDs       []primitive.ObjectID `json:"cardIds"`
	GroupID       string               `json:"groupId"`
	QueueInserted int                  `json:"queueInsertedCount"`
}

// ProposeService is the agent-facing write path. Proposals do not touch
// the workspace version and never appear in the event log; only deciding
// them does. Duplicate submissions are tolerated rather than guarded:
// surplus proposals age out through the TTL or get swept by
// replace-on-accept.
type ProposeService interface {
	Propose(ctx context.Context, workspaceID primitive.ObjectID, drafts []CardDraft) (*ProposeResult, error)
}

type proposeService struct {
	workspaceRepo repository.WorkspaceRepository
	cardRepo      repository.CardRepository
	queue         *QueueManager
	proposalTTL   time.Duration
	now           func() time.Time
}

// NewProposeService creates a new instance of proposeService.
func NewProposeService(
	workspaceRepo repository.WorkspaceRepository,
	cardRepo repository.CardRepository,
	queue *QueueManager,
	proposalTTL time.Duration,
) ProposeService {
	if proposalTTL <= 0 {
		proposalTTL = DefaultProposalTTL
	}
	return &proposeService{
		workspaceRepo: workspaceRepo,
		cardRepo:      cardRepo,
		queue:         queue,
		proposalTTL:   proposalTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Propose validates and inserts a batch of proposed cards plus their queue
// entries. The whole batch is rejected if any draft fails validation or
// would collide on a live (exerciseId, setIndex) pair.
func (s *proposeService) Propose(ctx context.Context, workspaceID primitive.ObjectID, drafts []CardDraft) (*ProposeResult, error) {
	if len(drafts) == 0 {
		return nil, domain.NewFieldError(domain.CodeInvalidArgument,
			"at least one card is required", "cards", "empty")
	}

	if _, err := s.workspaceRepo.GetByID(ctx, workspaceID); err != nil {
		return nil, mapRepoError(err, "workspace")
	}

	now := s.now()
	batchGroupID := uuid.NewString()
	cards := make([]domain.Card, 0, len(drafts))
	seenPairs := make(map[string]bool)

	for i, d := range drafts {
		if _, err := validation.ValidateCardContent(d.Type, d.Lane, d.Content); err != nil {
			var derr *domain.Error
			if errors.As(err, &derr) {
				return nil, derr.WithDetail("cards", fmt.Sprintf("index %d", i))
			}
			return nil, err
		}

		expiresAt := now.Add(s.proposalTTL)
		if d.TTLMinutes != nil {
			if *d.TTLMinutes <= 0 {
				return nil, domain.NewFieldError(domain.CodeInvalidArgument,
					"ttlMinutes must be positive", "cards", fmt.Sprintf("index %d", i))
			}
			expiresAt = now.Add(time.Duration(*d.TTLMinutes) * time.Minute)
		}

		refs := &domain.CardRefs{GroupID: batchGroupID}
		if d.Refs != nil {
			clone := *d.Refs
			refs = &clone
			if refs.GroupID == "" {
				refs.GroupID = batchGroupID
			}
		}

		card := domain.Card{
			ID:          primitive.NewObjectID(),
			WorkspaceID: workspaceID,
			Type:        d.Type,
			Status:      domain.StatusProposed,
			Lane:        d.Lane,
			Content:     d.Content,
			Refs:        refs,
			Origin:      domain.OriginAgent,
			ExpiresAt:   &expiresAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if key, ok := card.SetPairKey(); ok {
			if seenPairs[key] {
				return nil, domain.NewFieldError(domain.CodeInvalidArgument,
					"duplicate (exerciseId, setIndex) pair within batch", "cards", key)
			}
			seenPairs[key] = true
			live, err := s.cardRepo.GetLiveBySetPair(ctx, workspaceID, card.Refs.ExerciseID, *card.Refs.SetIndex)
			if err != nil {
				return nil, err
			}
			if len(live) > 0 {
				return nil, domain.NewFieldError(domain.CodeInvalidArgument,
					"(exerciseId, setIndex) pair already held by a live card", "cards", key)
			}
		}

		cards = append(cards, card)
	}

	if err := s.cardRepo.InsertMany(ctx, cards); err != nil {
		return nil, err
	}

	result := &ProposeResult{
		CardIDs: make([]primitive.ObjectID, 0, len(cards)),
		GroupID: batchGroupID,
	}
	inserted := make(map[primitive.ObjectID]bool, len(cards))
	for i := range cards {
		result.CardIDs = append(result.CardIDs, cards[i].ID)
		entry := domain.QueueEntry{
			WorkspaceID: workspaceID,
			CardID:      cards[i].ID,
			Lane:        cards[i].Lane,
			Priority:    drafts[i].Priority,
			InsertedAt:  now,
		}
		if _, err := s.queue.Insert(ctx, &entry); err != nil {
			return nil, err
		}
		inserted[cards[i].ID] = true
		result.QueueInserted++
	}

	// Overshooting the cap is expected here; the trim restores it and may
	// evict entries we just inserted if their priority loses out.
	evicted, err := s.queue.Trim(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	for _, cardID := range evicted {
		if inserted[cardID] {
			result.QueueInserted--
		}
	}

	return result, nil
}
