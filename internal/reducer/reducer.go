package reducer

import (
	"fmt"
	"time"

	"alcyxob/fitness-workspace/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultUndoWindow bounds how old the last reversible event may be for
// UNDO to apply it.
const DefaultUndoWindow = 15 * time.Minute

// State is the snapshot the transaction coordinator re-reads inside the
// atomic unit: the workspace, the minimal set of related cards the action
// touches, the current queue entries and the most recent event (for UNDO).
type State struct {
	Workspace  *domain.Workspace
	Cards      []domain.Card
	Queue      []domain.QueueEntry
	LastEvent  *domain.Event
	UndoWindow time.Duration // zero means DefaultUndoWindow
}

// Result is everything one commit writes: the next phase, card upserts and
// removals, queue deltas, the event, and the response returned to the
// caller. The reducer computes it; the coordinator persists it.
type Result struct {
	Phase         domain.Phase
	Upserts       []domain.Card
	Removals      []primitive.ObjectID
	QueueAdds     []domain.QueueEntry
	QueueRemovals []primitive.ObjectID // card ids
	Event         *domain.Event
	Commit        domain.CommitResult
}

type handlerFunc func(*reduction) error

// handlers dispatches each action type to its transition logic. Exactly
// one handler (logSet) may move a card into the completed status.
var handlers = map[domain.ActionType]handlerFunc{
	domain.ActionAddInstruction: addText,
	domain.ActionAddNote:        addText,
	domain.ActionAcceptProposal: decideProposal,
	domain.ActionRejectProposal: decideProposal,
	domain.ActionAcceptAll:      decideGroup,
	domain.ActionRejectAll:      decideGroup,
	domain.ActionLogSet:         logSet,
	domain.ActionSwap:           swapExercise,
	domain.ActionAdjustLoad:     adjustLoad,
	domain.ActionReorderSets:    reorderSets,
	domain.ActionPause:          changePhase,
	domain.ActionResume:         changePhase,
	domain.ActionComplete:       changePhase,
	domain.ActionUndo:           undo,
}

// phaseAllowed holds the phase guard per action type. Absent types are
// allowed in every phase.
var phaseAllowed = map[domain.ActionType][]domain.Phase{
	domain.ActionLogSet:      {domain.PhaseActive},
	domain.ActionSwap:        {domain.PhaseActive},
	domain.ActionAdjustLoad:  {domain.PhaseActive},
	domain.ActionReorderSets: {domain.PhaseActive},
	domain.ActionPause:       {domain.PhaseActive},
	domain.ActionResume:      {domain.PhasePaused},
	domain.ActionComplete:    {domain.PhaseActive, domain.PhasePaused},
}

// reduction is the working context of one Reduce call.
type reduction struct {
	state   *State
	action  *domain.Action
	payload any
	now     time.Time
	result  *Result
	event   *domain.Event
}

// Reduce is the pure state machine: (state, action) -> (result, event) or a
// typed error with zero side effects. It never reads the clock or any
// external state; the caller supplies both. The decoded payload comes from
// the validator chain, which must have run already.
func Reduce(state *State, action *domain.Action, payload any, now time.Time) (*Result, error) {
	if state == nil || state.Workspace == nil {
		return nil, domain.NewError(domain.CodeNotFound, "workspace not loaded")
	}
	handler, ok := handlers[action.Type]
	if !ok {
		return nil, domain.NewFieldError(domain.CodeInvalidArgument,
			"unknown action type", "action.type", string(action.Type))
	}
	if err := checkPhase(state.Workspace.Phase, action.Type); err != nil {
		return nil, err
	}

	ws := state.Workspace
	nextVersion := ws.Version + 1
	r := &reduction{
		state:   state,
		action:  action,
		payload: payload,
		now:     now,
		result:  &Result{Phase: ws.Phase},
		event: &domain.Event{
			WorkspaceID:   ws.ID,
			Version:       nextVersion,
			CorrelationID: domain.CorrelationID(ws.ID, nextVersion),
			CausedBy:      action.Origin,
			Reversible:    true,
			CreatedAt:     now,
		},
	}

	if err := handler(r); err != nil {
		return nil, err
	}

	r.result.Event = r.event
	r.result.Commit.NewVersion = nextVersion
	r.result.Commit.Phase = r.result.Phase
	return r.result, nil
}

func checkPhase(current domain.Phase, t domain.ActionType) error {
	allowed, guarded := phaseAllowed[t]
	if !guarded {
		return nil
	}
	for _, p := range allowed {
		if p == current {
			return nil
		}
	}
	return domain.NewFieldError(domain.CodePhaseGuard,
		fmt.Sprintf("action %s is not valid in phase %s", t, current),
		"workspace.phase", string(current))
}

// --- shared helpers used by the handlers ---

// findCard returns the card with the given id from the loaded state.
func (r *reduction) findCard(id primitive.ObjectID) (*domain.Card, error) {
	for i := range r.state.Cards {
		if r.state.Cards[i].ID == id {
			return &r.state.Cards[i], nil
		}
	}
	return nil, domain.NewFieldError(domain.CodeNotFound,
		"target card not found", "action.targetId", id.Hex())
}

// checkSetPairFree enforces the (exerciseId, setIndex) uniqueness invariant
// for a card about to enter the proposed or active status. exclude names
// cards already being transitioned in this same commit.
func (r *reduction) checkSetPairFree(card *domain.Card, exclude map[primitive.ObjectID]bool) error {
	key, ok := card.SetPairKey()
	if !ok {
		return nil
	}
	for i := range r.state.Cards {
		other := &r.state.Cards[i]
		if other.ID == card.ID || exclude[other.ID] {
			continue
		}
		if other.Status != domain.StatusProposed && other.Status != domain.StatusActive {
			continue
		}
		if otherKey, ok := other.SetPairKey(); ok && otherKey == key {
			return domain.NewFieldError(domain.CodeInvalidArgument,
				"another live card already holds this set slot", "refs",
				fmt.Sprintf("pair %s held by card %s", key, other.ID.Hex()))
		}
	}
	return nil
}

// transition mutates a card's status, recording the diff, the upsert and
// the change entry. The direct completed transition is reserved to LOG_SET.
func (r *reduction) transition(card *domain.Card, to domain.CardStatus, viaLogSet bool) error {
	if to == domain.StatusCompleted && !viaLogSet {
		return domain.NewFieldError(domain.CodeInvalidArgument,
			"only LOG_SET may complete a card", "action.type", string(r.action.Type))
	}
	from := card.Status
	before := *card
	card.Status = to
	card.UpdatedAt = r.now
	if from == domain.StatusProposed {
		// Proposed cards entered the store without an event, so the first
		// event mentioning one carries the whole card: replay can then
		// materialize it, and the inverse restores the proposed snapshot.
		r.appendDiff(domain.Diff{
			Path:   cardPath(card.ID),
			Before: before,
			After:  *card,
		})
	} else {
		r.appendDiff(domain.Diff{
			Path:   cardStatusPath(card.ID),
			Before: string(from),
			After:  string(to),
		})
	}
	r.upsert(*card)
	return nil
}

// upsert records a card write and its change entry, deduplicating by id.
func (r *reduction) upsert(card domain.Card) {
	for i := range r.result.Upserts {
		if r.result.Upserts[i].ID == card.ID {
			r.result.Upserts[i] = card
			r.updateChange(card)
			return
		}
	}
	r.result.Upserts = append(r.result.Upserts, card)
	r.updateChange(card)
}

func (r *reduction) updateChange(card domain.Card) {
	for i := range r.result.Commit.ChangedCards {
		if r.result.Commit.ChangedCards[i].ID == card.ID {
			r.result.Commit.ChangedCards[i].Status = card.Status
			return
		}
	}
	r.result.Commit.ChangedCards = append(r.result.Commit.ChangedCards,
		domain.CardChange{ID: card.ID, Status: card.Status})
}

func (r *reduction) appendDiff(d domain.Diff) {
	r.event.Diffs = append(r.event.Diffs, d)
}

// dropFromQueue removes the card's queue entry if one is loaded, recording
// the diff and the delta.
func (r *reduction) dropFromQueue(cardID primitive.ObjectID) {
	for i := range r.state.Queue {
		entry := r.state.Queue[i]
		if entry.CardID != cardID {
			continue
		}
		r.result.QueueRemovals = append(r.result.QueueRemovals, cardID)
		r.result.Commit.QueueDelta = append(r.result.Commit.QueueDelta,
			domain.QueueChange{Op: domain.QueueOpRemove, CardID: cardID})
		r.appendDiff(domain.Diff{
			Path:   queuePath(cardID),
			Before: queueSnapshot(entry),
			After:  nil,
		})
		return
	}
}

// setPhase records a phase change through the usual diff/event plumbing.
// It compares against the commit's pending phase, so repeated calls within
// one reduction (a group holding two session plans) emit one diff.
func (r *reduction) setPhase(to domain.Phase) {
	from := r.result.Phase
	if from == to {
		return
	}
	r.result.Phase = to
	r.appendDiff(domain.Diff{
		Path:   phasePath,
		Before: string(from),
		After:  string(to),
	})
}
