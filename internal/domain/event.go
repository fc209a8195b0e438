package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventType names the kind of committed transaction an event records.
type EventType string

const (
	EventCardAdded       EventType = "card_added"
	EventProposalDecided EventType = "proposal_decided" // accept or reject, single card
	EventGroupDecided    EventType = "group_decided"    // ACCEPT_ALL / REJECT_ALL
	EventSetLogged       EventType = "set_logged"
	EventCardMutated     EventType = "card_mutated" // SWAP / ADJUST_LOAD / REORDER_SETS
	EventPhaseChanged    EventType = "phase_changed"
	EventCardsExpired    EventType = "cards_expired" // TTL sweep
	EventActionUndone    EventType = "action_undone"
)

// Diff is a data-only change record. Replay applies After along Path;
// undo applies Before. Paths:
//
//	workspace/phase          phase value
//	card/<id>                whole-card snapshot (nil Before = creation)
//	card/<id>/status         status value
//	card/<id>/content        content document
//	queue/<cardId>           queue entry snapshot (nil = absent)
type Diff struct {
	Path   string `bson:"path" json:"path"`
	Before any    `bson:"before,omitempty" json:"before,omitempty"`
	After  any    `bson:"after,omitempty" json:"after,omitempty"`
}

// Inverted returns the diff with before/after swapped.
func (d Diff) Inverted() Diff {
	return Diff{Path: d.Path, Before: d.After, After: d.Before}
}

// MaxEventPayloadBytes bounds an event's compact payload document.
const MaxEventPayloadBytes = 2048

// maxPayloadIDs is how many hex ids fit the payload bound alongside the
// other payload keys (24-char hex plus JSON overhead per entry).
const maxPayloadIDs = 64

// SummarizeIDs keeps id lists inside the payload bound: past the limit the
// list collapses to its count. Diffs carry the full detail regardless.
func SummarizeIDs(ids []string) any {
	if len(ids) <= maxPayloadIDs {
		return ids
	}
	return map[string]any{"count": len(ids)}
}

// Event is the append-only record of one committed transaction. Events are
// never mutated or deleted (only archived); they are the sole basis for
// deterministic undo and replay.
type Event struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	WorkspaceID   primitive.ObjectID `bson:"workspaceId" json:"workspaceId"`
	Type          EventType          `bson:"type" json:"type"`
	Version       int64              `bson:"version" json:"version"` // workspace version this commit produced
	CorrelationID string             `bson:"correlationId" json:"correlationId"`
	CausedBy      Origin             `bson:"causedBy" json:"causedBy"`
	Payload       map[string]any     `bson:"payload,omitempty" json:"payload,omitempty"` // compact, type-specific, <=2KB
	Diffs         []Diff             `bson:"diffs,omitempty" json:"diffs,omitempty"`
	Reversible    bool               `bson:"reversible" json:"reversible"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
}

// InverseDiffs derives the diffs that undo this event, in reverse order so
// that dependent changes unwind correctly.
func (e *Event) InverseDiffs() []Diff {
	out := make([]Diff, 0, len(e.Diffs))
	for i := len(e.Diffs) - 1; i >= 0; i-- {
		out = append(out, e.Diffs[i].Inverted())
	}
	return out
}
