package domain

import "go.mongodb.org/mongo-driver/bson/primitive"

// ActionType enumerates the typed actions the reducer accepts.
type ActionType string

const (
	ActionAddInstruction ActionType = "ADD_INSTRUCTION"
	ActionAddNote        ActionType = "ADD_NOTE"
	ActionAcceptProposal ActionType = "ACCEPT_PROPOSAL"
	ActionRejectProposal ActionType = "REJECT_PROPOSAL"
	ActionAcceptAll      ActionType = "ACCEPT_ALL"
	ActionRejectAll      ActionType = "REJECT_ALL"
	ActionLogSet         ActionType = "LOG_SET"
	ActionSwap           ActionType = "SWAP"
	ActionAdjustLoad     ActionType = "ADJUST_LOAD"
	ActionReorderSets    ActionType = "REORDER_SETS"
	ActionPause          ActionType = "PAUSE"
	ActionResume         ActionType = "RESUME"
	ActionComplete       ActionType = "COMPLETE"
	ActionUndo           ActionType = "UNDO"
)

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionAddInstruction, ActionAddNote,
		ActionAcceptProposal, ActionRejectProposal,
		ActionAcceptAll, ActionRejectAll,
		ActionLogSet, ActionSwap, ActionAdjustLoad, ActionReorderSets,
		ActionPause, ActionResume, ActionComplete, ActionUndo:
		return true
	}
	return false
}

// NeedsTarget reports whether the action type requires a target card id.
func (t ActionType) NeedsTarget() bool {
	switch t {
	case ActionAcceptProposal, ActionRejectProposal,
		ActionLogSet, ActionSwap, ActionAdjustLoad, ActionReorderSets:
		return true
	}
	return false
}

// Action is one typed mutation request against a workspace. Payload is the
// raw request document; the validator chain decodes it into the typed
// payload struct for Type before the reducer ever sees it.
type Action struct {
	Type           ActionType         `bson:"type" json:"type"`
	TargetID       primitive.ObjectID `bson:"targetId,omitempty" json:"targetId,omitempty"`
	GroupID        string             `bson:"groupId,omitempty" json:"groupId,omitempty"` // ACCEPT_ALL / REJECT_ALL
	Payload        map[string]any     `bson:"payload,omitempty" json:"payload,omitempty"`
	IdempotencyKey string             `bson:"idempotencyKey" json:"idempotencyKey"`
	Origin         Origin             `bson:"origin" json:"origin"`
}

// Typed payloads per action, decoded by the validator chain.

// AddTextPayload carries ADD_INSTRUCTION / ADD_NOTE text.
type AddTextPayload struct {
	Text string `json:"text"`
	Lane Lane   `json:"lane,omitempty"` // defaults to system
}

// LogSetPayload carries a performed set. Reps may be 0 only when Failure
// is set (a failed attempt is still a result). ExerciseID/SetIndex are
// required when the target card does not itself reference a set slot.
type LogSetPayload struct {
	Reps       int     `json:"reps"`
	RIR        int     `json:"rir"`
	LoadKg     float64 `json:"loadKg"`
	Failure    bool    `json:"failure,omitempty"`
	ExerciseID string  `json:"exerciseId,omitempty"`
	SetIndex   *int    `json:"setIndex,omitempty"`
}

// SwapPayload replaces an exercise in a workout-lane card. ForExerciseID
// names the slot being replaced when the target is a whole session plan.
type SwapPayload struct {
	ForExerciseID string `json:"forExerciseId,omitempty"`
	ExerciseID    string `json:"exerciseId"`
	Name          string `json:"name"`
}

// AdjustLoadPayload changes the prescribed load on one planned set.
type AdjustLoadPayload struct {
	ExerciseID string  `json:"exerciseId"`
	SetIndex   int     `json:"setIndex"`
	LoadKg     float64 `json:"loadKg"`
}

// ReorderSetsPayload permutes the sets of one exercise in a session plan.
// Order lists the current set indexes in their new sequence.
type ReorderSetsPayload struct {
	ExerciseID string `json:"exerciseId"`
	Order      []int  `json:"order"`
}

// CommitResult is what a successful mutation returns. It is also the
// response cached by the idempotency guard.
type CommitResult struct {
	NewVersion   int64         `bson:"newVersion" json:"newVersion"`
	Phase        Phase         `bson:"phase" json:"phase"`
	ChangedCards []CardChange  `bson:"changedCards" json:"changedCards"`
	QueueDelta   []QueueChange `bson:"queueDelta" json:"queueDelta"`
}

// CardChange reports one card touched by a commit.
type CardChange struct {
	ID     primitive.ObjectID `bson:"id" json:"id"`
	Status CardStatus         `bson:"status" json:"status"`
}

// QueueChange reports one queue mutation from a commit.
type QueueChange struct {
	Op     string             `bson:"op" json:"op"` // "add" or "remove"
	CardID primitive.ObjectID `bson:"id" json:"id"`
}

const (
	QueueOpAdd    = "add"
	QueueOpRemove = "remove"
)
