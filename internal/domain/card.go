package domain

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CardType is the discriminated tag selecting a content schema.
type CardType string

const (
	CardTypeSessionPlan   CardType = "session_plan"
	CardTypeInstruction   CardType = "instruction"
	CardTypeNote          CardType = "note"
	CardTypeSetResult     CardType = "set_result"
	CardTypeAnalysis      CardType = "analysis_summary"
	CardTypeVisualization CardType = "visualization"
)

// CardStatus is the card lifecycle state. Rejected, expired and completed
// are terminal; completed is reachable only through LOG_SET.
type CardStatus string

const (
	StatusProposed  CardStatus = "proposed"
	StatusActive    CardStatus = "active"
	StatusAccepted  CardStatus = "accepted"
	StatusRejected  CardStatus = "rejected"
	StatusExpired   CardStatus = "expired"
	StatusCompleted CardStatus = "completed"
)

// Terminal reports whether s is a terminal status.
func (s CardStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusExpired, StatusCompleted:
		return true
	}
	return false
}

// CardRefs carries optional cross-references on a card. TopicKey groups
// cards for replace-on-accept; GroupID groups proposals for ACCEPT_ALL /
// REJECT_ALL; (ExerciseID, SetIndex) identifies the planned set a card is
// about, at most one non-terminal card may hold a given pair.
type CardRefs struct {
	ExerciseID string `bson:"exerciseId,omitempty" json:"exerciseId,omitempty"`
	SetIndex   *int   `bson:"setIndex,omitempty" json:"setIndex,omitempty"` // pointer: index 0 is meaningful
	TopicKey   string `bson:"topicKey,omitempty" json:"topicKey,omitempty"`
	GroupID    string `bson:"groupId,omitempty" json:"groupId,omitempty"`
	TargetID   string `bson:"targetId,omitempty" json:"targetId,omitempty"` // card this one was derived from (e.g. set_result -> plan)
}

// Card is a typed, otherwise-immutable content unit owned by exactly one
// workspace. Content is the raw tagged-variant payload; DecodeContent turns
// it into the typed struct registered for Type.
type Card struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	WorkspaceID primitive.ObjectID `bson:"workspaceId" json:"workspaceId"`
	Type        CardType           `bson:"type" json:"type"`
	Status      CardStatus         `bson:"status" json:"status"`
	Lane        Lane               `bson:"lane" json:"lane"`
	Content     map[string]any     `bson:"content" json:"content"`
	Refs        *CardRefs          `bson:"refs,omitempty" json:"refs,omitempty"`
	Origin      Origin             `bson:"origin" json:"origin"`
	ExpiresAt   *time.Time         `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"` // proposal TTL deadline
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// SetPairKey returns the "(exerciseId, setIndex)" uniqueness key for the
// card, and whether the card carries one.
func (c *Card) SetPairKey() (string, bool) {
	if c.Refs == nil || c.Refs.ExerciseID == "" || c.Refs.SetIndex == nil {
		return "", false
	}
	return fmt.Sprintf("%s#%d", c.Refs.ExerciseID, *c.Refs.SetIndex), true
}

// TopicKey returns the replacement-group key, if any.
func (c *Card) TopicKey() string {
	if c.Refs == nil {
		return ""
	}
	return c.Refs.TopicKey
}

// GroupID returns the bulk-action group key, if any.
func (c *Card) GroupID() string {
	if c.Refs == nil {
		return ""
	}
	return c.Refs.GroupID
}

// ExpiredBy reports whether the card is a proposal whose TTL deadline has
// passed at the given instant.
func (c *Card) ExpiredBy(now time.Time) bool {
	return c.Status == StatusProposed && c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}
