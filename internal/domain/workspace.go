package domain

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Phase is the workspace lifecycle state the reducer transitions between.
type Phase string

const (
	PhasePlanning Phase = "planning"
	PhaseActive   Phase = "active"
	PhasePaused   Phase = "paused"
	PhaseAnalysis Phase = "analysis"
)

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhasePlanning, PhaseActive, PhasePaused, PhaseAnalysis:
		return true
	}
	return false
}

// Lane is a logical channel within a workspace. Cards and queue entries
// always belong to exactly one lane.
type Lane string

const (
	LaneWorkout  Lane = "workout"
	LaneAnalysis Lane = "analysis"
	LaneSystem   Lane = "system"
)

// Valid reports whether l is one of the known lanes.
func (l Lane) Valid() bool {
	switch l {
	case LaneWorkout, LaneAnalysis, LaneSystem:
		return true
	}
	return false
}

// Origin identifies who caused a mutation or proposed a card.
type Origin string

const (
	OriginUser   Origin = "user"
	OriginAgent  Origin = "agent"
	OriginSystem Origin = "system"
)

// Valid reports whether o is one of the known origins.
func (o Origin) Valid() bool {
	switch o {
	case OriginUser, OriginAgent, OriginSystem:
		return true
	}
	return false
}

// Workspace is the root aggregate for one (owner, purpose) pair. Version is
// the optimistic-concurrency token: it increases by exactly 1 per committed
// transaction and is never reused.
type Workspace struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID   primitive.ObjectID `bson:"ownerId" json:"ownerId"`
	Purpose   string             `bson:"purpose" json:"purpose"` // e.g., "strength-block-2026"
	Phase     Phase              `bson:"phase" json:"phase"`
	Version   int64              `bson:"version" json:"version"`
	Lanes     []Lane             `bson:"lanes" json:"lanes"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// NewWorkspace builds a fresh workspace in the planning phase at version 0
// with the default lane set.
func NewWorkspace(ownerID primitive.ObjectID, purpose string) *Workspace {
	now := time.Now().UTC()
	return &Workspace{
		OwnerID:   ownerID,
		Purpose:   purpose,
		Phase:     PhasePlanning,
		Version:   0,
		Lanes:     []Lane{LaneWorkout, LaneAnalysis, LaneSystem},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CorrelationID derives the audit correlation identifier for a commit.
// It is unique per (workspace, version) because versions are never reused.
func CorrelationID(workspaceID primitive.ObjectID, version int64) string {
	return fmt.Sprintf("%s:%d", workspaceID.Hex(), version)
}
