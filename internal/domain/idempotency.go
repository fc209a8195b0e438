package domain

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultIdempotencyTTL is how long a cached response stays replayable.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStatus tracks a reservation through its lifecycle.
type IdempotencyStatus string

const (
	IdempotencyPending   IdempotencyStatus = "pending"   // reserved, mutation in flight
	IdempotencyCompleted IdempotencyStatus = "completed" // response persisted
)

// IdempotencyRecord maps (scopeKey, key) to the originally produced
// response. A unique index on the pair makes the insert the reservation:
// exactly one concurrent submission wins, the rest read the winner's record.
type IdempotencyRecord struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ScopeKey  string             `bson:"scopeKey" json:"scopeKey"`
	Key       string             `bson:"key" json:"key"`
	Status    IdempotencyStatus  `bson:"status" json:"status"`
	Response  *CommitResult      `bson:"response,omitempty" json:"response,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	ExpiresAt time.Time          `bson:"expiresAt" json:"expiresAt"` // TTL index target
}

// WorkspaceScope is the scope key for reducer actions.
func WorkspaceScope(workspaceID primitive.ObjectID) string {
	return "workspace:" + workspaceID.Hex()
}

// ToolScope is the coarser (user, tool) scope for non-reducer mutations.
func ToolScope(userID primitive.ObjectID, tool string) string {
	return fmt.Sprintf("user:%s:%s", userID.Hex(), tool)
}
