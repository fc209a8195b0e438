package domain

import (
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// QueueCap is the maximum number of surface-next entries a workspace may
// hold once trimming has run. The cap is enforced best-effort after each
// commit, never inside it, so the live count may transiently exceed it.
const QueueCap = 20

// QueueEntry is a priority-ordered reference into the "surface next" list.
type QueueEntry struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	WorkspaceID primitive.ObjectID `bson:"workspaceId" json:"workspaceId"`
	CardID      primitive.ObjectID `bson:"cardId" json:"cardId"`
	Lane        Lane               `bson:"lane" json:"lane"`
	Priority    int                `bson:"priority" json:"priority"` // higher surfaces first
	InsertedAt  time.Time          `bson:"insertedAt" json:"insertedAt"`
}

// SortForSurfacing orders entries the way they are presented: priority
// descending, then insertion time ascending, then card id for a stable
// total order.
func SortForSurfacing(entries []QueueEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		if !entries[i].InsertedAt.Equal(entries[j].InsertedAt) {
			return entries[i].InsertedAt.Before(entries[j].InsertedAt)
		}
		return entries[i].CardID.Hex() < entries[j].CardID.Hex()
	})
}

// SelectEvictions returns the entries that must be removed to bring the
// list down to cap. Victims are chosen lowest priority first, oldest first
// within a priority, per the eviction policy.
func SelectEvictions(entries []QueueEntry, cap int) []QueueEntry {
	if len(entries) <= cap {
		return nil
	}
	victims := make([]QueueEntry, len(entries))
	copy(victims, entries)
	sort.Slice(victims, func(i, j int) bool {
		if victims[i].Priority != victims[j].Priority {
			return victims[i].Priority < victims[j].Priority
		}
		if !victims[i].InsertedAt.Equal(victims[j].InsertedAt) {
			return victims[i].InsertedAt.Before(victims[j].InsertedAt)
		}
		return victims[i].CardID.Hex() < victims[j].CardID.Hex()
	})
	return victims[:len(entries)-cap]
}
