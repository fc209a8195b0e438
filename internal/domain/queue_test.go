package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func entry(priority int, insertedAt time.Time) QueueEntry {
	return QueueEntry{
		ID:         primitive.NewObjectID(),
		CardID:     primitive.NewObjectID(),
		Priority:   priority,
		InsertedAt: insertedAt,
	}
}

func TestSortForSurfacing(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	low := entry(1, base)
	highOld := entry(9, base)
	highNew := entry(9, base.Add(time.Minute))
	mid := entry(5, base)

	entries := []QueueEntry{low, highNew, mid, highOld}
	SortForSurfacing(entries)

	assert.Equal(t, highOld.CardID, entries[0].CardID, "highest priority, oldest first")
	assert.Equal(t, highNew.CardID, entries[1].CardID)
	assert.Equal(t, mid.CardID, entries[2].CardID)
	assert.Equal(t, low.CardID, entries[3].CardID)
}

func TestSelectEvictionsUnderCap(t *testing.T) {
	base := time.Now().UTC()
	entries := make([]QueueEntry, 0, QueueCap)
	for i := 0; i < QueueCap; i++ {
		entries = append(entries, entry(i, base))
	}
	assert.Nil(t, SelectEvictions(entries, QueueCap))
}

func TestSelectEvictionsPicksLowestPriorityOldestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entries := make([]QueueEntry, 0, 25)
	for i := 1; i <= 25; i++ {
		entries = append(entries, entry(i, base))
	}
	// Two entries share the lowest priority; the older one must go first.
	older := entry(1, base.Add(-time.Hour))
	entries = append(entries, older)

	victims := SelectEvictions(entries, QueueCap)
	require.Len(t, victims, 6)

	assert.Equal(t, older.CardID, victims[0].CardID, "oldest within the lowest priority evicts first")
	for _, v := range victims {
		assert.LessOrEqual(t, v.Priority, 5, "only low-priority entries are evicted")
	}
}

func TestSelectEvictionsDoesNotMutateInput(t *testing.T) {
	base := time.Now().UTC()
	entries := []QueueEntry{entry(3, base), entry(1, base), entry(2, base)}
	snapshot := make([]QueueEntry, len(entries))
	copy(snapshot, entries)

	SelectEvictions(entries, 1)
	assert.Equal(t, snapshot, entries)
}
