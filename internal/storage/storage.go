package storage

import (
	"context"
)

// Content type used for archived event batches.
const ArchiveContentType = "application/json"

// ArchiveSink defines the interface for writing immutable archive objects.
// The event archiver copies old events out of the database into the sink;
// nothing in the system ever reads them back programmatically.
type ArchiveSink interface {
	// Put writes one object under the given key, overwriting any previous
	// object with the same key. Archive batches use deterministic keys so a
	// re-run of the same archive pass is idempotent.
	Put(ctx context.Context, objectKey string, contentType string, data []byte) error
}
