package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"alcyxob/fitness-workspace/internal/repository"
	"alcyxob/fitness-workspace/internal/storage"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ArchiveService copies old events out of the database into an object
// store. Events are append-only and never deleted or rewritten here; the
// archive is an additional durable copy, so a re-run with the same cutoff
// just overwrites identical objects.
type ArchiveService interface {
	ArchiveWorkspace(ctx context.Context, workspaceID primitive.ObjectID, cutoff time.Time) (int, error)
	ArchiveAll(ctx context.Context, retention time.Duration) (int, error)
	Run(ctx context.Context, interval time.Duration, retention time.Duration)
}

type archiveService struct {
	eventRepo repository.EventRepository
	sink      storage.ArchiveSink
	now       func() time.Time
}

// NewArchiveService creates a new instance of archiveService.
func NewArchiveService(eventRepo repository.EventRepository, sink storage.ArchiveSink) ArchiveService {
	return &archiveService{
		eventRepo: eventRepo,
		sink:      sink,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ArchiveWorkspace writes every event older than cutoff for one workspace
// as a single JSON batch. The object key is derived from the version range
// so repeated passes are idempotent.
func (s *archiveService) ArchiveWorkspace(ctx context.Context, workspaceID primitive.ObjectID, cutoff time.Time) (int, error) {
	events, err := s.eventRepo.GetOlderThan(ctx, workspaceID, cutoff)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	data, err := json.Marshal(events)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event batch: %w", err)
	}

	key := fmt.Sprintf("events/%s/v%d-v%d.json",
		workspaceID.Hex(), events[0].Version, events[len(events)-1].Version)
	if err := s.sink.Put(ctx, key, storage.ArchiveContentType, data); err != nil {
		return 0, err
	}
	return len(events), nil
}

// ArchiveAll runs one archive pass over every workspace with events.
func (s *archiveService) ArchiveAll(ctx context.Context, retention time.Duration) (int, error) {
	ids, err := s.eventRepo.ListWorkspaceIDs(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-retention)
	total := 0
	for _, id := range ids {
		n, err := s.ArchiveWorkspace(ctx, id, cutoff)
		if err != nil {
			// One bad workspace must not starve the rest of the pass.
			log.Printf("ERROR: failed to archive events for workspace %s: %v", id.Hex(), err)
			continue
		}
		total += n
	}
	return total, nil
}

// Run drives periodic archive passes until the context is cancelled.
func (s *archiveService) Run(ctx context.Context, interval time.Duration, retention time.Duration) {
	if interval <= 0 || retention <= 0 {
		log.Printf("WARN: event archiver disabled, interval or retention not configured")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.ArchiveAll(ctx, retention); err != nil {
				log.Printf("ERROR: event archive pass failed: %v", err)
			} else if n > 0 {
				log.Printf("archived %d events", n)
			}
		}
	}
}
