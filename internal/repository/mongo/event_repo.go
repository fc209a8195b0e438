package mongo

import (
	"context"
	"errors"
	"time"

	"alcyxob/fitness-workspace/internal/domain"
	"alcyxob/fitness-workspace/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const eventCollectionName = "events"

// mongoEventRepository implements repository.EventRepository. This is an
// append-only log: there are no update or delete methods on purpose.
type mongoEventRepository struct {
	collection *mongo.Collection
}

// NewMongoEventRepository creates a new Event repository.
func NewMongoEventRepository(db *mongo.Database) repository.EventRepository {
	return &mongoEventRepository{
		collection: db.Collection(eventCollectionName),
	}
}

// Append stores one event. The unique (workspaceId, version) index makes a
// duplicate commit attempt fail loudly instead of corrupting the log.
func (r *mongoEventRepository) Append(ctx context.Context, event *domain.Event) error {
	if event.WorkspaceID == primitive.NilObjectID || event.Type == "" {
		return errors.New("event requires workspaceId and type")
	}
	if event.ID == primitive.NilObjectID {
		event.ID = primitive.NewObjectID()
	}
	_, err := r.collection.InsertOne(ctx, event)
	if mongo.IsDuplicateKeyError(err) {
		return repository.ErrDuplicateKey
	}
	return err
}

// GetLatest retrieves the most recent event of a workspace.
func (r *mongoEventRepository) GetLatest(ctx context.Context, workspaceID primitive.ObjectID) (*domain.Event, error) {
	var event domain.Event
	filter := bson.M{"workspaceId": workspaceID}
	findOptions := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})

	err := r.collection.FindOne(ctx, filter, findOptions).Decode(&event)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &event, nil
}

// GetFromVersion retrieves events with version > fromVersion in ascending
// version order, for replay.
func (r *mongoEventRepository) GetFromVersion(ctx context.Context, workspaceID primitive.ObjectID, fromVersion int64) ([]domain.Event, error) {
	var events []domain.Event
	filter := bson.M{
		"workspaceId": workspaceID,
		"version":     bson.M{"$gt": fromVersion},
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "version", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// GetOlderThan retrieves a workspace's events created before the cutoff,
// in version order, for archival.
func (r *mongoEventRepository) GetOlderThan(ctx context.Context, workspaceID primitive.ObjectID, cutoff time.Time) ([]domain.Event, error) {
	var events []domain.Event
	filter := bson.M{
		"workspaceId": workspaceID,
		"createdAt":   bson.M{"$lt": cutoff},
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "version", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// ListWorkspaceIDs names every workspace present in the log.
func (r *mongoEventRepository) ListWorkspaceIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	raw, err := r.collection.Distinct(ctx, "workspaceId", bson.M{})
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(primitive.ObjectID); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// EnsureEventIndexes creates necessary indexes. Call during startup.
func EnsureEventIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// Replay order and the no-two-commits-per-version guarantee.
			Keys:    bson.D{{Key: "workspaceId", Value: 1}, {Key: "version", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// Archiver cutoff scans.
			Keys:    bson.D{{Key: "createdAt", Value: 1}},
			Options: options.Index(),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
