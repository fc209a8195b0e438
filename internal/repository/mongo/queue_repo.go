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

const queueCollectionName = "queue_entries"

// mongoQueueRepository implements repository.QueueRepository
type mongoQueueRepository struct {
	collection *mongo.Collection
}

// NewMongoQueueRepository creates a new QueueEntry repository.
func NewMongoQueueRepository(db *mongo.Database) repository.QueueRepository {
	return &mongoQueueRepository{
		collection: db.Collection(queueCollectionName),
	}
}

// Insert stores one queue entry.
func (r *mongoQueueRepository) Insert(ctx context.Context, entry *domain.QueueEntry) (primitive.ObjectID, error) {
	if entry.WorkspaceID == primitive.NilObjectID || entry.CardID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("queue entry requires workspaceId and cardId")
	}
	if entry.ID == primitive.NilObjectID {
		entry.ID = primitive.NewObjectID()
	}
	if entry.InsertedAt.IsZero() {
		entry.InsertedAt = time.Now().UTC()
	}

	result, err := r.collection.InsertOne(ctx, entry)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrDuplicateKey
		}
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted queue entry ID")
	}
	return insertedID, nil
}

// GetByWorkspace retrieves all entries of a workspace in surfacing order.
func (r *mongoQueueRepository) GetByWorkspace(ctx context.Context, workspaceID primitive.ObjectID) ([]domain.QueueEntry, error) {
	var entries []domain.QueueEntry
	filter := bson.M{"workspaceId": workspaceID}
	findOptions := options.Find().SetSort(bson.D{
		{Key: "priority", Value: -1},
		{Key: "insertedAt", Value: 1},
	})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteByCardIDs removes the entries referencing the given cards.
func (r *mongoQueueRepository) DeleteByCardIDs(ctx context.Context, workspaceID primitive.ObjectID, cardIDs []primitive.ObjectID) error {
	if len(cardIDs) == 0 {
		return nil
	}
	filter := bson.M{
		"workspaceId": workspaceID,
		"cardId":      bson.M{"$in": cardIDs},
	}
	_, err := r.collection.DeleteMany(ctx, filter)
	return err
}

// CountByWorkspace returns the live entry count for cap checks.
func (r *mongoQueueRepository) CountByWorkspace(ctx context.Context, workspaceID primitive.ObjectID) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"workspaceId": workspaceID})
}

// EnsureQueueIndexes creates necessary indexes. Call during startup.
func EnsureQueueIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// Surfacing reads and trim scans.
			Keys:    bson.D{{Key: "workspaceId", Value: 1}, {Key: "priority", Value: -1}, {Key: "insertedAt", Value: 1}},
			Options: options.Index(),
		},
		{
			// One entry per card.
			Keys:    bson.D{{Key: "workspaceId", Value: 1}, {Key: "cardId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
