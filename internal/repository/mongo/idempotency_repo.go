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

const idempotencyCollectionName = "idempotency_records"

// mongoIdempotencyRepository implements repository.IdempotencyRepository
type mongoIdempotencyRepository struct {
	collection *mongo.Collection
}

// NewMongoIdempotencyRepository creates a new IdempotencyRecord repository.
func NewMongoIdempotencyRepository(db *mongo.Database) repository.IdempotencyRepository {
	return &mongoIdempotencyRepository{
		collection: db.Collection(idempotencyCollectionName),
	}
}

// Reserve inserts a pending record. The unique (scopeKey, key) index turns
// this insert into the reservation: exactly one concurrent duplicate
// succeeds, the rest get ErrDuplicateKey and must read the winner's record.
func (r *mongoIdempotencyRepository) Reserve(ctx context.Context, record *domain.IdempotencyRecord) error {
	if record.ScopeKey == "" || record.Key == "" {
		return errors.New("idempotency record requires scopeKey and key")
	}
	record.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	record.CreatedAt = now
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = now.Add(domain.DefaultIdempotencyTTL)
	}
	if record.Status == "" {
		record.Status = domain.IdempotencyPending
	}

	_, err := r.collection.InsertOne(ctx, record)
	if mongo.IsDuplicateKeyError(err) {
		return repository.ErrDuplicateKey
	}
	return err
}

// Get retrieves the record for (scopeKey, key).
func (r *mongoIdempotencyRepository) Get(ctx context.Context, scopeKey, key string) (*domain.IdempotencyRecord, error) {
	var record domain.IdempotencyRecord
	filter := bson.M{"scopeKey": scopeKey, "key": key}
	err := r.collection.FindOne(ctx, filter).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// Complete stores the response on the reservation, making it replayable.
func (r *mongoIdempotencyRepository) Complete(ctx context.Context, scopeKey, key string, response *domain.CommitResult) error {
	filter := bson.M{"scopeKey": scopeKey, "key": key}
	update := bson.M{
		"$set": bson.M{
			"status":   domain.IdempotencyCompleted,
			"response": response,
		},
	}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Release deletes a pending reservation so a retry can run. A completed
// record stays put: its cached response is the contract.
func (r *mongoIdempotencyRepository) Release(ctx context.Context, scopeKey, key string) error {
	filter := bson.M{
		"scopeKey": scopeKey,
		"key":      key,
		"status":   domain.IdempotencyPending,
	}
	_, err := r.collection.DeleteOne(ctx, filter)
	return err
}

// EnsureIdempotencyIndexes creates necessary indexes. Call during startup.
func EnsureIdempotencyIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// The reservation lock.
			Keys:    bson.D{{Key: "scopeKey", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// Server-side TTL cleanup once the replay window closes.
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
