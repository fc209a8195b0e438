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

const workspaceCollectionName = "workspaces"

// mongoWorkspaceRepository implements repository.WorkspaceRepository
type mongoWorkspaceRepository struct {
	collection *mongo.Collection
}

// NewMongoWorkspaceRepository creates a new Workspace repository.
func NewMongoWorkspaceRepository(db *mongo.Database) repository.WorkspaceRepository {
	return &mongoWorkspaceRepository{
		collection: db.Collection(workspaceCollectionName),
	}
}

// Create inserts a new workspace. The (ownerId, purpose) unique index makes
// concurrent find-or-create race losers fail with a duplicate key error.
func (r *mongoWorkspaceRepository) Create(ctx context.Context, ws *domain.Workspace) (primitive.ObjectID, error) {
	if ws.OwnerID == primitive.NilObjectID || ws.Purpose == "" {
		return primitive.NilObjectID, errors.New("workspace requires ownerId and purpose")
	}
	ws.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	ws.CreatedAt = now
	ws.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, ws)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrDuplicateKey
		}
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted workspace ID")
	}
	return insertedID, nil
}

// GetByID retrieves a single workspace by its ID.
func (r *mongoWorkspaceRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Workspace, error) {
	var ws domain.Workspace
	filter := bson.M{"_id": id}
	err := r.collection.FindOne(ctx, filter).Decode(&ws)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &ws, nil
}

// GetByOwnerAndPurpose retrieves the workspace for one (owner, purpose) pair.
func (r *mongoWorkspaceRepository) GetByOwnerAndPurpose(ctx context.Context, ownerID primitive.ObjectID, purpose string) (*domain.Workspace, error) {
	var ws domain.Workspace
	filter := bson.M{"ownerId": ownerID, "purpose": purpose}
	err := r.collection.FindOne(ctx, filter).Decode(&ws)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &ws, nil
}

// ListByOwner retrieves all workspaces owned by one account.
func (r *mongoWorkspaceRepository) ListByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]domain.Workspace, error) {
	var workspaces []domain.Workspace
	filter := bson.M{"ownerId": ownerID}
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &workspaces); err != nil {
		return nil, err
	}
	return workspaces, nil
}

// BumpVersion is the optimistic-concurrency write. The filter matches the
// expected version; zero matches means another commit claimed it first.
func (r *mongoWorkspaceRepository) BumpVersion(ctx context.Context, id primitive.ObjectID, expected int64, phase domain.Phase, now time.Time) error {
	filter := bson.M{"_id": id, "version": expected}
	update := bson.M{
		"$set": bson.M{
			"version":   expected + 1,
			"phase":     phase,
			"updatedAt": now,
		},
	}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrStaleVersion
	}
	return nil
}

// EnsureWorkspaceIndexes creates necessary indexes. Call during startup.
func EnsureWorkspaceIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// One workspace per (owner, purpose); Bootstrap races resolve here.
			Keys:    bson.D{{Key: "ownerId", Value: 1}, {Key: "purpose", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
