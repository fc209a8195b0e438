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

const cardCollectionName = "cards"

// liveStatuses are the statuses the set-pair uniqueness invariant covers.
var liveStatuses = []domain.CardStatus{domain.StatusProposed, domain.StatusActive}

// mongoCardRepository implements repository.CardRepository
type mongoCardRepository struct {
	collection *mongo.Collection
}

// NewMongoCardRepository creates a new Card repository.
func NewMongoCardRepository(db *mongo.Database) repository.CardRepository {
	return &mongoCardRepository{
		collection: db.Collection(cardCollectionName),
	}
}

// Insert stores one card. The reducer assigns IDs, so unlike most Create
// methods this one respects a preset _id.
func (r *mongoCardRepository) Insert(ctx context.Context, card *domain.Card) error {
	if card.WorkspaceID == primitive.NilObjectID || card.Type == "" {
		return errors.New("card requires workspaceId and type")
	}
	if card.ID == primitive.NilObjectID {
		card.ID = primitive.NewObjectID()
	}
	_, err := r.collection.InsertOne(ctx, card)
	if mongo.IsDuplicateKeyError(err) {
		return repository.ErrDuplicateKey
	}
	return err
}

// InsertMany stores a batch of cards (the Propose path).
func (r *mongoCardRepository) InsertMany(ctx context.Context, cards []domain.Card) error {
	if len(cards) == 0 {
		return nil
	}
	docs := make([]interface{}, len(cards))
	for i := range cards {
		if cards[i].ID == primitive.NilObjectID {
			cards[i].ID = primitive.NewObjectID()
		}
		docs[i] = cards[i]
	}
	_, err := r.collection.InsertMany(ctx, docs)
	return err
}

// GetByID retrieves a single card by its ID.
func (r *mongoCardRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Card, error) {
	var card domain.Card
	filter := bson.M{"_id": id}
	err := r.collection.FindOne(ctx, filter).Decode(&card)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &card, nil
}

// GetByWorkspace retrieves all cards of a workspace in stable id order, so
// the reducer sees a deterministic card sequence.
func (r *mongoCardRepository) GetByWorkspace(ctx context.Context, workspaceID primitive.ObjectID) ([]domain.Card, error) {
	var cards []domain.Card
	filter := bson.M{"workspaceId": workspaceID}
	findOptions := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// Upsert replaces the card document, inserting it when absent.
func (r *mongoCardRepository) Upsert(ctx context.Context, card *domain.Card) error {
	if card.ID == primitive.NilObjectID {
		return errors.New("card ID is required for upsert")
	}
	filter := bson.M{"_id": card.ID}
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, filter, card, opts)
	return err
}

// Delete removes a card. Only the undo path deletes cards (reverting a
// creation); normal lifecycle ends in a terminal status instead.
func (r *mongoCardRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetLiveBySetPair returns proposed/active cards holding the given
// (exerciseId, setIndex) pair.
func (r *mongoCardRepository) GetLiveBySetPair(ctx context.Context, workspaceID primitive.ObjectID, exerciseID string, setIndex int) ([]domain.Card, error) {
	var cards []domain.Card
	filter := bson.M{
		"workspaceId":     workspaceID,
		"status":          bson.M{"$in": liveStatuses},
		"refs.exerciseId": exerciseID,
		"refs.setIndex":   setIndex,
	}
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// GetExpiredProposals returns proposed cards whose TTL deadline passed.
func (r *mongoCardRepository) GetExpiredProposals(ctx context.Context, workspaceID primitive.ObjectID, now time.Time) ([]domain.Card, error) {
	var cards []domain.Card
	filter := bson.M{
		"workspaceId": workspaceID,
		"status":      domain.StatusProposed,
		"expiresAt":   bson.M{"$lte": now},
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// ListWorkspacesWithExpired names the workspaces holding at least one
// expired proposal, so the sweeper only visits where there is work.
func (r *mongoCardRepository) ListWorkspacesWithExpired(ctx context.Context, now time.Time) ([]primitive.ObjectID, error) {
	filter := bson.M{
		"status":    domain.StatusProposed,
		"expiresAt": bson.M{"$lte": now},
	}
	raw, err := r.collection.Distinct(ctx, "workspaceId", filter)
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

// EnsureCardIndexes creates necessary indexes. Call during startup.
func EnsureCardIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "workspaceId", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index(),
		},
		{
			// Sweeper scan: proposed cards past their deadline.
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "expiresAt", Value: 1}},
			Options: options.Index(),
		},
		{
			// Set-pair lookups for the uniqueness pre-check.
			Keys:    bson.D{{Key: "workspaceId", Value: 1}, {Key: "refs.exerciseId", Value: 1}, {Key: "refs.setIndex", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
