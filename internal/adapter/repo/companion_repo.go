package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"companion/internal/domain"
)

const (
	companionsCollection = "companions"
	maxCompanionsPerList = 200
)

// CompanionRepositoryMongo implements domain.CompanionRepository on MongoDB.
type CompanionRepositoryMongo struct {
	coll *mongo.Collection
}

// NewCompanionRepository prepares the companions collection and its indexes.
func NewCompanionRepository(ctx context.Context, db *mongo.Database) (*CompanionRepositoryMongo, error) {
	if db == nil {
		return nil, fmt.Errorf("repo.NewCompanionRepository: nil database")
	}
	r := &CompanionRepositoryMongo{coll: db.Collection(companionsCollection)}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// ensureIndexes backs ListByUser: user_id + created_at(desc).
func (r *CompanionRepositoryMongo) ensureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("user_created_desc"),
	})
	if err != nil {
		return fmt.Errorf("mongo ensure indexes: %w", err)
	}
	return nil
}

// Insert writes a new companion document. Companions are immutable, so a
// second insert with the same id is rejected.
func (r *CompanionRepositoryMongo) Insert(ctx context.Context, c *domain.Companion) error {
	const op = "repo/companions/Insert"

	if c == nil || strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%s: companion id is required", op)
	}
	if _, err := r.coll.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, domain.ErrDuplicateOperation)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Get loads a companion by id.
func (r *CompanionRepositoryMongo) Get(ctx context.Context, id string) (*domain.Companion, error) {
	const op = "repo/companions/Get"

	var c domain.Companion
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &c, nil
}

// ListByUser returns the user's companions, newest first.
func (r *CompanionRepositoryMongo) ListByUser(ctx context.Context, userID string) ([]domain.Companion, error) {
	const op = "repo/companions/ListByUser"

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(maxCompanionsPerList)
	cur, err := r.coll.Find(ctx, bson.D{{Key: "user_id", Value: userID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer cur.Close(ctx)

	out := make([]domain.Companion, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}
	return out, nil
}
