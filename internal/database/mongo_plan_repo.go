package database

import (
	"context"
	"fmt"

	"merchbot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const planCollectionName = "plans"

// MongoPlanRepository implements PlanRepository for MongoDB.
type MongoPlanRepository struct {
	collection *mongo.Collection
}

// NewMongoPlanRepository creates a new MongoDB plan repository.
func NewMongoPlanRepository(db *mongo.Database) *MongoPlanRepository {
	return &MongoPlanRepository{
		collection: db.Collection(planCollectionName),
	}
}

// GetLatestPlan returns the most recently purchased plan for a listing,
// or nil when the listing has never had a plan.
func (r *MongoPlanRepository) GetLatestPlan(ctx context.Context, listingID primitive.ObjectID) (*models.Plan, error) {
	findOptions := options.FindOne()
	findOptions.SetSort(bson.D{{Key: "purchased_at", Value: -1}})

	var plan models.Plan
	err := r.collection.FindOne(ctx, bson.M{"listing_id": listingID}, findOptions).Decode(&plan)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find plan for listing %s: %w", listingID.Hex(), err)
	}
	return &plan, nil
}
