package database

import (
	"context"
	"fmt"
	"time"

	"merchbot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	reviewCollectionName = "reviews"
	scoreCollectionName  = "listing_scores"
)

// MongoReviewRepository implements ReviewRepository for MongoDB.
type MongoReviewRepository struct {
	collection *mongo.Collection
}

// NewMongoReviewRepository creates a new MongoDB review repository.
func NewMongoReviewRepository(db *mongo.Database) *MongoReviewRepository {
	return &MongoReviewRepository{
		collection: db.Collection(reviewCollectionName),
	}
}

// ListingsWithConfirmedReviews returns the distinct listing IDs that have
// at least one confirmed review.
func (r *MongoReviewRepository) ListingsWithConfirmedReviews(ctx context.Context) ([]primitive.ObjectID, error) {
	values, err := r.collection.Distinct(ctx, "listing_id", bson.M{"confirmed": true})
	if err != nil {
		return nil, fmt.Errorf("failed to list reviewed listings: %w", err)
	}

	ids := make([]primitive.ObjectID, 0, len(values))
	for _, v := range values {
		if id, ok := v.(primitive.ObjectID); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// GetConfirmedReviews returns a listing's confirmed reviews.
func (r *MongoReviewRepository) GetConfirmedReviews(ctx context.Context, listingID primitive.ObjectID) ([]models.Review, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"listing_id": listingID, "confirmed": true})
	if err != nil {
		return nil, fmt.Errorf("failed to find reviews for listing %s: %w", listingID.Hex(), err)
	}
	defer cursor.Close(ctx)

	var reviews []models.Review
	if err = cursor.All(ctx, &reviews); err != nil {
		return nil, fmt.Errorf("failed to decode reviews for listing %s: %w", listingID.Hex(), err)
	}
	return reviews, nil
}

// MongoScoreRepository implements ScoreRepository for MongoDB.
type MongoScoreRepository struct {
	collection *mongo.Collection
}

// NewMongoScoreRepository creates a new MongoDB score repository.
func NewMongoScoreRepository(db *mongo.Database) *MongoScoreRepository {
	return &MongoScoreRepository{
		collection: db.Collection(scoreCollectionName),
	}
}

// UpsertScore writes the recomputed score for a listing.
func (r *MongoScoreRepository) UpsertScore(ctx context.Context, score *models.ListingScore) error {
	score.UpdatedAt = time.Now()

	filter := bson.M{"_id": score.ListingID}
	update := bson.M{"$set": score}
	opts := options.Update().SetUpsert(true)

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert score for listing %s: %w", score.ListingID.Hex(), err)
	}
	return nil
}
