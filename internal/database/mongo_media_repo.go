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

const mediaCollectionName = "media_items"

// MongoMediaRepository implements MediaRepository for MongoDB.
type MongoMediaRepository struct {
	collection *mongo.Collection
}

// NewMongoMediaRepository creates a new MongoDB media repository.
func NewMongoMediaRepository(db *mongo.Database) *MongoMediaRepository {
	return &MongoMediaRepository{
		collection: db.Collection(mediaCollectionName),
	}
}

// AddMediaItem appends a media item to a listing.
func (r *MongoMediaRepository) AddMediaItem(ctx context.Context, item *models.MediaItem) error {
	item.ID = primitive.NewObjectID()
	item.CreatedAt = time.Now()

	if _, err := r.collection.InsertOne(ctx, item); err != nil {
		return fmt.Errorf("failed to insert media item: %w", err)
	}
	return nil
}

// GetListingMedia returns a listing's media items ordered by position.
func (r *MongoMediaRepository) GetListingMedia(ctx context.Context, listingID primitive.ObjectID) ([]models.MediaItem, error) {
	findOptions := options.Find()
	findOptions.SetSort(bson.D{{Key: "ordering", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"listing_id": listingID}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to find media for listing %s: %w", listingID.Hex(), err)
	}
	defer cursor.Close(ctx)

	var items []models.MediaItem
	if err = cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode media for listing %s: %w", listingID.Hex(), err)
	}
	return items, nil
}

// CountListingMedia returns the number of media items attached to a listing.
func (r *MongoMediaRepository) CountListingMedia(ctx context.Context, listingID primitive.ObjectID) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"listing_id": listingID})
	if err != nil {
		return 0, fmt.Errorf("failed to count media for listing %s: %w", listingID.Hex(), err)
	}
	return count, nil
}

// DeleteListingMedia removes all media items of a listing.
func (r *MongoMediaRepository) DeleteListingMedia(ctx context.Context, listingID primitive.ObjectID) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{"listing_id": listingID}); err != nil {
		return fmt.Errorf("failed to delete media for listing %s: %w", listingID.Hex(), err)
	}
	return nil
}
