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

const listingCollectionName = "listings"

// MongoListingRepository implements ListingRepository for MongoDB.
type MongoListingRepository struct {
	collection *mongo.Collection
}

// NewMongoListingRepository creates a new MongoDB listing repository.
func NewMongoListingRepository(db *mongo.Database) *MongoListingRepository {
	return &MongoListingRepository{
		collection: db.Collection(listingCollectionName),
	}
}

// CreateListing inserts a new listing in pending_submission status.
func (r *MongoListingRepository) CreateListing(ctx context.Context, listing *models.Listing) error {
	now := time.Now()
	listing.ID = primitive.NewObjectID()
	listing.Status = models.StatusPendingSubmission
	listing.CreatedAt = now
	listing.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, listing); err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	return nil
}

// GetListingByID retrieves a single listing by its MongoDB ObjectID.
// It returns ErrListingNotFound if no listing matches the ID.
func (r *MongoListingRepository) GetListingByID(ctx context.Context, id primitive.ObjectID) (*models.Listing, error) {
	var listing models.Listing
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&listing)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("failed to find listing by ID %s: %w", id.Hex(), err)
	}
	return &listing, nil
}

// FindDraftByOwner returns the owner's most recent listing still in
// pending_submission. It returns ErrListingNotFound when the owner has
// no open draft.
func (r *MongoListingRepository) FindDraftByOwner(ctx context.Context, ownerID int64) (*models.Listing, error) {
	filter := bson.M{"owner_id": ownerID, "status": models.StatusPendingSubmission}
	findOptions := options.FindOne()
	findOptions.SetSort(bson.D{{Key: "created_at", Value: -1}})

	var listing models.Listing
	err := r.collection.FindOne(ctx, filter, findOptions).Decode(&listing)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("failed to find draft for owner %d: %w", ownerID, err)
	}
	return &listing, nil
}

// UpdateStatus sets the status of a listing, touching updated_at.
func (r *MongoListingRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, status string) error {
	update := bson.M{
		"$set": bson.M{
			"status":     status,
			"updated_at": time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update status for listing %s: %w", id.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return ErrListingNotFound
	}
	return nil
}

// MarkPublished records a successful publication in a single update.
func (r *MongoListingRepository) MarkPublished(ctx context.Context, id primitive.ObjectID, publishTime time.Time, expirationTime time.Time, chatID int64, messageIDs []int) error {
	update := bson.M{
		"$set": bson.M{
			"status":                models.StatusPublished,
			"publish_time":          publishTime,
			"expiration_time":       expirationTime,
			"published_chat_id":     chatID,
			"published_message_ids": messageIDs,
			"updated_at":            time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to mark listing %s published: %w", id.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return ErrListingNotFound
	}
	return nil
}

// ResetForRepublish returns an expired listing to the approved queue,
// clearing the fields that belong to the previous publication cycle.
func (r *MongoListingRepository) ResetForRepublish(ctx context.Context, id primitive.ObjectID) error {
	update := bson.M{
		"$set": bson.M{
			"status":     models.StatusApproved,
			"updated_at": time.Now(),
		},
		"$unset": bson.M{
			"publish_time":          "",
			"expiration_time":       "",
			"published_chat_id":     "",
			"published_message_ids": "",
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to reset listing %s for republish: %w", id.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return ErrListingNotFound
	}
	return nil
}

// FindDueForPublication returns approved listings ready to go out:
// publish_time unset (never published, fully eligible) or already in the
// past (carried over from a previous cycle). Unset times sort first.
func (r *MongoListingRepository) FindDueForPublication(ctx context.Context, now time.Time) ([]models.Listing, error) {
	filter := bson.M{
		"status": models.StatusApproved,
		"$or": []bson.M{
			{"publish_time": nil},
			{"publish_time": bson.M{"$lte": now}},
		},
	}

	findOptions := options.Find()
	findOptions.SetSort(bson.D{{Key: "publish_time", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to find due listings: %w", err)
	}
	defer cursor.Close(ctx)

	var listings []models.Listing
	if err = cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode due listings: %w", err)
	}
	return listings, nil
}

// FindExpired returns published listings whose expiration_time has passed.
// Listings without an expiration_time are never returned.
func (r *MongoListingRepository) FindExpired(ctx context.Context, now time.Time) ([]models.Listing, error) {
	filter := bson.M{
		"status":          models.StatusPublished,
		"expiration_time": bson.M{"$ne": nil, "$lte": now},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired listings: %w", err)
	}
	defer cursor.Close(ctx)

	var listings []models.Listing
	if err = cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode expired listings: %w", err)
	}
	return listings, nil
}

// FindStaleApproved counts approved listings that became due before the
// cutoff and are still waiting. Used for the operator staleness alarm.
func (r *MongoListingRepository) FindStaleApproved(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := bson.M{
		"status": models.StatusApproved,
		"$or": []bson.M{
			{"publish_time": nil, "updated_at": bson.M{"$lte": cutoff}},
			{"publish_time": bson.M{"$ne": nil, "$lte": cutoff}},
		},
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count stale approved listings: %w", err)
	}
	return count, nil
}

// FindExpiredBefore returns expired listings whose expiration_time is
// older than the cutoff, candidates for archival.
func (r *MongoListingRepository) FindExpiredBefore(ctx context.Context, cutoff time.Time) ([]models.Listing, error) {
	filter := bson.M{
		"status":          models.StatusExpired,
		"expiration_time": bson.M{"$ne": nil, "$lte": cutoff},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find archivable listings: %w", err)
	}
	defer cursor.Close(ctx)

	var listings []models.Listing
	if err = cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode archivable listings: %w", err)
	}
	return listings, nil
}
