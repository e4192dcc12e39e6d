package database

import (
	"context"
	"fmt"

	"merchbot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const leaseCollectionName = "leases"

// MongoLeaseRepository implements LeaseRepository for MongoDB.
//
// The lease row uses a fixed _id, so the unique index on _id doubles as
// the mutual-exclusion primitive: concurrent TryInsert calls race on the
// duplicate-key error and exactly one wins.
type MongoLeaseRepository struct {
	collection *mongo.Collection
}

// NewMongoLeaseRepository creates a new MongoDB lease repository.
func NewMongoLeaseRepository(db *mongo.Database) *MongoLeaseRepository {
	return &MongoLeaseRepository{
		collection: db.Collection(leaseCollectionName),
	}
}

// Get returns the current lease row, or nil when none exists.
func (r *MongoLeaseRepository) Get(ctx context.Context, key string) (*models.Lease, error) {
	var lease models.Lease
	err := r.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&lease)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read lease %q: %w", key, err)
	}
	return &lease, nil
}

// TryInsert inserts the lease row. A duplicate key means another owner
// got there first and maps to ErrLeaseHeld.
func (r *MongoLeaseRepository) TryInsert(ctx context.Context, lease *models.Lease) error {
	_, err := r.collection.InsertOne(ctx, lease)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrLeaseHeld
		}
		return fmt.Errorf("failed to insert lease %q: %w", lease.Key, err)
	}
	return nil
}

// Replace overwrites the lease row only while it still belongs to
// previousOwner. A changed owner maps to ErrLeaseHeld.
func (r *MongoLeaseRepository) Replace(ctx context.Context, lease *models.Lease, previousOwner string) error {
	filter := bson.M{"_id": lease.Key, "owner": previousOwner}
	result, err := r.collection.ReplaceOne(ctx, filter, lease)
	if err != nil {
		return fmt.Errorf("failed to replace lease %q: %w", lease.Key, err)
	}
	if result.MatchedCount == 0 {
		return ErrLeaseHeld
	}
	return nil
}

// UpdateExpiry extends the lease held by owner.
func (r *MongoLeaseRepository) UpdateExpiry(ctx context.Context, key, owner string, expiresAt int64) error {
	filter := bson.M{"_id": key, "owner": owner}
	update := bson.M{"$set": bson.M{"expires_at": expiresAt}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to renew lease %q: %w", key, err)
	}
	if result.MatchedCount == 0 {
		return ErrLeaseHeld
	}
	return nil
}

// Delete removes the lease row regardless of who owns it.
func (r *MongoLeaseRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("failed to delete lease %q: %w", key, err)
	}
	return nil
}
