package database

import (
	"context"
	"fmt"

	"merchbot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const channelCollectionName = "channels"

// MongoChannelRepository implements ChannelRepository for MongoDB.
type MongoChannelRepository struct {
	collection *mongo.Collection
}

// NewMongoChannelRepository creates a new MongoDB channel repository.
func NewMongoChannelRepository(db *mongo.Database) *MongoChannelRepository {
	return &MongoChannelRepository{
		collection: db.Collection(channelCollectionName),
	}
}

// GetActiveChannel returns the active publication channel. It returns
// ErrChannelNotFound when no channel is marked active.
func (r *MongoChannelRepository) GetActiveChannel(ctx context.Context) (*models.Channel, error) {
	var channel models.Channel
	err := r.collection.FindOne(ctx, bson.M{"is_active": true}).Decode(&channel)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("failed to find active channel: %w", err)
	}
	return &channel, nil
}
