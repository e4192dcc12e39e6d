package database

import (
	"context"
	"fmt"

	"merchbot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const scheduleSlotCollectionName = "schedule_slots"

// MongoScheduleSlotRepository implements ScheduleSlotRepository for MongoDB.
type MongoScheduleSlotRepository struct {
	collection *mongo.Collection
}

// NewMongoScheduleSlotRepository creates a new MongoDB schedule slot repository.
func NewMongoScheduleSlotRepository(db *mongo.Database) *MongoScheduleSlotRepository {
	return &MongoScheduleSlotRepository{
		collection: db.Collection(scheduleSlotCollectionName),
	}
}

// GetActiveSlots returns active slots sorted by time_str.
func (r *MongoScheduleSlotRepository) GetActiveSlots(ctx context.Context) ([]models.ScheduleSlot, error) {
	findOptions := options.Find()
	findOptions.SetSort(bson.D{{Key: "time_str", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"is_active": true}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to find active schedule slots: %w", err)
	}
	defer cursor.Close(ctx)

	var slots []models.ScheduleSlot
	if err = cursor.All(ctx, &slots); err != nil {
		return nil, fmt.Errorf("failed to decode schedule slots: %w", err)
	}
	return slots, nil
}
