package database

import (
	"context"
	"fmt"

	"merchbot/internal/database/models"

	"go.mongodb.org/mongo-driver/mongo"
)

const postLogCollectionName = "post_logs"

// MongoPostLogger implements PostLogger using MongoDB.
type MongoPostLogger struct {
	collection *mongo.Collection
}

// NewMongoPostLogger creates and returns a new MongoPostLogger instance.
func NewMongoPostLogger(db *mongo.Database) *MongoPostLogger {
	return &MongoPostLogger{collection: db.Collection(postLogCollectionName)}
}

// LogPublishedPost writes a log entry for a successfully published listing.
func (m *MongoPostLogger) LogPublishedPost(ctx context.Context, logEntry models.PostLog) error {
	if _, err := m.collection.InsertOne(ctx, logEntry); err != nil {
		return fmt.Errorf("failed to insert post log: %w", err)
	}
	return nil
}
