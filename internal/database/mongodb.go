package database

import (
	"context"
	"fmt"
	"log"

	"merchbot/internal/config"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectDB establishes a connection to the MongoDB database using the provided configuration.
// It returns the MongoDB client, database object, and an error if connection fails.
func ConnectDB(cfg *config.Config) (*mongo.Client, *mongo.Database, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(cfg.MongoDBURI).SetServerAPIOptions(serverAPI)

	client, err := mongo.Connect(context.TODO(), opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Send a ping to confirm a successful connection
	var result bson.M
	if err := client.Database("admin").RunCommand(context.TODO(), bson.D{{Key: "ping", Value: 1}}).Decode(&result); err != nil {
		_ = client.Disconnect(context.TODO())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	log.Println("Successfully connected and pinged MongoDB!")

	db := client.Database(cfg.MongoDBDatabase)

	return client, db, nil
}
