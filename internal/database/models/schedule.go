package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// ScheduleSlot is one daily publication slot. TimeStr is "HH:MM" in the
// worker's local timezone; inactive slots are kept for history but never
// scheduled.
type ScheduleSlot struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	TimeStr  string             `bson:"time_str"`
	IsActive bool               `bson:"is_active"`
}

// Channel is a Telegram channel the worker publishes to. Exactly one
// channel is expected to be active at a time.
type Channel struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	ChatID   int64              `bson:"chat_id"`
	Title    string             `bson:"title,omitempty"`
	IsActive bool               `bson:"is_active"`
}

// Lease is the single-row coordination document for ingestion election.
// The _id is a fixed well-known key so at most one lease ever exists.
type Lease struct {
	Key       string `bson:"_id"`
	Owner     string `bson:"owner"` // "host:pid"
	ExpiresAt int64  `bson:"expires_at"`
}
