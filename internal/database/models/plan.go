package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Plan is a purchased placement plan for a listing. The most recently
// purchased plan determines how long a publication stays up.
type Plan struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	ListingID    primitive.ObjectID `bson:"listing_id"`
	DurationDays int                `bson:"duration_days"`
	PurchasedAt  time.Time          `bson:"purchased_at"`
}
