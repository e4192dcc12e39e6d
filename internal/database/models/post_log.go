package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PostLog records one publication of a listing to the channel.
type PostLog struct {
	ListingID   primitive.ObjectID `bson:"listing_id"`
	OwnerID     int64              `bson:"owner_id"`
	Caption     string             `bson:"caption,omitempty"`
	ChannelID   int64              `bson:"channel_id"`
	MessageIDs  []int              `bson:"message_ids"`
	PublishedAt time.Time          `bson:"published_at"`
}
