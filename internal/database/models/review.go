package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Review is a buyer review left for a listing. Only confirmed reviews
// count toward the listing score.
type Review struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	ListingID primitive.ObjectID `bson:"listing_id"`
	AuthorID  int64              `bson:"author_id"`
	Rating    int                `bson:"rating"` // 1..5
	Text      string             `bson:"text,omitempty"`
	Confirmed bool               `bson:"confirmed"`
	CreatedAt time.Time          `bson:"created_at"`
}

// ListingScore is the precomputed average rating for a listing,
// refreshed by the nightly recompute job.
type ListingScore struct {
	ListingID   primitive.ObjectID `bson:"_id"`
	Score       float64            `bson:"score"`
	ReviewCount int                `bson:"review_count"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}
