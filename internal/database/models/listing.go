package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Listing lifecycle statuses. A listing is never deleted; it cycles
// through these states and keeps its identity across republishes.
const (
	StatusPendingSubmission = "pending_submission"
	StatusPendingApproval   = "pending_approval"
	StatusApproved          = "approved"
	StatusPublished         = "published"
	StatusExpired           = "expired"

	// StatusArchivedExpired is a storage-level relabel for listings that
	// stayed expired long enough to be swept out of the active set. It is
	// not part of the public lifecycle and is reversible.
	StatusArchivedExpired = "archived_expired"
)

// Listing is a merchant's marketplace listing.
type Listing struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	OwnerID     int64              `bson:"owner_id"`
	Name        string             `bson:"name"`
	Description string             `bson:"description,omitempty"`
	AdvSentence string             `bson:"adv_sentence,omitempty"`
	PriceP      int                `bson:"price_p,omitempty"`
	PricePP     int                `bson:"price_pp,omitempty"`
	RegionID    string             `bson:"region_id,omitempty"`
	TagIDs      []string           `bson:"tag_ids,omitempty"`

	Status string `bson:"status"`

	// Set when the listing goes out to the channel. Cleared on republish.
	PublishTime         *time.Time `bson:"publish_time,omitempty"`
	ExpirationTime      *time.Time `bson:"expiration_time,omitempty"`
	PublishedChatID     int64      `bson:"published_chat_id,omitempty"`
	PublishedMessageIDs []int      `bson:"published_message_ids,omitempty"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MediaItem is one photo or video attached to a listing. Ordering is the
// position inside the published media group.
type MediaItem struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	ListingID primitive.ObjectID `bson:"listing_id"`
	Ordering  int                `bson:"ordering"`
	Type      string             `bson:"type"` // "photo" or "video"
	FileID    string             `bson:"file_id"`
	CreatedAt time.Time          `bson:"created_at"`
}
