package database

import (
	"context"
	"errors"
	"time"

	"merchbot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrListingNotFound is returned when a listing is not found.
var ErrListingNotFound = errors.New("listing not found")

// ErrChannelNotFound is returned when no active channel is configured.
var ErrChannelNotFound = errors.New("no active channel configured")

// ErrLeaseHeld is returned when the lease row exists and belongs to
// another live owner.
var ErrLeaseHeld = errors.New("lease held by another owner")

// ListingRepository defines listing storage operations.
type ListingRepository interface {
	GetListingByID(ctx context.Context, id primitive.ObjectID) (*models.Listing, error)
	CreateListing(ctx context.Context, listing *models.Listing) error
	// FindDraftByOwner returns the owner's most recent listing still in
	// pending_submission, or ErrListingNotFound.
	FindDraftByOwner(ctx context.Context, ownerID int64) (*models.Listing, error)
	// UpdateStatus sets only the status and updated_at fields.
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status string) error
	// MarkPublished records the publication result in one update.
	MarkPublished(ctx context.Context, id primitive.ObjectID, publishTime time.Time, expirationTime time.Time, chatID int64, messageIDs []int) error
	// ResetForRepublish clears publish_time, expiration_time and the
	// published message references, returning the listing to the queue.
	ResetForRepublish(ctx context.Context, id primitive.ObjectID) error
	// FindDueForPublication returns approved listings whose publish_time
	// is unset or not after now, ordered publish_time ascending with
	// unset first.
	FindDueForPublication(ctx context.Context, now time.Time) ([]models.Listing, error)
	// FindExpired returns published listings whose expiration_time is set
	// and not after now.
	FindExpired(ctx context.Context, now time.Time) ([]models.Listing, error)
	// FindStaleApproved counts approved listings due before the cutoff.
	FindStaleApproved(ctx context.Context, cutoff time.Time) (int64, error)
	// FindExpiredBefore returns expired listings whose expiration_time is
	// older than the cutoff, for archival.
	FindExpiredBefore(ctx context.Context, cutoff time.Time) ([]models.Listing, error)
}

// MediaRepository defines media item storage operations.
type MediaRepository interface {
	AddMediaItem(ctx context.Context, item *models.MediaItem) error
	// GetListingMedia returns a listing's media ordered by position.
	GetListingMedia(ctx context.Context, listingID primitive.ObjectID) ([]models.MediaItem, error)
	CountListingMedia(ctx context.Context, listingID primitive.ObjectID) (int64, error)
	DeleteListingMedia(ctx context.Context, listingID primitive.ObjectID) error
}

// ScheduleSlotRepository defines schedule slot storage operations.
type ScheduleSlotRepository interface {
	// GetActiveSlots returns active slots sorted by time_str.
	GetActiveSlots(ctx context.Context) ([]models.ScheduleSlot, error)
}

// ChannelRepository defines channel storage operations.
type ChannelRepository interface {
	// GetActiveChannel returns the active publication channel or
	// ErrChannelNotFound when none is configured.
	GetActiveChannel(ctx context.Context) (*models.Channel, error)
}

// LeaseRepository defines lease row operations for ingestion election.
type LeaseRepository interface {
	// Get returns the current lease row, or nil when none exists.
	Get(ctx context.Context, key string) (*models.Lease, error)
	// TryInsert inserts the lease row, failing with ErrLeaseHeld when a
	// row with the same key already exists.
	TryInsert(ctx context.Context, lease *models.Lease) error
	// Replace overwrites the lease row owned by previousOwner. It returns
	// ErrLeaseHeld when the row changed hands in between.
	Replace(ctx context.Context, lease *models.Lease, previousOwner string) error
	// UpdateExpiry extends the lease held by owner.
	UpdateExpiry(ctx context.Context, key, owner string, expiresAt int64) error
	// Delete removes the lease row regardless of owner.
	Delete(ctx context.Context, key string) error
}

// PlanRepository defines placement plan lookups.
type PlanRepository interface {
	// GetLatestPlan returns the most recently purchased plan for the
	// listing, or nil when the listing has none.
	GetLatestPlan(ctx context.Context, listingID primitive.ObjectID) (*models.Plan, error)
}

// ReviewRepository defines review lookups for score recomputation.
type ReviewRepository interface {
	// ListingsWithConfirmedReviews returns the distinct listing IDs that
	// have at least one confirmed review.
	ListingsWithConfirmedReviews(ctx context.Context) ([]primitive.ObjectID, error)
	GetConfirmedReviews(ctx context.Context, listingID primitive.ObjectID) ([]models.Review, error)
}

// ScoreRepository defines listing score storage operations.
type ScoreRepository interface {
	UpsertScore(ctx context.Context, score *models.ListingScore) error
}

// PostLogger defines methods for logging published posts.
type PostLogger interface {
	LogPublishedPost(ctx context.Context, logEntry models.PostLog) error
}
