package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"merchbot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrInvalidTransition is returned when a requested transition is not one
// of the legal lifecycle edges. The listing status is left unchanged.
var ErrInvalidTransition = errors.New("invalid listing transition")

// ErrMediaRequired is returned when approval is attempted on a listing
// without any media attached.
var ErrMediaRequired = errors.New("listing has no media attached")

// ListingStore is the subset of listing storage the state machine needs.
type ListingStore interface {
	GetListingByID(ctx context.Context, id primitive.ObjectID) (*models.Listing, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status string) error
	MarkPublished(ctx context.Context, id primitive.ObjectID, publishTime time.Time, expirationTime time.Time, chatID int64, messageIDs []int) error
	ResetForRepublish(ctx context.Context, id primitive.ObjectID) error
}

// MediaCounter reports how many media items a listing has.
type MediaCounter interface {
	CountListingMedia(ctx context.Context, listingID primitive.ObjectID) (int64, error)
}

// transitions holds the legal lifecycle edges. Everything else is
// rejected with ErrInvalidTransition.
var transitions = map[string]map[string]bool{
	models.StatusPendingSubmission: {models.StatusPendingApproval: true},
	models.StatusPendingApproval:   {models.StatusApproved: true, models.StatusPendingSubmission: true},
	models.StatusApproved:          {models.StatusPublished: true, models.StatusPendingApproval: true},
	models.StatusPublished:         {models.StatusExpired: true},
	models.StatusExpired:           {models.StatusApproved: true},
}

// Machine is the authoritative listing lifecycle state machine. All
// status changes in the system go through it.
type Machine struct {
	listings ListingStore
	media    MediaCounter
}

// NewMachine creates a state machine over the given stores.
func NewMachine(listings ListingStore, media MediaCounter) *Machine {
	if listings == nil || media == nil {
		panic("lifecycle: nil store passed to NewMachine")
	}
	return &Machine{listings: listings, media: media}
}

// checkEdge loads the listing and verifies the requested edge is legal.
func (m *Machine) checkEdge(ctx context.Context, id primitive.ObjectID, to string) (*models.Listing, error) {
	listing, err := m.listings.GetListingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !transitions[listing.Status][to] {
		return nil, fmt.Errorf("%w: %s -> %s (listing %s)", ErrInvalidTransition, listing.Status, to, id.Hex())
	}
	return listing, nil
}

// Submit moves a completed submission into the approval queue.
func (m *Machine) Submit(ctx context.Context, id primitive.ObjectID) error {
	if _, err := m.checkEdge(ctx, id, models.StatusPendingApproval); err != nil {
		return err
	}
	return m.listings.UpdateStatus(ctx, id, models.StatusPendingApproval)
}

// Approve marks a listing approved. The listing must have at least one
// media item attached.
func (m *Machine) Approve(ctx context.Context, id primitive.ObjectID) error {
	if _, err := m.checkEdge(ctx, id, models.StatusApproved); err != nil {
		return err
	}

	count, err := m.media.CountListingMedia(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count media for approval of %s: %w", id.Hex(), err)
	}
	if count < 1 {
		return fmt.Errorf("%w: listing %s", ErrMediaRequired, id.Hex())
	}

	return m.listings.UpdateStatus(ctx, id, models.StatusApproved)
}

// Reject sends a listing back to the submitter.
func (m *Machine) Reject(ctx context.Context, id primitive.ObjectID) error {
	if _, err := m.checkEdge(ctx, id, models.StatusPendingSubmission); err != nil {
		return err
	}
	return m.listings.UpdateStatus(ctx, id, models.StatusPendingSubmission)
}

// Recall pulls an approved listing back into the approval queue before
// it gets published.
func (m *Machine) Recall(ctx context.Context, id primitive.ObjectID) error {
	listing, err := m.checkEdge(ctx, id, models.StatusPendingApproval)
	if err != nil {
		return err
	}
	// approved -> pending_approval is recall; the reverse edge from
	// pending_approval is a reject and is handled above.
	if listing.Status != models.StatusApproved {
		return fmt.Errorf("%w: %s -> %s (listing %s)", ErrInvalidTransition, listing.Status, models.StatusPendingApproval, id.Hex())
	}
	return m.listings.UpdateStatus(ctx, id, models.StatusPendingApproval)
}

// Publish records a confirmed channel publication. Only the publish
// pipeline calls this, after the channel API reported success.
func (m *Machine) Publish(ctx context.Context, id primitive.ObjectID, publishTime, expirationTime time.Time, chatID int64, messageIDs []int) error {
	if _, err := m.checkEdge(ctx, id, models.StatusPublished); err != nil {
		return err
	}
	return m.listings.MarkPublished(ctx, id, publishTime, expirationTime, chatID, messageIDs)
}

// Expire moves a published listing to the terminal expired state.
func (m *Machine) Expire(ctx context.Context, id primitive.ObjectID) error {
	if _, err := m.checkEdge(ctx, id, models.StatusExpired); err != nil {
		return err
	}
	return m.listings.UpdateStatus(ctx, id, models.StatusExpired)
}

// Republish returns an expired listing to the approved queue. The fields
// of the previous publication cycle are cleared; identity is preserved.
func (m *Machine) Republish(ctx context.Context, id primitive.ObjectID) error {
	listing, err := m.checkEdge(ctx, id, models.StatusApproved)
	if err != nil {
		return err
	}
	if listing.Status != models.StatusExpired {
		return fmt.Errorf("%w: %s -> %s (listing %s)", ErrInvalidTransition, listing.Status, models.StatusApproved, id.Hex())
	}
	return m.listings.ResetForRepublish(ctx, id)
}
