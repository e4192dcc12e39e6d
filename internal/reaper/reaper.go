package reaper

import (
	"context"
	"log"
	"time"

	"merchbot/internal/database/models"
	"merchbot/internal/locales"
	"merchbot/pkg/telegoapi"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ListingSource is the subset of listing storage the reaper reads and
// relabels.
type ListingSource interface {
	FindExpired(ctx context.Context, now time.Time) ([]models.Listing, error)
	FindExpiredBefore(ctx context.Context, cutoff time.Time) ([]models.Listing, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status string) error
}

// StateMachine is the lifecycle edge the reaper drives.
type StateMachine interface {
	Expire(ctx context.Context, id primitive.ObjectID) error
}

// Reaper sweeps published listings past their expiration time into the
// expired state and optionally archives listings expired long ago.
type Reaper struct {
	listings  ListingSource
	machine   StateMachine
	bot       telegoapi.BotAPI
	localizer *i18n.Localizer

	notifyEnabled    bool
	archiveAfterDays int
	now              func() time.Time
}

// NewReaper creates an expiration reaper. The localizer is only used
// when merchant notifications are enabled.
func NewReaper(listings ListingSource, machine StateMachine, bot telegoapi.BotAPI, localizer *i18n.Localizer, notifyEnabled bool, archiveAfterDays int) *Reaper {
	if listings == nil || machine == nil || bot == nil {
		panic("reaper: nil dependency passed to NewReaper")
	}
	return &Reaper{
		listings:         listings,
		machine:          machine,
		bot:              bot,
		localizer:        localizer,
		notifyEnabled:    notifyEnabled,
		archiveAfterDays: archiveAfterDays,
		now:              time.Now,
	}
}

// HandleExpired transitions every published listing past its expiration
// time to expired, removes its channel messages best effort, and
// notifies the merchant when enabled. Daily fixed job.
func (r *Reaper) HandleExpired(ctx context.Context) {
	now := r.now()

	expired, err := r.listings.FindExpired(ctx, now)
	if err != nil {
		log.Printf("[Reaper HandleExpired] Failed to query expired listings: %v", err)
		sentry.CaptureException(err)
		return
	}
	if len(expired) == 0 {
		return
	}
	log.Printf("[Reaper HandleExpired] %d listing(s) to expire", len(expired))

	for i := range expired {
		r.expireOne(ctx, &expired[i], now)
	}
}

func (r *Reaper) expireOne(ctx context.Context, listing *models.Listing, now time.Time) {
	// The query already filters on expiration_time, but a null or future
	// value must never be swept regardless of where the row came from.
	if listing.ExpirationTime == nil || listing.ExpirationTime.After(now) {
		return
	}

	if err := r.machine.Expire(ctx, listing.ID); err != nil {
		log.Printf("[Reaper] Failed to expire listing %s: %v", listing.ID.Hex(), err)
		sentry.CaptureException(err)
		return
	}

	// Channel cleanup is best effort: a failure is logged and the
	// message stays orphaned rather than blocking the sweep.
	for _, messageID := range listing.PublishedMessageIDs {
		err := r.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
			ChatID:    tu.ID(listing.PublishedChatID),
			MessageID: messageID,
		})
		if err != nil {
			log.Printf("[Reaper] Failed to delete message %d in chat %d for listing %s: %v",
				messageID, listing.PublishedChatID, listing.ID.Hex(), err)
		}
	}

	if r.notifyEnabled {
		text := locales.GetMessage(r.localizer, locales.MsgListingExpired, map[string]interface{}{"Name": listing.Name})
		if _, err := r.bot.SendMessage(ctx, tu.Message(tu.ID(listing.OwnerID), text)); err != nil {
			log.Printf("[Reaper] Failed to notify merchant %d about listing %s: %v", listing.OwnerID, listing.ID.Hex(), err)
		}
	}

	log.Printf("[Reaper] Expired listing %s", listing.ID.Hex())
}

// ArchiveStale relabels listings that stayed expired past the configured
// threshold. The relabel is reversible; nothing is deleted.
func (r *Reaper) ArchiveStale(ctx context.Context) {
	cutoff := r.now().AddDate(0, 0, -r.archiveAfterDays)

	stale, err := r.listings.FindExpiredBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[Reaper ArchiveStale] Failed to query stale listings: %v", err)
		sentry.CaptureException(err)
		return
	}

	for i := range stale {
		if err := r.listings.UpdateStatus(ctx, stale[i].ID, models.StatusArchivedExpired); err != nil {
			log.Printf("[Reaper ArchiveStale] Failed to archive listing %s: %v", stale[i].ID.Hex(), err)
			sentry.CaptureException(err)
			continue
		}
		log.Printf("[Reaper ArchiveStale] Archived listing %s", stale[i].ID.Hex())
	}
}
