package publisher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"merchbot/internal/database"
	"merchbot/internal/database/models"
	"merchbot/pkg/telegoapi"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/ratelimit"
)

// RequiredMediaCount is the exact number of media items a listing must
// have to be published as one media group.
const RequiredMediaCount = 6

// ListingSource is the subset of listing storage the pipeline reads.
type ListingSource interface {
	FindDueForPublication(ctx context.Context, now time.Time) ([]models.Listing, error)
	FindStaleApproved(ctx context.Context, cutoff time.Time) (int64, error)
}

// MediaSource loads a listing's ordered media.
type MediaSource interface {
	GetListingMedia(ctx context.Context, listingID primitive.ObjectID) ([]models.MediaItem, error)
}

// ChannelSource resolves the active destination channel.
type ChannelSource interface {
	GetActiveChannel(ctx context.Context) (*models.Channel, error)
}

// PlanSource resolves the placement plan feeding expiration math.
type PlanSource interface {
	GetLatestPlan(ctx context.Context, listingID primitive.ObjectID) (*models.Plan, error)
}

// StateMachine is the lifecycle edge the pipeline drives.
type StateMachine interface {
	Publish(ctx context.Context, id primitive.ObjectID, publishTime, expirationTime time.Time, chatID int64, messageIDs []int) error
}

// Pipeline publishes due approved listings to the active channel. One
// invocation per slot firing; every effect is persisted.
type Pipeline struct {
	listings ListingSource
	media    MediaSource
	channels ChannelSource
	plans    PlanSource
	machine  StateMachine
	bot      telegoapi.BotAPI
	limiter  ratelimit.Limiter
	actions  []PostAction

	defaultPlanDays int
	staleAfter      time.Duration
	now             func() time.Time
}

// NewPipeline creates a publish pipeline. actions run after each
// successful publication, in order, each with isolated error capture.
func NewPipeline(
	listings ListingSource,
	media MediaSource,
	channels ChannelSource,
	plans PlanSource,
	machine StateMachine,
	bot telegoapi.BotAPI,
	limiter ratelimit.Limiter,
	actions []PostAction,
	defaultPlanDays int,
	staleAfter time.Duration,
) *Pipeline {
	if listings == nil || media == nil || channels == nil || plans == nil || machine == nil || bot == nil || limiter == nil {
		panic("publisher: nil dependency passed to NewPipeline")
	}
	return &Pipeline{
		listings:        listings,
		media:           media,
		channels:        channels,
		plans:           plans,
		machine:         machine,
		bot:             bot,
		limiter:         limiter,
		actions:         actions,
		defaultPlanDays: defaultPlanDays,
		staleAfter:      staleAfter,
		now:             time.Now,
	}
}

// PublishDue publishes every approved listing whose publish_time is
// unset or in the past. A per-listing failure is logged and contained;
// only a failed candidate query is returned as an error.
func (p *Pipeline) PublishDue(ctx context.Context) error {
	now := p.now()

	candidates, err := p.listings.FindDueForPublication(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to query due listings: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}
	log.Printf("[Pipeline PublishDue] %d listing(s) due", len(candidates))

	for i := range candidates {
		p.publishOne(ctx, &candidates[i], now)
	}

	p.reportStaleApproved(ctx, now)
	return nil
}

// publishOne handles a single candidate. The listing stays approved on
// every failure path and is retried at the next firing.
func (p *Pipeline) publishOne(ctx context.Context, listing *models.Listing, now time.Time) {
	channel, err := p.channels.GetActiveChannel(ctx)
	if err != nil {
		if errors.Is(err, database.ErrChannelNotFound) {
			// Expected idle state while no channel is configured.
			log.Printf("[Pipeline] No active channel, skipping listing %s", listing.ID.Hex())
			return
		}
		log.Printf("[Pipeline] Failed to resolve channel for listing %s: %v", listing.ID.Hex(), err)
		sentry.CaptureException(err)
		return
	}

	items, err := p.media.GetListingMedia(ctx, listing.ID)
	if err != nil {
		log.Printf("[Pipeline] Failed to load media for listing %s: %v", listing.ID.Hex(), err)
		sentry.CaptureException(err)
		return
	}
	if len(items) != RequiredMediaCount {
		log.Printf("[Pipeline] Listing %s has %d media item(s), need exactly %d, skipping", listing.ID.Hex(), len(items), RequiredMediaCount)
		return
	}

	caption := RenderCaption(listing)
	if captionLen := utf8.RuneCountInString(caption); captionLen > MaxCaptionLength {
		// Content must be fixed by an operator, never silently truncated.
		log.Printf("[Pipeline] Listing %s caption is %d chars (limit %d), skipping", listing.ID.Hex(), captionLen, MaxCaptionLength)
		return
	}

	p.limiter.Take()

	messages, err := p.bot.SendMediaGroup(ctx, &telego.SendMediaGroupParams{
		ChatID: tu.ID(channel.ChatID),
		Media:  buildMediaGroup(items, caption),
	})
	if err != nil {
		log.Printf("[Pipeline] Failed to publish listing %s to channel %d: %v", listing.ID.Hex(), channel.ChatID, err)
		sentry.CaptureException(err)
		return
	}

	messageIDs := make([]int, len(messages))
	for i, msg := range messages {
		messageIDs[i] = msg.MessageID
	}

	publishTime := now
	if listing.PublishTime != nil {
		publishTime = *listing.PublishTime
	}
	expiration := computeExpiration(publishTime, p.planDays(ctx, listing.ID))

	if err := p.machine.Publish(ctx, listing.ID, publishTime, expiration, channel.ChatID, messageIDs); err != nil {
		// The post is out but the flip failed; the next firing may
		// duplicate it once before the status catches up. Accepted.
		log.Printf("[Pipeline] Listing %s published but status flip failed: %v", listing.ID.Hex(), err)
		sentry.CaptureException(err)
		return
	}
	log.Printf("[Pipeline] Published listing %s to channel %d (%d messages)", listing.ID.Hex(), channel.ChatID, len(messageIDs))

	result := PublishResult{
		ChannelID:   channel.ChatID,
		MessageIDs:  messageIDs,
		Caption:     caption,
		PublishedAt: publishTime,
	}
	for _, action := range p.actions {
		if err := action.Run(ctx, listing, result); err != nil {
			log.Printf("[Pipeline] Post-action %s failed for listing %s: %v", action.Name(), listing.ID.Hex(), err)
			sentry.CaptureException(err)
		}
	}
}

// planDays resolves the placement duration from the listing's most
// recent purchased plan, falling back to the configured default.
func (p *Pipeline) planDays(ctx context.Context, listingID primitive.ObjectID) int {
	plan, err := p.plans.GetLatestPlan(ctx, listingID)
	if err != nil {
		log.Printf("[Pipeline] Plan lookup failed for listing %s, using default %d days: %v", listingID.Hex(), p.defaultPlanDays, err)
		return p.defaultPlanDays
	}
	if plan == nil || plan.DurationDays <= 0 {
		return p.defaultPlanDays
	}
	return plan.DurationDays
}

// reportStaleApproved raises an alarm for approved listings stuck past
// the configured threshold (media never completed, oversized caption and
// so on). No state change, operator attention only.
func (p *Pipeline) reportStaleApproved(ctx context.Context, now time.Time) {
	if p.staleAfter <= 0 {
		return
	}
	count, err := p.listings.FindStaleApproved(ctx, now.Add(-p.staleAfter))
	if err != nil {
		log.Printf("[Pipeline] Staleness check failed: %v", err)
		return
	}
	if count > 0 {
		msg := fmt.Sprintf("%d approved listing(s) stuck unpublished for more than %s", count, p.staleAfter)
		log.Printf("[Pipeline] ERROR: %s", msg)
		sentry.CaptureMessage(msg)
	}
}

// buildMediaGroup assembles the outbound media group, attaching the
// caption to the first item.
func buildMediaGroup(items []models.MediaItem, caption string) []telego.InputMedia {
	media := make([]telego.InputMedia, 0, len(items))
	for i, item := range items {
		switch item.Type {
		case "video":
			video := tu.MediaVideo(tu.FileFromID(item.FileID))
			if i == 0 {
				video = video.WithCaption(caption).WithParseMode(telego.ModeMarkdownV2)
			}
			media = append(media, video)
		default:
			photo := tu.MediaPhoto(tu.FileFromID(item.FileID))
			if i == 0 {
				photo = photo.WithCaption(caption).WithParseMode(telego.ModeMarkdownV2)
			}
			media = append(media, photo)
		}
	}
	return media
}

// computeExpiration returns midnight of the publish day plus the plan
// duration, in the publish time's location.
func computeExpiration(publishTime time.Time, days int) time.Time {
	year, month, day := publishTime.Date()
	midnight := time.Date(year, month, day, 0, 0, 0, 0, publishTime.Location())
	return midnight.AddDate(0, 0, days)
}
