package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"merchbot/internal/database"
	"merchbot/internal/database/models"
	"merchbot/internal/leaselock"
	"merchbot/internal/locales"
	"merchbot/internal/mediagroups"
	"merchbot/internal/publisher"
	"merchbot/pkg/telegoapi"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/ratelimit"
)

// processingTimeout bounds the handling of a single update.
const processingTimeout = 30 * time.Second

// MediaStore is the media access the album intake needs.
type MediaStore interface {
	AddMediaItem(ctx context.Context, item *models.MediaItem) error
	CountListingMedia(ctx context.Context, listingID primitive.ObjectID) (int64, error)
}

// UpdateSource starts the long-polling update feed. Satisfied by
// *telego.Bot.
type UpdateSource interface {
	UpdatesViaLongPolling(ctx context.Context, params *telego.GetUpdatesParams, options ...telego.LongPollingOption) (<-chan telego.Update, error)
}

// Loop is the long-lived ingestion loop. Across redundant deployments
// only the lease winner polls Telegram and consumes updates; losers stay
// fully idle and retry acquisition, so a crashed winner is replaced
// within one retry interval. A standby must never start polling: the
// getUpdates offset advances for whoever polls, and a second poller
// would silently eat updates meant for the holder.
type Loop struct {
	bot           telegoapi.BotAPI
	updates       UpdateSource
	lock          *leaselock.Lock
	retryInterval time.Duration
	router        *Router
	listings      DraftStore
	media         MediaStore
	mediaGroupMgr *mediagroups.Manager
	localizer     *i18n.Localizer
	ratelimiter   ratelimit.Limiter
	debug         bool
}

// LoopDeps holds the dependencies required by the Loop.
type LoopDeps struct {
	Bot           telegoapi.BotAPI
	Updates       UpdateSource
	Lock          *leaselock.Lock
	RetryInterval time.Duration
	Router        *Router
	Listings      DraftStore
	Media         MediaStore
	MediaGroupMgr *mediagroups.Manager
	Localizer     *i18n.Localizer
	Debug         bool
}

// NewLoop creates the ingestion loop from its dependencies.
func NewLoop(deps LoopDeps) (*Loop, error) {
	if deps.Bot == nil {
		return nil, fmt.Errorf("bot instance cannot be nil")
	}
	if deps.Updates == nil {
		return nil, fmt.Errorf("update source cannot be nil")
	}
	if deps.Lock == nil {
		return nil, fmt.Errorf("lease lock cannot be nil")
	}
	if deps.Router == nil {
		return nil, fmt.Errorf("command router cannot be nil")
	}
	if deps.Listings == nil {
		return nil, fmt.Errorf("listing store cannot be nil")
	}
	if deps.Media == nil {
		return nil, fmt.Errorf("media store cannot be nil")
	}
	if deps.MediaGroupMgr == nil {
		return nil, fmt.Errorf("media group manager cannot be nil")
	}
	return &Loop{
		bot:           deps.Bot,
		updates:       deps.Updates,
		lock:          deps.Lock,
		retryInterval: deps.RetryInterval,
		router:        deps.Router,
		listings:      deps.Listings,
		media:         deps.Media,
		mediaGroupMgr: deps.MediaGroupMgr,
		localizer:     deps.Localizer,
		ratelimiter:   ratelimit.New(20),
		debug:         deps.Debug,
	}, nil
}

// Run blocks until ctx is cancelled. It alternates between contending
// for the lease and consuming updates while the lease is held. The
// lease row is never released here: losing the lease means the row
// already belongs to someone else, and a clean shutdown releases it
// from main after Run returns.
func (l *Loop) Run(ctx context.Context) {
	for {
		acquired, err := l.lock.Acquire(ctx)
		if err != nil {
			log.Printf("[Ingest] Lease acquisition error: %v", err)
			sentry.CaptureException(err)
		}

		if acquired {
			l.consumeWhileHeld(ctx)
		} else if l.debug {
			log.Println("[Ingest] Lease held elsewhere, idling")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.retryInterval):
		}
	}
}

// consumeWhileHeld starts the long-polling feed and processes it until
// ctx is cancelled or the lease is lost. Cancelling pollCtx stops the
// feed, so polling never outlives the lease.
func (l *Loop) consumeWhileHeld(ctx context.Context) {
	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()

	updates, err := l.updates.UpdatesViaLongPolling(pollCtx, nil)
	if err != nil {
		log.Printf("[Ingest] Failed to start long polling: %v", err)
		sentry.CaptureException(err)
		return
	}
	log.Println("[Ingest] Lease acquired, consuming updates")
	l.consume(pollCtx, updates)
}

// consume processes updates until ctx is cancelled or the lease is lost.
func (l *Loop) consume(ctx context.Context, updates <-chan telego.Update) {
	var wg sync.WaitGroup
	defer wg.Wait()

	leaseCheck := time.NewTicker(l.retryInterval)
	defer leaseCheck.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-leaseCheck.C:
			if !l.lock.Held() {
				log.Println("[Ingest] Lease lost, stopping consumption")
				return
			}
		case update, ok := <-updates:
			if !ok {
				log.Println("[Ingest] Updates channel closed")
				return
			}
			wg.Add(1)
			go func(up telego.Update) {
				defer wg.Done()
				l.processUpdate(ctx, up)
			}(update)
		}
	}
}

// processUpdate routes one update. Panics are contained per update.
func (l *Loop) processUpdate(ctx context.Context, update telego.Update) {
	l.ratelimiter.Take()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC recovered in processUpdate: %v\n%s", r, debug.Stack())
			sentry.CurrentHub().Recover(r)
			sentry.Flush(2 * time.Second)
		}
	}()

	processingCtx, cancel := context.WithTimeout(ctx, processingTimeout)
	defer cancel()

	if update.Message == nil {
		return
	}
	message := *update.Message
	if message.From == nil {
		return
	}

	if message.MediaGroupID != "" {
		err := l.mediaGroupMgr.HandleMessage(
			processingCtx,
			message,
			l.handleListingAlbum,
			mediagroups.DefaultProcessDelay,
			mediagroups.DefaultMaxGroupSize,
		)
		if err != nil {
			log.Printf("[Ingest] Error handling media group %s: %v", message.MediaGroupID, err)
		}
		return
	}

	if strings.HasPrefix(message.Text, "/") {
		l.router.Handle(processingCtx, message)
	} else if l.debug {
		log.Printf("[Ingest] Ignoring message %d from user %d", message.MessageID, message.From.ID)
	}
}

// handleListingAlbum attaches a completed album to the sender's open
// draft listing, up to the media group size the publish pipeline sends.
func (l *Loop) handleListingAlbum(ctx context.Context, groupID string, messages []telego.Message) error {
	if len(messages) == 0 {
		return errors.New("received empty media group")
	}
	first := messages[0]
	ownerID := first.From.ID

	draft, err := l.listings.FindDraftByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, database.ErrListingNotFound) {
			l.reply(ctx, first.Chat.ID, locales.MsgUnknownListing, nil)
			return nil
		}
		return fmt.Errorf("draft lookup for album %s failed: %w", groupID, err)
	}

	existing, err := l.media.CountListingMedia(ctx, draft.ID)
	if err != nil {
		return fmt.Errorf("media count for listing %s failed: %w", draft.ID.Hex(), err)
	}

	capacity := publisher.RequiredMediaCount - int(existing)
	if capacity <= 0 {
		l.reply(ctx, first.Chat.ID, locales.MsgTooManyMedia, map[string]interface{}{"Max": publisher.RequiredMediaCount})
		return nil
	}

	added := 0
	truncated := false
	for _, msg := range messages {
		if added >= capacity {
			truncated = true
			break
		}
		item := &models.MediaItem{
			ListingID: draft.ID,
			Ordering:  int(existing) + added,
		}
		switch {
		case msg.Photo != nil:
			item.Type = "photo"
			item.FileID = msg.Photo[len(msg.Photo)-1].FileID
		case msg.Video != nil:
			item.Type = "video"
			item.FileID = msg.Video.FileID
		default:
			continue
		}
		if err := l.media.AddMediaItem(ctx, item); err != nil {
			log.Printf("[Ingest Album:%s] Failed to store media item: %v", groupID, err)
			sentry.CaptureException(err)
			continue
		}
		added++
	}

	log.Printf("[Ingest Album:%s] Attached %d media item(s) to listing %s", groupID, added, draft.ID.Hex())
	if truncated {
		l.reply(ctx, first.Chat.ID, locales.MsgTooManyMedia, map[string]interface{}{"Max": publisher.RequiredMediaCount})
		return nil
	}
	l.reply(ctx, first.Chat.ID, locales.MsgMediaAttached, nil)
	return nil
}

func (l *Loop) reply(ctx context.Context, chatID int64, msgID string, data map[string]interface{}) {
	text := locales.GetMessage(l.localizer, msgID, data)
	if _, err := l.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.Printf("[Ingest] Failed to send reply to chat %d: %v", chatID, err)
	}
}
