package publisher

import (
	"context"
	"fmt"
	"time"

	"merchbot/internal/database"
	"merchbot/internal/database/models"
	"merchbot/internal/locales"
	"merchbot/pkg/telegoapi"

	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// PublishResult is what a confirmed channel publication produced.
type PublishResult struct {
	ChannelID   int64
	MessageIDs  []int
	Caption     string
	PublishedAt time.Time
}

// PostAction is a best-effort step run after a listing has been
// published. Failures are isolated and never affect the publish outcome
// or sibling actions.
type PostAction interface {
	Name() string
	Run(ctx context.Context, listing *models.Listing, result PublishResult) error
}

// PostLogAction records the publication in the post log.
type PostLogAction struct {
	logger database.PostLogger
}

// NewPostLogAction creates a post-log action.
func NewPostLogAction(logger database.PostLogger) *PostLogAction {
	return &PostLogAction{logger: logger}
}

func (a *PostLogAction) Name() string { return "post-log" }

func (a *PostLogAction) Run(ctx context.Context, listing *models.Listing, result PublishResult) error {
	return a.logger.LogPublishedPost(ctx, models.PostLog{
		ListingID:   listing.ID,
		OwnerID:     listing.OwnerID,
		Caption:     result.Caption,
		ChannelID:   result.ChannelID,
		MessageIDs:  result.MessageIDs,
		PublishedAt: result.PublishedAt,
	})
}

// NotifyMerchantAction tells the listing owner their listing went live.
type NotifyMerchantAction struct {
	bot       telegoapi.BotAPI
	localizer *i18n.Localizer
}

// NewNotifyMerchantAction creates a merchant notification action.
func NewNotifyMerchantAction(bot telegoapi.BotAPI, localizer *i18n.Localizer) *NotifyMerchantAction {
	return &NotifyMerchantAction{bot: bot, localizer: localizer}
}

func (a *NotifyMerchantAction) Name() string { return "notify-merchant" }

func (a *NotifyMerchantAction) Run(ctx context.Context, listing *models.Listing, _ PublishResult) error {
	text := locales.GetMessage(a.localizer, locales.MsgListingPublished, map[string]interface{}{"Name": listing.Name})
	_, err := a.bot.SendMessage(ctx, tu.Message(tu.ID(listing.OwnerID), text))
	if err != nil {
		return fmt.Errorf("failed to notify merchant %d: %w", listing.OwnerID, err)
	}
	return nil
}
