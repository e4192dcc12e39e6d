package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"merchbot/internal/database"
	"merchbot/internal/database/models"
	"merchbot/internal/lifecycle"
	"merchbot/internal/locales"
	"merchbot/pkg/telegoapi"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Lifecycle is the set of state machine edges reachable from chat
// commands.
type Lifecycle interface {
	Submit(ctx context.Context, id primitive.ObjectID) error
	Approve(ctx context.Context, id primitive.ObjectID) error
	Reject(ctx context.Context, id primitive.ObjectID) error
	Recall(ctx context.Context, id primitive.ObjectID) error
	Expire(ctx context.Context, id primitive.ObjectID) error
	Republish(ctx context.Context, id primitive.ObjectID) error
}

// OperatorGate decides whether a user may run operator commands.
type OperatorGate interface {
	IsOperator(ctx context.Context, userID int64) (bool, error)
}

// DraftStore is the listing access the command router needs.
type DraftStore interface {
	CreateListing(ctx context.Context, listing *models.Listing) error
	FindDraftByOwner(ctx context.Context, ownerID int64) (*models.Listing, error)
}

// Router dispatches chat commands: merchant submission commands for
// everyone, lifecycle commands for channel operators.
type Router struct {
	bot       telegoapi.BotAPI
	machine   Lifecycle
	listings  DraftStore
	gate      OperatorGate
	localizer *i18n.Localizer
}

// NewRouter creates a command router.
func NewRouter(bot telegoapi.BotAPI, machine Lifecycle, listings DraftStore, gate OperatorGate, localizer *i18n.Localizer) (*Router, error) {
	if bot == nil || machine == nil || listings == nil || gate == nil {
		return nil, fmt.Errorf("ingest: missing router dependency")
	}
	return &Router{bot: bot, machine: machine, listings: listings, gate: gate, localizer: localizer}, nil
}

// Handle routes one command message. Unknown commands are ignored.
func (r *Router) Handle(ctx context.Context, message telego.Message) {
	parts := strings.Fields(message.Text)
	if len(parts) == 0 {
		return
	}
	command := strings.TrimPrefix(parts[0], "/")
	args := parts[1:]
	logPrefix := fmt.Sprintf("[Cmd:%s User:%d]", command, message.From.ID)

	switch command {
	case "newlisting":
		r.handleNewListing(ctx, message, strings.TrimSpace(strings.TrimPrefix(message.Text, parts[0])))
	case "submit":
		r.handleSubmit(ctx, message)
	case "approve", "reject", "recall", "republish", "expire":
		r.handleOperatorCommand(ctx, message, command, args)
	default:
		log.Printf("%s No handler found", logPrefix)
	}
}

// handleNewListing opens a draft listing for the merchant. The argument
// is "name | description" with the description optional.
func (r *Router) handleNewListing(ctx context.Context, message telego.Message, arg string) {
	name, description := arg, ""
	if idx := strings.Index(arg, "|"); idx >= 0 {
		name = strings.TrimSpace(arg[:idx])
		description = strings.TrimSpace(arg[idx+1:])
	}
	if name == "" {
		r.reply(ctx, message.Chat.ID, locales.MsgErrorGeneral, nil)
		return
	}

	listing := &models.Listing{
		OwnerID:     message.From.ID,
		Name:        name,
		Description: description,
	}
	if err := r.listings.CreateListing(ctx, listing); err != nil {
		log.Printf("[Cmd:newlisting User:%d] Failed to create draft: %v", message.From.ID, err)
		sentry.CaptureException(err)
		r.reply(ctx, message.Chat.ID, locales.MsgErrorGeneral, nil)
		return
	}
	log.Printf("[Cmd:newlisting User:%d] Created draft %s", message.From.ID, listing.ID.Hex())
	r.reply(ctx, message.Chat.ID, locales.MsgSubmissionQueued, nil)
}

// handleSubmit completes the merchant's open draft and queues it for
// review.
func (r *Router) handleSubmit(ctx context.Context, message telego.Message) {
	draft, err := r.listings.FindDraftByOwner(ctx, message.From.ID)
	if err != nil {
		if errors.Is(err, database.ErrListingNotFound) {
			r.reply(ctx, message.Chat.ID, locales.MsgUnknownListing, nil)
			return
		}
		log.Printf("[Cmd:submit User:%d] Draft lookup failed: %v", message.From.ID, err)
		sentry.CaptureException(err)
		r.reply(ctx, message.Chat.ID, locales.MsgErrorGeneral, nil)
		return
	}
	if draft.Name == "" {
		r.reply(ctx, message.Chat.ID, locales.MsgErrorGeneral, nil)
		return
	}

	if err := r.machine.Submit(ctx, draft.ID); err != nil {
		r.replyLifecycleError(ctx, message.Chat.ID, err)
		return
	}
	r.reply(ctx, message.Chat.ID, locales.MsgSubmissionQueued, nil)
}

// handleOperatorCommand checks operator status and drives the requested
// lifecycle edge on the listing named by the first argument.
func (r *Router) handleOperatorCommand(ctx context.Context, message telego.Message, command string, args []string) {
	logPrefix := fmt.Sprintf("[Cmd:%s User:%d]", command, message.From.ID)

	isOperator, err := r.gate.IsOperator(ctx, message.From.ID)
	if err != nil {
		log.Printf("%s Operator check failed: %v", logPrefix, err)
		sentry.CaptureException(err)
		r.reply(ctx, message.Chat.ID, locales.MsgErrorGeneral, nil)
		return
	}
	if !isOperator {
		r.reply(ctx, message.Chat.ID, locales.MsgRequiresOperator, nil)
		return
	}

	if len(args) == 0 {
		r.reply(ctx, message.Chat.ID, locales.MsgUnknownListing, nil)
		return
	}
	id, err := primitive.ObjectIDFromHex(args[0])
	if err != nil {
		r.reply(ctx, message.Chat.ID, locales.MsgUnknownListing, nil)
		return
	}

	switch command {
	case "approve":
		err = r.machine.Approve(ctx, id)
	case "reject":
		err = r.machine.Reject(ctx, id)
	case "recall":
		err = r.machine.Recall(ctx, id)
	case "republish":
		err = r.machine.Republish(ctx, id)
	case "expire":
		err = r.machine.Expire(ctx, id)
	}
	if err != nil {
		log.Printf("%s Listing %s: %v", logPrefix, id.Hex(), err)
		r.replyLifecycleError(ctx, message.Chat.ID, err)
		return
	}

	log.Printf("%s Applied to listing %s", logPrefix, id.Hex())
	switch command {
	case "approve":
		r.reply(ctx, message.Chat.ID, locales.MsgListingApproved, map[string]interface{}{"Name": id.Hex()})
	case "reject":
		r.reply(ctx, message.Chat.ID, locales.MsgListingRejected, map[string]interface{}{"Name": id.Hex()})
	default:
		r.reply(ctx, message.Chat.ID, locales.MsgSubmissionQueued, nil)
	}
}

// replyLifecycleError maps machine errors to user-facing messages.
func (r *Router) replyLifecycleError(ctx context.Context, chatID int64, err error) {
	switch {
	case errors.Is(err, database.ErrListingNotFound):
		r.reply(ctx, chatID, locales.MsgUnknownListing, nil)
	case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, lifecycle.ErrMediaRequired):
		r.reply(ctx, chatID, locales.MsgInvalidLifecycle, nil)
	default:
		sentry.CaptureException(err)
		r.reply(ctx, chatID, locales.MsgErrorGeneral, nil)
	}
}

func (r *Router) reply(ctx context.Context, chatID int64, msgID string, data map[string]interface{}) {
	text := locales.GetMessage(r.localizer, msgID, data)
	if _, err := r.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.Printf("[Router] Failed to send reply to chat %d: %v", chatID, err)
	}
}
