package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"merchbot/internal/database"
	"merchbot/internal/database/models"
	"merchbot/pkg/telegoapi"

	"github.com/mymmrac/telego"
)

// ChannelSource resolves the active publication channel.
type ChannelSource interface {
	GetActiveChannel(ctx context.Context) (*models.Channel, error)
}

// OperatorChecker decides whether a user may run operator commands by
// checking their admin status in the publication channel. The channel is
// resolved per check, so the worker keeps running while no channel is
// configured yet.
type OperatorChecker struct {
	bot      telegoapi.BotAPI
	channels ChannelSource
}

// NewOperatorChecker creates a new OperatorChecker.
func NewOperatorChecker(bot telegoapi.BotAPI, channels ChannelSource) (*OperatorChecker, error) {
	if bot == nil {
		return nil, fmt.Errorf("bot instance cannot be nil")
	}
	if channels == nil {
		return nil, fmt.Errorf("channel source cannot be nil")
	}
	return &OperatorChecker{
		bot:      bot,
		channels: channels,
	}, nil
}

// IsOperator checks if a user is an administrator or creator of the
// active publication channel. With no channel configured nobody is an
// operator; that is an expected idle state, not an error.
func (oc *OperatorChecker) IsOperator(ctx context.Context, userID int64) (bool, error) {
	channel, err := oc.channels.GetActiveChannel(ctx)
	if err != nil {
		if errors.Is(err, database.ErrChannelNotFound) {
			log.Printf("[OperatorCheck User:%d] No active channel configured, denying", userID)
			return false, nil
		}
		return false, fmt.Errorf("failed to resolve active channel: %w", err)
	}

	member, err := oc.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: telego.ChatID{ID: channel.ChatID},
		UserID: userID,
	})
	if err != nil {
		// A user not found in the channel is simply not an operator.
		// API errors (network, permissions) should be returned.
		if strings.Contains(strings.ToLower(err.Error()), "user not found") {
			return false, nil
		}
		log.Printf("[OperatorCheck User:%d Channel:%d] Error checking chat member: %v", userID, channel.ChatID, err)
		return false, fmt.Errorf("failed to get chat member info: %w", err)
	}

	status := member.MemberStatus()
	return status == telego.MemberStatusCreator || status == telego.MemberStatusAdministrator, nil
}
