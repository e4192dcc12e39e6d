package telegoapi

import (
	"context"

	"github.com/mymmrac/telego"
)

// BotAPI defines the interface for bot operations used by various packages.
// This allows using both the real telego.Bot and mocks.
type BotAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	GetMe(ctx context.Context) (*telego.User, error) // Used by some constructors/checks
	SendMediaGroup(ctx context.Context, params *telego.SendMediaGroupParams) ([]telego.Message, error)
	DeleteMessage(ctx context.Context, params *telego.DeleteMessageParams) error

	// Required by the operator auth checker
	GetChatMember(ctx context.Context, params *telego.GetChatMemberParams) (telego.ChatMember, error)
}
