package auth

import (
	"context"
	"errors"
	"testing"

	"merchbot/internal/database"
	"merchbot/internal/database/models"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type MockBot struct {
	mock.Mock
}

func (m *MockBot) SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	msg, _ := args.Get(0).(*telego.Message)
	return msg, args.Error(1)
}

func (m *MockBot) GetMe(ctx context.Context) (*telego.User, error) {
	args := m.Called(ctx)
	user, _ := args.Get(0).(*telego.User)
	return user, args.Error(1)
}

func (m *MockBot) SendMediaGroup(ctx context.Context, params *telego.SendMediaGroupParams) ([]telego.Message, error) {
	args := m.Called(ctx, params)
	msgs, _ := args.Get(0).([]telego.Message)
	return msgs, args.Error(1)
}

func (m *MockBot) DeleteMessage(ctx context.Context, params *telego.DeleteMessageParams) error {
	return m.Called(ctx, params).Error(0)
}

func (m *MockBot) GetChatMember(ctx context.Context, params *telego.GetChatMemberParams) (telego.ChatMember, error) {
	args := m.Called(ctx, params)
	member, _ := args.Get(0).(telego.ChatMember)
	return member, args.Error(1)
}

type MockChannelSource struct {
	mock.Mock
}

func (m *MockChannelSource) GetActiveChannel(ctx context.Context) (*models.Channel, error) {
	args := m.Called(ctx)
	channel, _ := args.Get(0).(*models.Channel)
	return channel, args.Error(1)
}

// --- Tests ---

func TestIsOperator_AdminIsOperator(t *testing.T) {
	bot := new(MockBot)
	channels := new(MockChannelSource)
	checker, err := NewOperatorChecker(bot, channels)
	require.NoError(t, err)

	channels.On("GetActiveChannel", mock.Anything).Return(&models.Channel{ChatID: -100}, nil)
	bot.On("GetChatMember", mock.Anything, mock.MatchedBy(func(p *telego.GetChatMemberParams) bool {
		return p.ChatID.ID == -100 && p.UserID == 9
	})).Return(&telego.ChatMemberAdministrator{Status: telego.MemberStatusAdministrator}, nil)

	isOperator, err := checker.IsOperator(context.Background(), 9)
	assert.NoError(t, err)
	assert.True(t, isOperator)
}

func TestIsOperator_PlainMemberIsNot(t *testing.T) {
	bot := new(MockBot)
	channels := new(MockChannelSource)
	checker, err := NewOperatorChecker(bot, channels)
	require.NoError(t, err)

	channels.On("GetActiveChannel", mock.Anything).Return(&models.Channel{ChatID: -100}, nil)
	bot.On("GetChatMember", mock.Anything, mock.Anything).Return(&telego.ChatMemberMember{Status: telego.MemberStatusMember}, nil)

	isOperator, err := checker.IsOperator(context.Background(), 9)
	assert.NoError(t, err)
	assert.False(t, isOperator)
}

func TestIsOperator_NoActiveChannelDeniesWithoutError(t *testing.T) {
	bot := new(MockBot)
	channels := new(MockChannelSource)
	checker, err := NewOperatorChecker(bot, channels)
	require.NoError(t, err)

	channels.On("GetActiveChannel", mock.Anything).Return(nil, database.ErrChannelNotFound)

	isOperator, err := checker.IsOperator(context.Background(), 9)
	assert.NoError(t, err)
	assert.False(t, isOperator)
	bot.AssertNotCalled(t, "GetChatMember", mock.Anything, mock.Anything)
}

func TestIsOperator_ChannelStoreFailureReturnsError(t *testing.T) {
	bot := new(MockBot)
	channels := new(MockChannelSource)
	checker, err := NewOperatorChecker(bot, channels)
	require.NoError(t, err)

	channels.On("GetActiveChannel", mock.Anything).Return(nil, assert.AnError)

	_, err = checker.IsOperator(context.Background(), 9)
	assert.Error(t, err)
}

func TestIsOperator_UserNotFoundIsNotOperator(t *testing.T) {
	bot := new(MockBot)
	channels := new(MockChannelSource)
	checker, err := NewOperatorChecker(bot, channels)
	require.NoError(t, err)

	channels.On("GetActiveChannel", mock.Anything).Return(&models.Channel{ChatID: -100}, nil)
	bot.On("GetChatMember", mock.Anything, mock.Anything).Return(nil, errors.New("telegram: user not found"))

	isOperator, err := checker.IsOperator(context.Background(), 9)
	assert.NoError(t, err)
	assert.False(t, isOperator)
}
