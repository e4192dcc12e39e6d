package ingest

import (
	"context"
	"os"
	"testing"

	"merchbot/internal/database"
	"merchbot/internal/database/models"
	"merchbot/internal/lifecycle"
	"merchbot/internal/locales"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMain(m *testing.M) {
	locales.Init("en")
	os.Exit(m.Run())
}

// --- Mocks ---

type MockLifecycle struct {
	mock.Mock
}

func (m *MockLifecycle) Submit(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLifecycle) Approve(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLifecycle) Reject(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLifecycle) Recall(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLifecycle) Expire(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockLifecycle) Republish(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}

type MockDraftStore struct {
	mock.Mock
}

func (m *MockDraftStore) CreateListing(ctx context.Context, listing *models.Listing) error {
	return m.Called(ctx, listing).Error(0)
}

func (m *MockDraftStore) FindDraftByOwner(ctx context.Context, ownerID int64) (*models.Listing, error) {
	args := m.Called(ctx, ownerID)
	listing, _ := args.Get(0).(*models.Listing)
	return listing, args.Error(1)
}

type MockGate struct {
	mock.Mock
}

func (m *MockGate) IsOperator(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

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

// --- Helpers ---

func commandMessage(userID int64, text string) telego.Message {
	return telego.Message{
		MessageID: 1,
		Text:      text,
		From:      &telego.User{ID: userID},
		Chat:      telego.Chat{ID: userID},
	}
}

func newRouter(t *testing.T) (*Router, *MockBot, *MockLifecycle, *MockDraftStore, *MockGate) {
	t.Helper()
	bot := new(MockBot)
	machine := new(MockLifecycle)
	listings := new(MockDraftStore)
	gate := new(MockGate)
	router, err := NewRouter(bot, machine, listings, gate, locales.NewLocalizer("en"))
	require.NoError(t, err)
	bot.On("SendMessage", mock.Anything, mock.Anything).Return(&telego.Message{}, nil).Maybe()
	return router, bot, machine, listings, gate
}

// --- Tests ---

func TestRouter_ApproveAsOperator(t *testing.T) {
	router, _, machine, _, gate := newRouter(t)
	id := primitive.NewObjectID()

	gate.On("IsOperator", mock.Anything, int64(9)).Return(true, nil)
	machine.On("Approve", mock.Anything, id).Return(nil)

	router.Handle(context.Background(), commandMessage(9, "/approve "+id.Hex()))

	machine.AssertExpectations(t)
}

func TestRouter_OperatorCommandDeniedForNonOperator(t *testing.T) {
	router, bot, machine, _, gate := newRouter(t)
	id := primitive.NewObjectID()

	gate.On("IsOperator", mock.Anything, int64(9)).Return(false, nil)

	router.Handle(context.Background(), commandMessage(9, "/expire "+id.Hex()))

	machine.AssertNotCalled(t, "Expire", mock.Anything, mock.Anything)
	bot.AssertCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestRouter_OperatorCommandWithBadID(t *testing.T) {
	router, _, machine, _, gate := newRouter(t)

	gate.On("IsOperator", mock.Anything, int64(9)).Return(true, nil)

	router.Handle(context.Background(), commandMessage(9, "/reject not-an-id"))
	router.Handle(context.Background(), commandMessage(9, "/reject"))

	machine.AssertNotCalled(t, "Reject", mock.Anything, mock.Anything)
}

func TestRouter_InvalidTransitionIsUserError(t *testing.T) {
	router, bot, machine, _, gate := newRouter(t)
	id := primitive.NewObjectID()

	gate.On("IsOperator", mock.Anything, int64(9)).Return(true, nil)
	machine.On("Republish", mock.Anything, id).Return(lifecycle.ErrInvalidTransition)

	router.Handle(context.Background(), commandMessage(9, "/republish "+id.Hex()))

	bot.AssertCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestRouter_SubmitUsesOwnDraft(t *testing.T) {
	router, _, machine, listings, _ := newRouter(t)
	draft := &models.Listing{ID: primitive.NewObjectID(), OwnerID: 7, Name: "Lamp", Status: models.StatusPendingSubmission}

	listings.On("FindDraftByOwner", mock.Anything, int64(7)).Return(draft, nil)
	machine.On("Submit", mock.Anything, draft.ID).Return(nil)

	router.Handle(context.Background(), commandMessage(7, "/submit"))

	machine.AssertExpectations(t)
}

func TestRouter_SubmitWithoutDraft(t *testing.T) {
	router, bot, machine, listings, _ := newRouter(t)

	listings.On("FindDraftByOwner", mock.Anything, int64(7)).Return(nil, database.ErrListingNotFound)

	router.Handle(context.Background(), commandMessage(7, "/submit"))

	machine.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
	bot.AssertCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestRouter_NewListingParsesNameAndDescription(t *testing.T) {
	router, _, _, listings, _ := newRouter(t)

	listings.On("CreateListing", mock.Anything, mock.MatchedBy(func(l *models.Listing) bool {
		return l.OwnerID == 7 && l.Name == "Vintage Lamp" && l.Description == "Restored, works"
	})).Return(nil)

	router.Handle(context.Background(), commandMessage(7, "/newlisting Vintage Lamp | Restored, works"))

	listings.AssertExpectations(t)
}

func TestRouter_UnknownCommandIgnored(t *testing.T) {
	router, bot, _, _, _ := newRouter(t)

	router.Handle(context.Background(), commandMessage(7, "/frobnicate"))

	bot.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestRouter_OperatorCheckFailureIsSafe(t *testing.T) {
	router, _, machine, _, gate := newRouter(t)
	id := primitive.NewObjectID()

	gate.On("IsOperator", mock.Anything, int64(9)).Return(false, assert.AnError)

	router.Handle(context.Background(), commandMessage(9, "/approve "+id.Hex()))

	machine.AssertNotCalled(t, "Approve", mock.Anything, mock.Anything)
}
