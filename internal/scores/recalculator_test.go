package scores

import (
	"context"
	"testing"

	"merchbot/internal/database/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Mocks ---

type MockReviewRepo struct {
	mock.Mock
}

func (m *MockReviewRepo) ListingsWithConfirmedReviews(ctx context.Context) ([]primitive.ObjectID, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]primitive.ObjectID)
	return ids, args.Error(1)
}

func (m *MockReviewRepo) GetConfirmedReviews(ctx context.Context, listingID primitive.ObjectID) ([]models.Review, error) {
	args := m.Called(ctx, listingID)
	reviews, _ := args.Get(0).([]models.Review)
	return reviews, args.Error(1)
}

type MockScoreRepo struct {
	mock.Mock
}

func (m *MockScoreRepo) UpsertScore(ctx context.Context, score *models.ListingScore) error {
	args := m.Called(ctx, score)
	return args.Error(0)
}

// --- Tests ---

func TestRecalculator_AveragesConfirmedReviews(t *testing.T) {
	reviews := new(MockReviewRepo)
	scores := new(MockScoreRepo)
	id := primitive.NewObjectID()

	reviews.On("ListingsWithConfirmedReviews", mock.Anything).Return([]primitive.ObjectID{id}, nil)
	reviews.On("GetConfirmedReviews", mock.Anything, id).Return([]models.Review{
		{Rating: 5, Confirmed: true},
		{Rating: 4, Confirmed: true},
		{Rating: 3, Confirmed: true},
	}, nil)
	scores.On("UpsertScore", mock.Anything, mock.MatchedBy(func(s *models.ListingScore) bool {
		return s.ListingID == id && s.Score == 4.0 && s.ReviewCount == 3
	})).Return(nil)

	NewRecalculator(reviews, scores).Recalculate(context.Background())

	scores.AssertExpectations(t)
}

func TestRecalculator_PerListingFailureContinues(t *testing.T) {
	reviews := new(MockReviewRepo)
	scores := new(MockScoreRepo)
	broken := primitive.NewObjectID()
	healthy := primitive.NewObjectID()

	reviews.On("ListingsWithConfirmedReviews", mock.Anything).Return([]primitive.ObjectID{broken, healthy}, nil)
	reviews.On("GetConfirmedReviews", mock.Anything, broken).Return(nil, assert.AnError)
	reviews.On("GetConfirmedReviews", mock.Anything, healthy).Return([]models.Review{{Rating: 4}}, nil)
	scores.On("UpsertScore", mock.Anything, mock.MatchedBy(func(s *models.ListingScore) bool {
		return s.ListingID == healthy
	})).Return(nil)

	NewRecalculator(reviews, scores).Recalculate(context.Background())

	scores.AssertNumberOfCalls(t, "UpsertScore", 1)
}
