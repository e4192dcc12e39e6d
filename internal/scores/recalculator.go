package scores

import (
	"context"
	"log"

	"merchbot/internal/database"
	"merchbot/internal/database/models"

	"github.com/getsentry/sentry-go"
)

// Recalculator recomputes the average rating of every listing with
// confirmed reviews. Runs as a daily fixed job.
type Recalculator struct {
	reviews database.ReviewRepository
	scores  database.ScoreRepository
}

// NewRecalculator creates a score recalculator.
func NewRecalculator(reviews database.ReviewRepository, scores database.ScoreRepository) *Recalculator {
	if reviews == nil || scores == nil {
		panic("scores: nil repository passed to NewRecalculator")
	}
	return &Recalculator{reviews: reviews, scores: scores}
}

// Recalculate refreshes listing_scores from confirmed reviews. A
// per-listing failure is logged and the job continues.
func (r *Recalculator) Recalculate(ctx context.Context) {
	ids, err := r.reviews.ListingsWithConfirmedReviews(ctx)
	if err != nil {
		log.Printf("[Scores Recalculate] Failed to list reviewed listings: %v", err)
		sentry.CaptureException(err)
		return
	}
	if len(ids) == 0 {
		return
	}

	updated := 0
	for _, id := range ids {
		reviews, err := r.reviews.GetConfirmedReviews(ctx, id)
		if err != nil {
			log.Printf("[Scores Recalculate] Failed to load reviews for listing %s: %v", id.Hex(), err)
			sentry.CaptureException(err)
			continue
		}
		if len(reviews) == 0 {
			continue
		}

		total := 0
		for _, review := range reviews {
			total += review.Rating
		}

		score := &models.ListingScore{
			ListingID:   id,
			Score:       float64(total) / float64(len(reviews)),
			ReviewCount: len(reviews),
		}
		if err := r.scores.UpsertScore(ctx, score); err != nil {
			log.Printf("[Scores Recalculate] Failed to store score for listing %s: %v", id.Hex(), err)
			sentry.CaptureException(err)
			continue
		}
		updated++
	}

	log.Printf("[Scores Recalculate] Updated %d of %d listing score(s)", updated, len(ids))
}
