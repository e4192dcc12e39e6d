package publisher

import (
	"strings"
	"testing"
	"time"

	"merchbot/internal/database/models"

	"github.com/stretchr/testify/assert"
)

func TestRenderCaption(t *testing.T) {
	listing := &models.Listing{
		Name:        "Vintage Lamp (1950s)",
		AdvSentence: "Light up your evenings!",
		Description: "Original wiring, restored shade.",
		PriceP:      4500,
		PricePP:     4000,
		RegionID:    "spb",
		TagIDs:      []string{"lighting", "vintage"},
	}

	caption := RenderCaption(listing)

	assert.Contains(t, caption, "*Vintage Lamp \\(1950s\\)*")
	assert.Contains(t, caption, "_Light up your evenings\\!_")
	assert.Contains(t, caption, "Original wiring, restored shade\\.")
	assert.Contains(t, caption, "4500")
	assert.Contains(t, caption, "\\#lighting \\#vintage")
}

func TestRenderCaptionIsPure(t *testing.T) {
	listing := &models.Listing{Name: "Chair", PriceP: 100}
	assert.Equal(t, RenderCaption(listing), RenderCaption(listing))
}

func TestRenderCaptionOmitsEmptySections(t *testing.T) {
	caption := RenderCaption(&models.Listing{Name: "Chair"})
	assert.Equal(t, "*Chair*", caption)
	assert.False(t, strings.Contains(caption, "Цена"))
	assert.False(t, strings.Contains(caption, "Регион"))
}

func TestComputeExpiration(t *testing.T) {
	// Published mid-day on March 10th with a 30-day plan: the clock
	// starts at midnight of the publish day.
	published := time.Date(2026, time.March, 10, 15, 42, 7, 0, time.UTC)
	expiration := computeExpiration(published, 30)

	assert.Equal(t, time.Date(2026, time.April, 9, 0, 0, 0, 0, time.UTC), expiration)
}
