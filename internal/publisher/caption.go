package publisher

import (
	"fmt"
	"strings"

	"merchbot/internal/database/models"
	"merchbot/pkg/utils"
)

// MaxCaptionLength is the channel API limit for a media group caption.
const MaxCaptionLength = 1024

// RenderCaption builds the MarkdownV2 caption for a listing from its
// fields. It is a pure function: same listing in, same caption out. The
// caller is responsible for rejecting captions over MaxCaptionLength;
// nothing is ever truncated here.
func RenderCaption(listing *models.Listing) string {
	var b strings.Builder

	b.WriteString("*")
	b.WriteString(utils.EscapeMarkdownV2(listing.Name))
	b.WriteString("*")

	if listing.AdvSentence != "" {
		b.WriteString("\n_")
		b.WriteString(utils.EscapeMarkdownV2(listing.AdvSentence))
		b.WriteString("_")
	}

	if listing.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(utils.EscapeMarkdownV2(listing.Description))
	}

	if listing.PriceP > 0 || listing.PricePP > 0 {
		b.WriteString("\n\n")
		b.WriteString(utils.EscapeMarkdownV2(fmt.Sprintf("Цена: %d ₽ / %d ₽", listing.PriceP, listing.PricePP)))
	}

	if listing.RegionID != "" {
		b.WriteString("\n")
		b.WriteString(utils.EscapeMarkdownV2("Регион: " + listing.RegionID))
	}

	if len(listing.TagIDs) > 0 {
		tags := make([]string, 0, len(listing.TagIDs))
		for _, tag := range listing.TagIDs {
			tags = append(tags, "\\#"+utils.EscapeMarkdownV2(tag))
		}
		b.WriteString("\n\n")
		b.WriteString(strings.Join(tags, " "))
	}

	return b.String()
}
