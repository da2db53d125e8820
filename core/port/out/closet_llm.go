package out

import (
	"context"

	"closet_server/core/domain"
)

// ItemExtractor defines the outbound port for AI-assisted extraction.
// Treated as unreliable and rate-limited; callers must carry timeouts.
type ItemExtractor interface {
	// ExtractItems sends flattened email content and returns candidate
	// items. An empty slice with nil error means the model found nothing.
	ExtractItems(ctx context.Context, content, retailer string) ([]domain.ExtractedItem, error)
}
