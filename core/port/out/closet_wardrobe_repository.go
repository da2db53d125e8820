package out

import (
	"context"

	"closet_server/core/domain"
)

// WardrobeRepository defines the outbound port for the wardrobe store.
// The dedup service is the only writer of new records.
type WardrobeRepository interface {
	// ListByUser returns all records for a user, newest first.
	ListByUser(ctx context.Context, userID string) ([]*domain.WardrobeRecord, error)

	// FindByFingerprint returns the record with the given fingerprint, or
	// ErrNotFound.
	FindByFingerprint(ctx context.Context, userID, fingerprint string) (*domain.WardrobeRecord, error)

	// Insert persists a new record and fills in its id.
	Insert(ctx context.Context, record *domain.WardrobeRecord) error

	// UpdateColorTag sets the late-computed color fields.
	UpdateColorTag(ctx context.Context, id int64, colorTag, dominantColor string) error

	// ListUntagged returns records without a color tag, for the maintenance
	// sweep.
	ListUntagged(ctx context.Context, userID string, limit int) ([]*domain.WardrobeRecord, error)

	// ListUsersWithUntagged returns ids of users that have untagged records.
	ListUsersWithUntagged(ctx context.Context, limit int) ([]string, error)
}
