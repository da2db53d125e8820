package out

import (
	"context"

	"closet_server/core/domain"
)

// SyncJobRepository defines the outbound port for sync job persistence.
// The job tracker is its only writer.
type SyncJobRepository interface {
	// Create persists a new job.
	Create(ctx context.Context, job *domain.SyncJob) error

	// GetByID returns a job, or ErrNotFound.
	GetByID(ctx context.Context, jobID string) (*domain.SyncJob, error)

	// Update persists counters, error message and status.
	Update(ctx context.Context, job *domain.SyncJob) error

	// ListByUser returns the most recent jobs for a user, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.SyncJob, error)
}
