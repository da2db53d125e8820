// Package job tracks sync job lifecycle. A job moves running to exactly
// one of completed or failed; counter updates after that are dropped.
package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"closet_server/core/domain"
	"closet_server/core/port/out"
	"closet_server/pkg/apperr"
	"closet_server/pkg/cache"
	"closet_server/pkg/logger"

	"github.com/google/uuid"
)

const (
	historyLimit   = 50
	statusCacheTTL = 10 * time.Minute
)

// Delta is one batch of counter increments for a running job.
type Delta struct {
	EmailsFound     int
	EmailsProcessed int
	OrdersCreated   int
	FailedEmails    int
	ErrorMessage    string
}

// Tracker persists job state and keeps a short-lived status cache for the
// polling endpoint.
type Tracker struct {
	repo  out.SyncJobRepository
	cache *cache.RedisCache
}

// NewTracker creates a tracker. cache may be nil; status reads then hit
// the database directly.
func NewTracker(repo out.SyncJobRepository, statusCache *cache.RedisCache) *Tracker {
	return &Tracker{repo: repo, cache: statusCache}
}

// Start creates a running job.
func (t *Tracker) Start(ctx context.Context, userID uuid.UUID, retailer string) (*domain.SyncJob, error) {
	job := &domain.SyncJob{
		ID:        uuid.New(),
		UserID:    userID,
		Retailer:  retailer,
		Status:    domain.SyncStatusRunning,
		StartedAt: time.Now(),
	}
	if err := t.repo.Create(ctx, job); err != nil {
		return nil, apperr.DatabaseError("create sync job", err)
	}
	t.cacheStatus(ctx, job)
	logger.Info("[JobTracker] Started sync job %s for user %s (retailer=%s)", job.ID, userID, retailer)
	return job, nil
}

// Update applies counter increments. Updates against a terminal job are
// logged and dropped, never an error for the caller.
func (t *Tracker) Update(ctx context.Context, jobID string, delta Delta) {
	job, err := t.repo.GetByID(ctx, jobID)
	if err != nil {
		logger.Warn("[JobTracker] Update lookup failed for job %s: %v", jobID, err)
		return
	}
	if job.Status.IsTerminal() {
		logger.Warn("[JobTracker] Dropping update for terminal job %s (status=%s)", jobID, job.Status)
		return
	}

	job.EmailsFound += delta.EmailsFound
	job.EmailsProcessed += delta.EmailsProcessed
	job.OrdersCreated += delta.OrdersCreated
	job.FailedEmails += delta.FailedEmails
	if delta.ErrorMessage != "" {
		if job.ErrorMessage != "" {
			job.ErrorMessage += "; "
		}
		job.ErrorMessage += delta.ErrorMessage
	}

	if err := t.repo.Update(ctx, job); err != nil {
		logger.Warn("[JobTracker] Update failed for job %s: %v", jobID, err)
		return
	}
	t.cacheStatus(ctx, job)
}

// Complete moves a job to its terminal status. A second completion is
// rejected with JOB_ALREADY_TERMINAL and leaves the stored outcome alone.
func (t *Tracker) Complete(ctx context.Context, jobID string, status domain.SyncStatus, errorMessage string) error {
	if !status.IsTerminal() {
		return apperr.BadRequest(fmt.Sprintf("status %q is not terminal", status))
	}

	job, err := t.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return apperr.NotFound("sync job")
		}
		return apperr.DatabaseError("load sync job", err)
	}
	if job.Status.IsTerminal() {
		logger.Warn("[JobTracker] Job %s already terminal (status=%s), dropping completion %s", jobID, job.Status, status)
		return apperr.JobAlreadyTerminal(jobID)
	}

	now := time.Now()
	job.Status = status
	job.CompletedAt = &now
	if errorMessage != "" {
		if job.ErrorMessage != "" {
			job.ErrorMessage += "; "
		}
		job.ErrorMessage += errorMessage
	}

	if err := t.repo.Update(ctx, job); err != nil {
		return apperr.DatabaseError("complete sync job", err)
	}
	t.cacheStatus(ctx, job)
	logger.Info("[JobTracker] Job %s finished with status %s (found=%d processed=%d failed=%d)",
		jobID, status, job.EmailsFound, job.EmailsProcessed, job.FailedEmails)
	return nil
}

// Get returns current job state, preferring the status cache.
func (t *Tracker) Get(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	if t.cache != nil {
		var cached domain.SyncJob
		if found, err := t.cache.GetJSON(ctx, statusKey(jobID), &cached); err == nil && found && cached.ID != uuid.Nil {
			return &cached, nil
		}
	}

	job, err := t.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return nil, apperr.NotFound("sync job")
		}
		return nil, apperr.DatabaseError("load sync job", err)
	}
	return job, nil
}

// History lists a user's recent jobs, newest first. The window is capped
// at the last 50.
func (t *Tracker) History(ctx context.Context, userID string, limit int) ([]*domain.SyncJob, error) {
	if limit <= 0 || limit > historyLimit {
		limit = historyLimit
	}
	jobs, err := t.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperr.DatabaseError("list sync jobs", err)
	}
	return jobs, nil
}

func (t *Tracker) cacheStatus(ctx context.Context, job *domain.SyncJob) {
	if t.cache == nil {
		return
	}
	if err := t.cache.SetJSON(ctx, statusKey(job.ID.String()), job, statusCacheTTL); err != nil {
		logger.Debug("[JobTracker] Status cache write failed for job %s: %v", job.ID, err)
	}
}

func statusKey(jobID string) string {
	return "sync:job:" + jobID
}
