package persistence

import (
	"context"
	"database/sql"
	"errors"

	"closet_server/core/domain"
	"closet_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

// SyncJobAdapter persists sync job state.
type SyncJobAdapter struct {
	db *sqlx.DB
}

var _ out.SyncJobRepository = (*SyncJobAdapter)(nil)

func NewSyncJobAdapter(db *sqlx.DB) *SyncJobAdapter {
	return &SyncJobAdapter{db: db}
}

const syncJobColumns = `
	id, user_id, retailer, status, emails_found, emails_processed,
	orders_created, failed_emails, error_message, started_at, completed_at`

func (a *SyncJobAdapter) Create(ctx context.Context, job *domain.SyncJob) error {
	query := `
		INSERT INTO sync_jobs
			(id, user_id, retailer, status, emails_found, emails_processed,
			 orders_created, failed_emails, error_message, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := a.db.ExecContext(ctx, query,
		job.ID, job.UserID, job.Retailer, job.Status,
		job.EmailsFound, job.EmailsProcessed, job.OrdersCreated,
		job.FailedEmails, job.ErrorMessage, job.StartedAt)
	return err
}

func (a *SyncJobAdapter) GetByID(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs WHERE id = $1`

	var job domain.SyncJob
	if err := a.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, out.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (a *SyncJobAdapter) Update(ctx context.Context, job *domain.SyncJob) error {
	query := `
		UPDATE sync_jobs
		SET status = $1, emails_found = $2, emails_processed = $3,
		    orders_created = $4, failed_emails = $5, error_message = $6,
		    completed_at = $7
		WHERE id = $8`

	result, err := a.db.ExecContext(ctx, query,
		job.Status, job.EmailsFound, job.EmailsProcessed,
		job.OrdersCreated, job.FailedEmails, job.ErrorMessage,
		job.CompletedAt, job.ID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return out.ErrNotFound
	}
	return nil
}

func (a *SyncJobAdapter) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.SyncJob, error) {
	query := `SELECT ` + syncJobColumns + `
		FROM sync_jobs
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT $2`

	var jobs []*domain.SyncJob
	if err := a.db.SelectContext(ctx, &jobs, query, userID, limit); err != nil {
		return nil, err
	}
	return jobs, nil
}
