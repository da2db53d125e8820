package domain

import (
	"time"

	"github.com/google/uuid"
)

type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// IsTerminal reports whether the status is final.
func (s SyncStatus) IsTerminal() bool {
	return s == SyncStatusCompleted || s == SyncStatusFailed
}

// SyncJob is one execution of the ingestion pipeline for one user request.
type SyncJob struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	UserID          uuid.UUID  `json:"user_id" db:"user_id"`
	Retailer        string     `json:"retailer,omitempty" db:"retailer"`
	Status          SyncStatus `json:"status" db:"status"`
	EmailsFound     int        `json:"emails_found" db:"emails_found"`
	EmailsProcessed int        `json:"emails_processed" db:"emails_processed"`
	OrdersCreated   int        `json:"orders_created" db:"orders_created"`
	FailedEmails    int        `json:"failed_emails" db:"failed_emails"`
	ErrorMessage    string     `json:"error_message,omitempty" db:"error_message"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// SyncOptions are the recognized per-invocation settings.
type SyncOptions struct {
	Retailer   string `json:"retailer,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
	OnlyUnread bool   `json:"only_unread,omitempty"`
	DaysBack   int    `json:"days_back,omitempty"`
	MarkAsRead bool   `json:"mark_as_read,omitempty"`
}
