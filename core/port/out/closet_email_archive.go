package out

import (
	"context"
	"time"
)

// ArchivedEmail is a raw email body kept for reprocessing and parser
// debugging. Bodies are immutable once stored.
type ArchivedEmail struct {
	EmailID    string
	UserID     string
	From       string
	Subject    string
	ReceivedAt time.Time
	HTML       string
	Text       string
}

// EmailArchive defines the outbound port for the raw email body store.
type EmailArchive interface {
	// Save stores a raw email. Saving the same email id twice is a no-op.
	Save(ctx context.Context, email *ArchivedEmail) error

	// Get returns an archived email, or ErrNotFound.
	Get(ctx context.Context, emailID string) (*ArchivedEmail, error)
}
