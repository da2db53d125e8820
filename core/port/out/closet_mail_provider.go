package out

import (
	"context"
	"time"

	"closet_server/core/domain"
)

// MailQuery describes one mailbox listing request.
type MailQuery struct {
	Query      string
	MaxResults int
	OnlyUnread bool
	After      time.Time
	Before     time.Time
	PageToken  string
}

// MailListResult is one page of messages.
type MailListResult struct {
	Messages      []*domain.RawEmail
	NextPageToken string
}

// MailProvider defines the outbound port for the mailbox provider.
// Consumed read-only except for the optional mark-as-read side effect.
type MailProvider interface {
	// Email returns the mailbox address the provider is bound to.
	Email() string

	// ListMessages lists candidate messages with bodies fetched.
	ListMessages(ctx context.Context, query *MailQuery) (*MailListResult, error)

	// GetMessage fetches a single message with its body.
	GetMessage(ctx context.Context, messageID string) (*domain.RawEmail, error)

	// MarkRead clears the unread flag on a message.
	MarkRead(ctx context.Context, messageID string) error
}

// MailProviderFactory builds a provider bound to a user's current token.
// The sync service requests a fresh provider per job so a mid-job refresh
// never invalidates the client.
type MailProviderFactory interface {
	ForUser(ctx context.Context, userID string) (MailProvider, error)
}
