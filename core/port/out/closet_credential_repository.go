package out

import (
	"context"
	"time"
)

// CredentialRepository defines the outbound port for mailbox credential
// persistence. Tokens are encrypted at rest by the adapter.
type CredentialRepository interface {
	// GetByUser returns the credential for a user and provider.
	GetByUser(ctx context.Context, userID, provider string) (*CredentialEntity, error)

	// Create creates a new credential.
	Create(ctx context.Context, entity *CredentialEntity) error

	// Update updates tokens and connection state.
	Update(ctx context.Context, entity *CredentialEntity) error

	// Disconnect clears token fields and marks the credential disconnected.
	// Idempotent; disconnecting an absent credential is not an error.
	Disconnect(ctx context.Context, userID, provider string) error

	// TouchLastSync records a successful sync timestamp.
	TouchLastSync(ctx context.Context, userID, provider string, at time.Time) error
}

// CredentialEntity represents a mailbox credential in persistence.
type CredentialEntity struct {
	ID           int64      `db:"id"`
	UserID       string     `db:"user_id"`
	Provider     string     `db:"provider"`
	Email        string     `db:"email"`
	AccessToken  string     `db:"access_token"`
	RefreshToken string     `db:"refresh_token"`
	ExpiresAt    time.Time  `db:"expires_at"`
	IsConnected  bool       `db:"is_connected"`
	LastSyncAt   *time.Time `db:"last_sync_at"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}
