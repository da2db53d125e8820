package domain

import (
	"time"

	"github.com/google/uuid"
)

type MailProvider string

const (
	ProviderGmail MailProvider = "gmail"
)

// Credential is a user's OAuth token pair for a mailbox provider.
// Only the token service mutates it.
type Credential struct {
	ID           int64        `json:"id"`
	UserID       uuid.UUID    `json:"user_id"`
	Provider     MailProvider `json:"provider"`
	Email        string       `json:"email"`
	AccessToken  string       `json:"-"`
	RefreshToken string       `json:"-"`
	ExpiresAt    time.Time    `json:"expires_at"`
	IsConnected  bool         `json:"is_connected"`
	LastSyncAt   *time.Time   `json:"last_sync_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// NeedsRefresh reports whether the access token expires within skew.
func (c *Credential) NeedsRefresh(skew time.Duration) bool {
	return time.Until(c.ExpiresAt) < skew
}

// ConnectionStatus is the read model for the status endpoint.
type ConnectionStatus struct {
	Connected  bool       `json:"connected"`
	Email      string     `json:"email,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}
