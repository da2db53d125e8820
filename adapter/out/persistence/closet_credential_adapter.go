package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"closet_server/core/port/out"
	"closet_server/pkg/crypto"
	"closet_server/pkg/logger"

	"github.com/jmoiron/sqlx"
)

// CredentialAdapter persists mailbox credentials. Tokens are encrypted at
// this boundary; nothing above it ever sees ciphertext.
type CredentialAdapter struct {
	db *sqlx.DB
}

var _ out.CredentialRepository = (*CredentialAdapter)(nil)

func NewCredentialAdapter(db *sqlx.DB) *CredentialAdapter {
	return &CredentialAdapter{db: db}
}

func (a *CredentialAdapter) GetByUser(ctx context.Context, userID, provider string) (*out.CredentialEntity, error) {
	query := `
		SELECT id, user_id, provider, email, access_token, refresh_token,
		       expires_at, is_connected, last_sync_at, created_at, updated_at
		FROM mail_credentials
		WHERE user_id = $1 AND provider = $2`

	var entity out.CredentialEntity
	if err := a.db.GetContext(ctx, &entity, query, userID, provider); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, out.ErrNotFound
		}
		return nil, err
	}

	a.decryptTokens(&entity)
	return &entity, nil
}

func (a *CredentialAdapter) Create(ctx context.Context, entity *out.CredentialEntity) error {
	stored := *entity
	a.encryptTokens(&stored)

	query := `
		INSERT INTO mail_credentials
			(user_id, provider, email, access_token, refresh_token,
			 expires_at, is_connected, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id`

	return a.db.QueryRowContext(ctx, query,
		stored.UserID, stored.Provider, stored.Email,
		stored.AccessToken, stored.RefreshToken,
		stored.ExpiresAt, stored.IsConnected,
	).Scan(&entity.ID)
}

func (a *CredentialAdapter) Update(ctx context.Context, entity *out.CredentialEntity) error {
	stored := *entity
	a.encryptTokens(&stored)

	query := `
		UPDATE mail_credentials
		SET email = $1, access_token = $2, refresh_token = $3,
		    expires_at = $4, is_connected = $5, updated_at = NOW()
		WHERE user_id = $6 AND provider = $7`

	result, err := a.db.ExecContext(ctx, query,
		stored.Email, stored.AccessToken, stored.RefreshToken,
		stored.ExpiresAt, stored.IsConnected,
		stored.UserID, stored.Provider)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return out.ErrNotFound
	}
	return nil
}

func (a *CredentialAdapter) Disconnect(ctx context.Context, userID, provider string) error {
	query := `
		UPDATE mail_credentials
		SET is_connected = FALSE, access_token = '', refresh_token = '',
		    updated_at = NOW()
		WHERE user_id = $1 AND provider = $2`

	// No-op when nothing matches; disconnect is idempotent.
	_, err := a.db.ExecContext(ctx, query, userID, provider)
	return err
}

func (a *CredentialAdapter) TouchLastSync(ctx context.Context, userID, provider string, at time.Time) error {
	query := `
		UPDATE mail_credentials
		SET last_sync_at = $1, updated_at = NOW()
		WHERE user_id = $2 AND provider = $3`

	_, err := a.db.ExecContext(ctx, query, at, userID, provider)
	return err
}

func (a *CredentialAdapter) encryptTokens(entity *out.CredentialEntity) {
	if entity.AccessToken != "" && !crypto.IsEncrypted(entity.AccessToken) {
		if enc, err := crypto.EncryptToken(entity.AccessToken); err == nil {
			entity.AccessToken = enc
		} else {
			logger.Error("[CredentialAdapter] Failed to encrypt access token: %v", err)
		}
	}
	if entity.RefreshToken != "" && !crypto.IsEncrypted(entity.RefreshToken) {
		if enc, err := crypto.EncryptToken(entity.RefreshToken); err == nil {
			entity.RefreshToken = enc
		} else {
			logger.Error("[CredentialAdapter] Failed to encrypt refresh token: %v", err)
		}
	}
}

func (a *CredentialAdapter) decryptTokens(entity *out.CredentialEntity) {
	if crypto.IsEncrypted(entity.AccessToken) {
		if dec, err := crypto.DecryptToken(entity.AccessToken); err == nil {
			entity.AccessToken = dec
		} else {
			logger.Error("[CredentialAdapter] Failed to decrypt access token: %v", err)
		}
	}
	if crypto.IsEncrypted(entity.RefreshToken) {
		if dec, err := crypto.DecryptToken(entity.RefreshToken); err == nil {
			entity.RefreshToken = dec
		} else {
			logger.Error("[CredentialAdapter] Failed to decrypt refresh token: %v", err)
		}
	}
}
