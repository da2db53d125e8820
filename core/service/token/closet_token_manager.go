// Package token owns the mailbox credential lifecycle. It is the only
// writer of Credential state.
package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"closet_server/core/domain"
	"closet_server/core/port/out"
	"closet_server/pkg/apperr"
	"closet_server/pkg/httputil"
	"closet_server/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const providerName = string(domain.ProviderGmail)

// Service manages OAuth credentials for the mailbox provider.
type Service struct {
	repo   out.CredentialRepository
	config *oauth2.Config
	skew   time.Duration

	// Coalesces concurrent refreshes per user so only one request reaches
	// the OAuth provider at a time.
	group singleflight.Group

	// Overridable in tests.
	tokenSource func(ctx context.Context, t *oauth2.Token) oauth2.TokenSource
}

// NewService creates the token service. skew is the refresh lead time
// before actual expiry.
func NewService(repo out.CredentialRepository, config *oauth2.Config, skew time.Duration) *Service {
	if skew <= 0 {
		skew = 5 * time.Minute
	}
	s := &Service{
		repo:   repo,
		config: config,
		skew:   skew,
	}
	s.tokenSource = func(ctx context.Context, t *oauth2.Token) oauth2.TokenSource {
		return s.config.TokenSource(ctx, t)
	}
	return s
}

// BuildAuthURL returns the Google consent URL. ApprovalForce guarantees a
// refresh token on repeat connects.
func (s *Service) BuildAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// HandleCallback exchanges an authorization code and stores the credential.
func (s *Service) HandleCallback(ctx context.Context, userID uuid.UUID, code string) (*domain.Credential, error) {
	tok, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.OAuthFailed(providerName, err)
	}

	email, err := s.fetchGoogleEmail(ctx, tok)
	if err != nil {
		return nil, apperr.OAuthFailed(providerName, err)
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		// Google omits expiry on some responses; assume the usual hour.
		expiry = time.Now().Add(time.Hour)
	}

	cred := &domain.Credential{
		UserID:       userID,
		Provider:     domain.ProviderGmail,
		Email:        email,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiry,
		IsConnected:  true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	existing, err := s.repo.GetByUser(ctx, userID.String(), providerName)
	if err != nil && !errors.Is(err, out.ErrNotFound) {
		return nil, apperr.DatabaseError("load credential", err)
	}
	if existing != nil {
		cred.ID = existing.ID
		// A repeat consent may omit the refresh token; keep the stored one.
		if cred.RefreshToken == "" {
			cred.RefreshToken = existing.RefreshToken
		}
		if err := s.repo.Update(ctx, toEntity(cred)); err != nil {
			return nil, apperr.DatabaseError("update credential", err)
		}
	} else {
		entity := toEntity(cred)
		if err := s.repo.Create(ctx, entity); err != nil {
			return nil, apperr.DatabaseError("create credential", err)
		}
		cred.ID = entity.ID
	}

	logger.Info("[TokenService.HandleCallback] Connected %s for user %s", email, userID)
	return cred, nil
}

// GetValidToken returns an access token that is valid for at least the skew
// window, refreshing and persisting first when needed.
func (s *Service) GetValidToken(ctx context.Context, userID string) (string, error) {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return "", err
	}

	if cred.NeedsRefresh(s.skew) {
		cred, err = s.refresh(ctx, userID)
		if err != nil {
			return "", err
		}
	}

	return cred.AccessToken, nil
}

// OAuth2Token returns the full token for provider construction.
func (s *Service) OAuth2Token(ctx context.Context, userID string) (*oauth2.Token, error) {
	cred, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if cred.NeedsRefresh(s.skew) {
		cred, err = s.refresh(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	return &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.ExpiresAt,
		TokenType:    "Bearer",
	}, nil
}

// ForceRefresh refreshes regardless of expiry, for operator-triggered
// recovery.
func (s *Service) ForceRefresh(ctx context.Context, userID string) error {
	if _, err := s.load(ctx, userID); err != nil {
		return err
	}
	_, err := s.doRefresh(ctx, userID)
	return err
}

// Disconnect clears token state. Idempotent.
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	if err := s.repo.Disconnect(ctx, userID, providerName); err != nil {
		return apperr.DatabaseError("disconnect credential", err)
	}
	logger.Info("[TokenService.Disconnect] Disconnected %s for user %s", providerName, userID)
	return nil
}

// Status returns the connection read model for the status endpoint.
func (s *Service) Status(ctx context.Context, userID string) (*domain.ConnectionStatus, error) {
	entity, err := s.repo.GetByUser(ctx, userID, providerName)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return &domain.ConnectionStatus{Connected: false}, nil
		}
		return nil, apperr.DatabaseError("load credential", err)
	}
	if !entity.IsConnected {
		return &domain.ConnectionStatus{Connected: false}, nil
	}
	expires := entity.ExpiresAt
	return &domain.ConnectionStatus{
		Connected:  true,
		Email:      entity.Email,
		ExpiresAt:  &expires,
		LastSyncAt: entity.LastSyncAt,
	}, nil
}

// TouchLastSync records a successful sync for the status endpoint.
func (s *Service) TouchLastSync(ctx context.Context, userID string) {
	if err := s.repo.TouchLastSync(ctx, userID, providerName, time.Now()); err != nil {
		logger.Warn("[TokenService] Failed to record last sync for user %s: %v", userID, err)
	}
}

// load returns the connected credential or NOT_CONNECTED.
func (s *Service) load(ctx context.Context, userID string) (*domain.Credential, error) {
	entity, err := s.repo.GetByUser(ctx, userID, providerName)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return nil, apperr.NotConnected(providerName)
		}
		return nil, apperr.DatabaseError("load credential", err)
	}
	if !entity.IsConnected {
		return nil, apperr.NotConnected(providerName)
	}
	return toDomain(entity), nil
}

// refresh coalesces concurrent refresh requests for one user.
func (s *Service) refresh(ctx context.Context, userID string) (*domain.Credential, error) {
	v, err, _ := s.group.Do(userID, func() (interface{}, error) {
		// A waiter may arrive after the winner already persisted a fresh
		// token; re-check before hitting the provider.
		cred, err := s.load(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !cred.NeedsRefresh(s.skew) {
			return cred, nil
		}
		return s.doRefresh(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Credential), nil
}

// doRefresh exchanges the refresh token and persists the result.
func (s *Service) doRefresh(ctx context.Context, userID string) (*domain.Credential, error) {
	entity, err := s.repo.GetByUser(ctx, userID, providerName)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return nil, apperr.NotConnected(providerName)
		}
		return nil, apperr.DatabaseError("load credential", err)
	}

	stale := &oauth2.Token{
		AccessToken:  entity.AccessToken,
		RefreshToken: entity.RefreshToken,
		// Force the source to refresh even inside the skew window.
		Expiry: time.Now().Add(-time.Minute),
	}

	newToken, err := s.tokenSource(ctx, stale).Token()
	if err != nil {
		if isRevokedError(err) {
			logger.Warn("[TokenService.refresh] Token revoked for user %s, disconnecting: %v", userID, err)
			entity.IsConnected = false
			entity.UpdatedAt = time.Now()
			if updateErr := s.repo.Update(ctx, entity); updateErr != nil {
				logger.Error("[TokenService.refresh] Failed to mark disconnected: %v", updateErr)
			}
			return nil, apperr.AuthExpired(providerName, err)
		}
		return nil, apperr.ExternalError("oauth refresh", err)
	}

	entity.AccessToken = newToken.AccessToken
	if newToken.RefreshToken != "" {
		entity.RefreshToken = newToken.RefreshToken
	}
	entity.ExpiresAt = newToken.Expiry
	if entity.ExpiresAt.IsZero() {
		entity.ExpiresAt = time.Now().Add(time.Hour)
	}
	entity.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, entity); err != nil {
		return nil, apperr.DatabaseError("update credential", err)
	}

	logger.Debug("[TokenService.refresh] Token refreshed for user %s", userID)
	return toDomain(entity), nil
}

// isRevokedError checks if the error indicates a permanently dead token.
func isRevokedError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "invalid_client") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "Token has been expired or revoked") ||
		strings.Contains(errStr, "Token has been revoked")
}

// fetchGoogleEmail resolves the mailbox address for a fresh token.
func (s *Service) fetchGoogleEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://www.googleapis.com/oauth2/v2/userinfo", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := httputil.DefaultClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	if info.Email == "" {
		return "", fmt.Errorf("userinfo response missing email")
	}
	return info.Email, nil
}

func toEntity(cred *domain.Credential) *out.CredentialEntity {
	return &out.CredentialEntity{
		ID:           cred.ID,
		UserID:       cred.UserID.String(),
		Provider:     string(cred.Provider),
		Email:        cred.Email,
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		ExpiresAt:    cred.ExpiresAt,
		IsConnected:  cred.IsConnected,
		LastSyncAt:   cred.LastSyncAt,
		CreatedAt:    cred.CreatedAt,
		UpdatedAt:    cred.UpdatedAt,
	}
}

func toDomain(entity *out.CredentialEntity) *domain.Credential {
	userID, _ := uuid.Parse(entity.UserID)
	return &domain.Credential{
		ID:           entity.ID,
		UserID:       userID,
		Provider:     domain.MailProvider(entity.Provider),
		Email:        entity.Email,
		AccessToken:  entity.AccessToken,
		RefreshToken: entity.RefreshToken,
		ExpiresAt:    entity.ExpiresAt,
		IsConnected:  entity.IsConnected,
		LastSyncAt:   entity.LastSyncAt,
		CreatedAt:    entity.CreatedAt,
		UpdatedAt:    entity.UpdatedAt,
	}
}
