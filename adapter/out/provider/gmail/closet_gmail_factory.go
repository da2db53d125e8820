package gmail

import (
	"context"

	"closet_server/core/port/out"
	"closet_server/core/service/token"

	"golang.org/x/oauth2"
)

// Factory builds per-user Gmail providers from the token service. A new
// provider is constructed per sync job so it always starts on a fresh
// token.
type Factory struct {
	tokens *token.Service
	config *oauth2.Config
}

var _ out.MailProviderFactory = (*Factory)(nil)

func NewFactory(tokens *token.Service, config *oauth2.Config) *Factory {
	return &Factory{tokens: tokens, config: config}
}

func (f *Factory) ForUser(ctx context.Context, userID string) (out.MailProvider, error) {
	tok, err := f.tokens.OAuth2Token(ctx, userID)
	if err != nil {
		return nil, err
	}
	return NewProvider(ctx, tok, f.config)
}
