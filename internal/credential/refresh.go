package credential

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/brandon/mailsync/internal/config"
)

// Refresher exchanges a refresh token for a new access token
type Refresher interface {
	Refresh(ctx context.Context, acc *config.AccountConfig, refreshToken string) (*oauth2.Token, error)
}

// OAuthRefresher calls the provider's OAuth 2.0 token endpoint
type OAuthRefresher struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewOAuthRefresher creates a refresher using the configured client registrations
func NewOAuthRefresher(cfg *config.Config, logger *logrus.Logger) *OAuthRefresher {
	return &OAuthRefresher{
		cfg:    cfg,
		logger: logger,
	}
}

func endpointFor(provider string, client config.OAuthClient) (oauth2.Endpoint, error) {
	if client.TokenURL != "" {
		return oauth2.Endpoint{TokenURL: client.TokenURL}, nil
	}
	switch provider {
	case config.ProviderGmail:
		return endpoints.Google, nil
	case config.ProviderOutlook:
		return endpoints.AzureAD("common"), nil
	default:
		return oauth2.Endpoint{}, fmt.Errorf("no token endpoint for provider %q", provider)
	}
}

func (r *OAuthRefresher) clientFor(acc *config.AccountConfig) (config.OAuthClient, bool) {
	if client, ok := r.cfg.OAuthClientFor(acc.Provider); ok {
		return client, true
	}
	// Generic IMAP accounts borrow whichever registration carries a token URL
	for _, client := range []config.OAuthClient{r.cfg.OAuth.Google, r.cfg.OAuth.Microsoft} {
		if client.ClientID != "" && client.TokenURL != "" {
			return client, true
		}
	}
	return config.OAuthClient{}, false
}

// Refresh performs the refresh_token grant
func (r *OAuthRefresher) Refresh(ctx context.Context, acc *config.AccountConfig, refreshToken string) (*oauth2.Token, error) {
	client, ok := r.clientFor(acc)
	if !ok {
		return nil, fmt.Errorf("no OAuth client configured for provider %q", acc.Provider)
	}
	endpoint, err := endpointFor(acc.Provider, client)
	if err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		Endpoint:     endpoint,
	}
	token, err := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh access token: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"account": acc.ID,
		"expiry":  token.Expiry,
	}).Info("Refreshed access token")
	return token, nil
}
