package credential

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mailsync/internal/config"
)

func tokenServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOAuthRefresher_Refresh(t *testing.T) {
	srv := tokenServer(t, http.StatusOK, `{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`)
	cfg := &config.Config{OAuth: config.OAuthConfig{
		Google: config.OAuthClient{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL},
	}}
	acc := &config.AccountConfig{ID: testAccount, Provider: config.ProviderGmail}

	token, err := NewOAuthRefresher(cfg, quietLogger()).Refresh(context.Background(), acc, "rt")
	require.NoError(t, err)
	assert.Equal(t, "fresh", token.AccessToken)
	assert.False(t, token.Expiry.IsZero())
}

func TestOAuthRefresher_Rejected(t *testing.T) {
	srv := tokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)
	cfg := &config.Config{OAuth: config.OAuthConfig{
		Microsoft: config.OAuthClient{ClientID: "id", TokenURL: srv.URL},
	}}
	acc := &config.AccountConfig{ID: testAccount, Provider: config.ProviderOutlook}

	_, err := NewOAuthRefresher(cfg, quietLogger()).Refresh(context.Background(), acc, "rt")
	assert.ErrorContains(t, err, "invalid_grant")
}

func TestOAuthRefresher_NoClient(t *testing.T) {
	acc := &config.AccountConfig{ID: testAccount, Provider: config.ProviderIMAP}
	_, err := NewOAuthRefresher(&config.Config{}, quietLogger()).Refresh(context.Background(), acc, "rt")
	assert.Error(t, err)
}

func TestEndpointFor(t *testing.T) {
	ep, err := endpointFor(config.ProviderGmail, config.OAuthClient{})
	require.NoError(t, err)
	assert.Contains(t, ep.TokenURL, "googleapis.com")

	ep, err = endpointFor(config.ProviderOutlook, config.OAuthClient{})
	require.NoError(t, err)
	assert.Contains(t, ep.TokenURL, "login.microsoftonline.com/common")

	ep, err = endpointFor(config.ProviderIMAP, config.OAuthClient{TokenURL: "https://sso.example.org/token"})
	require.NoError(t, err)
	assert.Equal(t, "https://sso.example.org/token", ep.TokenURL)

	_, err = endpointFor(config.ProviderIMAP, config.OAuthClient{})
	assert.Error(t, err)
}
