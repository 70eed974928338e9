package email

import (
	"github.com/emersion/go-sasl"

	"github.com/brandon/mailsync/internal/config"
)

// xoauth2Client implements the XOAUTH2 SASL mechanism used by Gmail and
// Outlook.
type xoauth2Client struct {
	username string
	token    string
}

func (a *xoauth2Client) Start() (string, []byte, error) {
	ir := "user=" + a.username + "\x01auth=Bearer " + a.token + "\x01\x01"
	return "XOAUTH2", []byte(ir), nil
}

// Next answers the JSON error challenge with an empty line so the server
// completes the exchange with a tagged NO.
func (a *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	return []byte{}, nil
}

// authenticator selects the SASL mechanism for an account's provider
func authenticator(acc *config.AccountConfig, accessToken string) sasl.Client {
	switch acc.Provider {
	case config.ProviderGmail, config.ProviderOutlook:
		return &xoauth2Client{username: acc.ID, token: accessToken}
	default:
		return sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: acc.ID,
			Token:    accessToken,
			Host:     acc.IMAPHost,
			Port:     acc.IMAPPort,
		})
	}
}
