package credential

import (
	"context"
	"fmt"
	gosync "sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/brandon/mailsync/internal/config"
	"github.com/brandon/mailsync/internal/email"
	apperrors "github.com/brandon/mailsync/internal/errors"
)

// Manager owns the credential pair of every account and hands out
// authenticated sessions. A rejected or missing access token triggers
// exactly one refresh before the account is reported as needing
// re-authentication.
type Manager struct {
	cfg       *config.Config
	vault     Vault
	dialer    email.Dialer
	refresher Refresher
	logger    *logrus.Logger

	mu       gosync.Mutex
	limiters map[string]*rate.Limiter
}

// NewManager creates a credential manager
func NewManager(cfg *config.Config, vault Vault, dialer email.Dialer, refresher Refresher, logger *logrus.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		vault:     vault,
		dialer:    dialer,
		refresher: refresher,
		logger:    logger,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// limiter returns the session-open limiter for an account
func (m *Manager) limiter(accountID string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.limiters[accountID]
	if !ok {
		limit := rate.Inf
		if m.cfg.RateLimit > 0 {
			limit = rate.Limit(m.cfg.RateLimit)
		}
		burst := m.cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(limit, burst)
		m.limiters[accountID] = l
	}
	return l
}

func (m *Manager) dial(ctx context.Context, acc *config.AccountConfig, accessToken string) (email.Session, error) {
	if err := m.limiter(acc.ID).Wait(ctx); err != nil {
		return nil, apperrors.Mark(apperrors.ErrRemoteUnavailable, fmt.Errorf("waiting for session slot: %w", err))
	}
	return m.dialer.Dial(ctx, acc, accessToken)
}

// GetConnectedSession opens a session for the account
func (m *Manager) GetConnectedSession(ctx context.Context, accountID string) (email.Session, error) {
	acc, err := m.cfg.GetAccountByID(accountID)
	if err != nil {
		return nil, err
	}
	log := m.logger.WithField("account", accountID)

	accessToken, ok, err := m.vault.Get(accessTokenKey(accountID))
	if err != nil {
		return nil, apperrors.Mark(apperrors.ErrAuthExhausted, err)
	}
	if ok {
		sess, err := m.dial(ctx, acc, accessToken)
		if err == nil {
			return sess, nil
		}
		if !apperrors.IsAuthExpired(err) {
			return nil, err
		}
		log.Info("Access token rejected, refreshing")
	} else {
		log.Info("No access token stored, refreshing")
	}

	accessToken, err = m.refresh(ctx, acc)
	if err != nil {
		log.WithError(err).Error("Re-authentication required")
		return nil, err
	}

	sess, err := m.dial(ctx, acc, accessToken)
	if apperrors.IsAuthExpired(err) {
		log.WithError(err).Error("Refreshed access token rejected, re-authentication required")
		return nil, apperrors.Mark(apperrors.ErrAuthExhausted, err)
	}
	return sess, err
}

// refresh exchanges the stored refresh token and persists the result
func (m *Manager) refresh(ctx context.Context, acc *config.AccountConfig) (string, error) {
	refreshToken, ok, err := m.vault.Get(refreshTokenKey(acc.ID))
	if err != nil {
		return "", apperrors.Mark(apperrors.ErrAuthExhausted, err)
	}
	if !ok {
		return "", apperrors.Mark(apperrors.ErrAuthExhausted, fmt.Errorf("no refresh token stored for %s", acc.ID))
	}

	token, err := m.refresher.Refresh(ctx, acc, refreshToken)
	if err != nil {
		return "", apperrors.Mark(apperrors.ErrAuthExhausted, err)
	}
	if token.AccessToken == "" {
		return "", apperrors.Mark(apperrors.ErrAuthExhausted, fmt.Errorf("token endpoint returned no access token"))
	}

	if err := m.vault.Set(accessTokenKey(acc.ID), token.AccessToken); err != nil {
		return "", fmt.Errorf("failed to persist access token: %w", err)
	}
	// Some providers rotate the refresh token on every exchange
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		if err := m.vault.Set(refreshTokenKey(acc.ID), token.RefreshToken); err != nil {
			return "", fmt.Errorf("failed to persist refresh token: %w", err)
		}
	}
	return token.AccessToken, nil
}

// SetTokens stores a credential pair obtained out of band. An empty value
// leaves the stored one unchanged.
func (m *Manager) SetTokens(accountID, accessToken, refreshToken string) error {
	if _, err := m.cfg.GetAccountByID(accountID); err != nil {
		return err
	}
	if accessToken == "" && refreshToken == "" {
		return apperrors.Mark(apperrors.ErrInvalidInput, fmt.Errorf("no token given"))
	}
	if accessToken != "" {
		if err := m.vault.Set(accessTokenKey(accountID), accessToken); err != nil {
			return err
		}
	}
	if refreshToken != "" {
		if err := m.vault.Set(refreshTokenKey(accountID), refreshToken); err != nil {
			return err
		}
	}
	m.logger.WithField("account", accountID).Info("Stored credentials")
	return nil
}
