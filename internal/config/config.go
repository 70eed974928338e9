package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/brandon/mailsync/internal/errors"
	"github.com/brandon/mailsync/pkg/types"
)

// Provider identifiers
const (
	ProviderGmail   = "gmail"
	ProviderOutlook = "outlook"
	ProviderIMAP    = "imap"
)

// Config holds the application configuration
type Config struct {
	// Cache settings
	CachePath   string `mapstructure:"cache_path"`
	PageSize    int    `mapstructure:"page_size"`
	SearchLimit int    `mapstructure:"search_limit"`
	LogLevel    string `mapstructure:"log_level"`

	// Remote settings
	FetchLimit     int           `mapstructure:"fetch_limit"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`

	// Scheduling
	SyncInterval     time.Duration `mapstructure:"sync_interval"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	SweepConcurrency int           `mapstructure:"sweep_concurrency"`

	Keyring KeyringConfig `mapstructure:"keyring"`
	OAuth   OAuthConfig   `mapstructure:"oauth"`

	// Accounts
	Accounts []AccountConfig `mapstructure:"accounts"`
}

// KeyringConfig selects the secret vault backend
type KeyringConfig struct {
	Backend  string `mapstructure:"backend"`
	FileDir  string `mapstructure:"file_dir"`
	Password string `mapstructure:"password"`
}

// OAuthConfig holds OAuth client registrations per provider
type OAuthConfig struct {
	Google    OAuthClient `mapstructure:"google"`
	Microsoft OAuthClient `mapstructure:"microsoft"`
}

// OAuthClient is a registered OAuth application
type OAuthClient struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenURL     string `mapstructure:"token_url"`
}

// AccountConfig holds configuration for a single mailbox
type AccountConfig struct {
	ID           string `mapstructure:"id"`
	DisplayName  string `mapstructure:"display_name"`
	Provider     string `mapstructure:"provider"`
	IMAPHost     string `mapstructure:"imap_host"`
	IMAPPort     int    `mapstructure:"imap_port"`
	Signature    string `mapstructure:"signature"`
	ActiveFolder string `mapstructure:"active_folder"`
}

// DefaultConfigPath returns ~/.config/mailsync/config.yaml
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailsync", "config.yaml")
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "mailsync.db")
	}
	return filepath.Join(home, ".local", "share", "mailsync", "mailsync.db")
}

// LoadConfig reads the YAML file at path and applies MAILSYNC_* environment
// overrides. A missing file is not an error; accounts may still be absent,
// which Validate reports.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MAILSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("cache_path", defaultCachePath())
	v.SetDefault("page_size", 100)
	v.SetDefault("search_limit", 50)
	v.SetDefault("log_level", "info")
	v.SetDefault("fetch_limit", 50)
	v.SetDefault("session_timeout", 30*time.Second)
	v.SetDefault("rate_limit", 1.0)
	v.SetDefault("rate_burst", 3)
	v.SetDefault("sync_interval", time.Minute)
	v.SetDefault("sweep_interval", 15*time.Minute)
	v.SetDefault("sweep_concurrency", 2)
	v.SetDefault("keyring.backend", "auto")
	v.SetDefault("keyring.file_dir", "~/.config/mailsync/credentials")

	// OAuth client credentials usually live in the environment (.env)
	for key, env := range map[string]string{
		"oauth.google.client_id":        "GOOGLE_CLIENT_ID",
		"oauth.google.client_secret":    "GOOGLE_CLIENT_SECRET",
		"oauth.microsoft.client_id":     "MICROSOFT_CLIENT_ID",
		"oauth.microsoft.client_secret": "MICROSOFT_CLIENT_SECRET",
	} {
		if err := v.BindEnv(key, "MAILSYNC_"+env, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	for i := range cfg.Accounts {
		applyAccountDefaults(&cfg.Accounts[i])
	}

	return cfg, nil
}

// applyAccountDefaults fills provider endpoints and presentation defaults
func applyAccountDefaults(acc *AccountConfig) {
	acc.Provider = strings.ToLower(acc.Provider)
	if acc.Provider == "" {
		acc.Provider = ProviderIMAP
	}
	if acc.IMAPHost == "" {
		switch acc.Provider {
		case ProviderGmail:
			acc.IMAPHost = "imap.gmail.com"
		case ProviderOutlook:
			acc.IMAPHost = "outlook.office365.com"
		}
	}
	if acc.IMAPPort == 0 {
		acc.IMAPPort = 993
	}
	if acc.DisplayName == "" {
		acc.DisplayName = acc.ID
	}
	if acc.ActiveFolder == "" {
		acc.ActiveFolder = "INBOX"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.CachePath == "" {
		return fmt.Errorf("cache_path is required")
	}

	if c.PageSize < 1 || c.PageSize > 1000 {
		return fmt.Errorf("page_size must be between 1 and 1000")
	}

	if c.SearchLimit < 1 || c.SearchLimit > 1000 {
		return fmt.Errorf("search_limit must be between 1 and 1000")
	}

	if c.FetchLimit < 1 {
		return fmt.Errorf("fetch_limit must be positive")
	}

	if c.SyncInterval <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("sync_interval and sweep_interval must be positive")
	}

	switch c.Keyring.Backend {
	case "", "auto":
	case "file":
		if c.Keyring.Password == "" {
			return fmt.Errorf("keyring.password is required when keyring.backend is file")
		}
	default:
		return fmt.Errorf("unknown keyring.backend %q", c.Keyring.Backend)
	}

	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account must be configured")
	}

	seen := make(map[string]bool, len(c.Accounts))
	for i := range c.Accounts {
		acc := &c.Accounts[i]
		if acc.ID == "" {
			return fmt.Errorf("account %d: id is required", i+1)
		}
		if seen[acc.ID] {
			return fmt.Errorf("account %s: duplicate id", acc.ID)
		}
		seen[acc.ID] = true
		if acc.IMAPHost == "" {
			return fmt.Errorf("account %s: imap_host is required", acc.ID)
		}
		if acc.IMAPPort < 1 || acc.IMAPPort > 65535 {
			return fmt.Errorf("account %s: invalid imap_port", acc.ID)
		}
	}

	return nil
}

// GetAccountByID finds an account by its mailbox address
func (c *Config) GetAccountByID(id string) (*AccountConfig, error) {
	for i := range c.Accounts {
		if c.Accounts[i].ID == id {
			return &c.Accounts[i], nil
		}
	}
	return nil, apperrors.Mark(apperrors.ErrNotFound, fmt.Errorf("account %s", id))
}

// AccountIDs returns a list of all account ids
func (c *Config) AccountIDs() []string {
	ids := make([]string, len(c.Accounts))
	for i := range c.Accounts {
		ids[i] = c.Accounts[i].ID
	}
	return ids
}

// AccountList returns the account identities known to the engine
func (c *Config) AccountList() []types.Account {
	accounts := make([]types.Account, len(c.Accounts))
	for i, acc := range c.Accounts {
		accounts[i] = types.Account{
			ID:          acc.ID,
			DisplayName: acc.DisplayName,
			Provider:    acc.Provider,
		}
	}
	return accounts
}

// OAuthClientFor returns the OAuth registration used by a provider
func (c *Config) OAuthClientFor(provider string) (OAuthClient, bool) {
	switch provider {
	case ProviderGmail:
		return c.OAuth.Google, c.OAuth.Google.ClientID != ""
	case ProviderOutlook:
		return c.OAuth.Microsoft, c.OAuth.Microsoft.ClientID != ""
	default:
		return OAuthClient{}, false
	}
}
