package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/brandon/mailsync/internal/cache"
	"github.com/brandon/mailsync/internal/config"
	"github.com/brandon/mailsync/internal/credential"
	"github.com/brandon/mailsync/internal/email"
	"github.com/brandon/mailsync/internal/mcp"
	"github.com/brandon/mailsync/internal/sync"
	"github.com/brandon/mailsync/internal/tools"
)

// engine holds the wired components shared by every command
type engine struct {
	cfg         *config.Config
	cache       *cache.Cache
	credentials *credential.Manager
	orch        *sync.Orchestrator
}

func loadConfig(c *cli.Context, logger *logrus.Logger) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return cfg, nil
}

func newEngine(c *cli.Context, logger *logrus.Logger) (*engine, error) {
	cfg, err := loadConfig(c, logger)
	if err != nil {
		return nil, err
	}

	store, err := cache.NewCache(cfg.CachePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	ring, err := credential.OpenKeyring(cfg.Keyring)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}

	credentials := credential.NewManager(
		cfg,
		credential.NewKeyringVault(ring),
		email.NewIMAPDialer(cfg.SessionTimeout, logger),
		credential.NewOAuthRefresher(cfg, logger),
		logger,
	)
	adapter := email.NewAdapter(credentials, cfg.FetchLimit, logger)

	return &engine{
		cfg:         cfg,
		cache:       store,
		credentials: credentials,
		orch:        sync.NewOrchestrator(cfg, store, adapter, logger),
	}, nil
}

func (e *engine) Close() error {
	return e.cache.Close()
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context, logger *logrus.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.WithField("signal", sig).Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func serveCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve MCP over stdio and sync in the background",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-scheduler",
				Usage: "only sync on explicit requests",
			},
		},
		Action: func(c *cli.Context) error {
			e, err := newEngine(c, logger)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, cancel := signalContext(c.Context, logger)
			defer cancel()

			if !c.Bool("no-scheduler") {
				scheduler := sync.NewScheduler(e.cfg, e.orch, logger)
				if err := scheduler.Start(); err != nil {
					return err
				}
				defer scheduler.Stop()
			}

			server := mcp.NewServer(tools.NewRegistry(e.cfg, e.orch, logger), c.App.Version, logger)
			logger.WithField("accounts", len(e.cfg.Accounts)).Info("Starting mailsync")
			if err := server.Run(ctx); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("Shutting down mailsync")
			return nil
		},
	}
}

func syncCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "run one reconciliation cycle and print the result",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "account", Aliases: []string{"a"}, Required: true, Usage: "account id"},
			&cli.StringFlag{Name: "folder", Aliases: []string{"f"}, Usage: "folder path, defaults to the active folder"},
			&cli.BoolFlag{Name: "all", Usage: "sweep every selectable folder instead"},
		},
		Action: func(c *cli.Context) error {
			e, err := newEngine(c, logger)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, cancel := signalContext(c.Context, logger)
			defer cancel()

			acc, err := e.cfg.GetAccountByID(c.String("account"))
			if err != nil {
				return err
			}

			if c.Bool("all") {
				return sync.NewScheduler(e.cfg, e.orch, logger).Sweep(ctx, acc.ID)
			}

			folder := c.String("folder")
			if folder == "" {
				folder = acc.ActiveFolder
			}
			result, err := e.orch.Sync(ctx, acc.ID, folder)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}

func tokenCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "manage stored OAuth tokens",
		Subcommands: []*cli.Command{
			{
				Name:  "set",
				Usage: "store an access and/or refresh token for an account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "account", Aliases: []string{"a"}, Required: true, Usage: "account id"},
					&cli.StringFlag{Name: "access", Usage: "access token", EnvVars: []string{"MAILSYNC_ACCESS_TOKEN"}},
					&cli.StringFlag{Name: "refresh", Usage: "refresh token", EnvVars: []string{"MAILSYNC_REFRESH_TOKEN"}},
				},
				Action: func(c *cli.Context) error {
					e, err := newEngine(c, logger)
					if err != nil {
						return err
					}
					defer e.Close()

					if err := e.credentials.SetTokens(c.String("account"), c.String("access"), c.String("refresh")); err != nil {
						return err
					}
					logger.WithField("account", c.String("account")).Info("Stored tokens")
					return nil
				},
			},
		},
	}
}

func reindexCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "reindex",
		Usage: "rebuild the full-text search index from cached messages",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c, logger)
			if err != nil {
				return err
			}
			store, err := cache.NewCache(cfg.CachePath, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize cache: %w", err)
			}
			defer store.Close()

			if err := store.RebuildSearchIndex(c.Context); err != nil {
				return err
			}
			logger.Info("Search index rebuilt")
			return nil
		},
	}
}
