package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/brandon/mailsync/internal/config"
	"github.com/brandon/mailsync/pkg/types"
)

// Scheduler triggers reconciliation cycles in the background: the active
// folder of every account on a short interval, and a sweep over all
// selectable folders on a longer one.
type Scheduler struct {
	cfg    *config.Config
	orch   *Orchestrator
	cron   *cron.Cron
	logger *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler for the configured accounts
func NewScheduler(cfg *config.Config, orch *Orchestrator, logger *logrus.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:  cfg,
		orch: orch,
		cron: cron.New(
			cron.WithLogger(cron.PrintfLogger(logger)),
			cron.WithChain(cron.Recover(cron.PrintfLogger(logger)), cron.SkipIfStillRunning(cron.PrintfLogger(logger))),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

func every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

// Start registers the periodic jobs and starts the cron runner
func (s *Scheduler) Start() error {
	if s.cfg.SyncInterval > 0 {
		if _, err := s.cron.AddFunc(every(s.cfg.SyncInterval), func() {
			if err := s.SyncActive(s.ctx); err != nil {
				s.logger.WithError(err).Error("Active folder sync failed")
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule active folder sync: %w", err)
		}
	}

	if s.cfg.SweepInterval > 0 {
		if _, err := s.cron.AddFunc(every(s.cfg.SweepInterval), func() {
			for _, id := range s.cfg.AccountIDs() {
				if err := s.Sweep(s.ctx, id); err != nil {
					s.logger.WithError(err).WithField("account", id).Error("Folder sweep failed")
				}
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule folder sweep: %w", err)
		}
	}

	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"sync_interval":  s.cfg.SyncInterval,
		"sweep_interval": s.cfg.SweepInterval,
	}).Info("Scheduler started")
	return nil
}

// Stop cancels running cycles and waits for running jobs to return
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// SyncActive syncs the active folder of every account concurrently. A
// failing account does not cancel the others.
func (s *Scheduler) SyncActive(ctx context.Context) error {
	var g errgroup.Group
	for _, acc := range s.cfg.Accounts {
		acc := acc
		g.Go(func() error {
			_, err := s.orch.Sync(ctx, acc.ID, acc.ActiveFolder)
			return err
		})
	}
	return g.Wait()
}

// Sweep lists an account's folders and syncs every selectable one with
// bounded concurrency.
func (s *Scheduler) Sweep(ctx context.Context, accountID string) error {
	listing, err := s.orch.ListFolders(ctx, accountID)
	if err != nil {
		return err
	}
	if listing.Offline {
		s.logger.WithField("account", accountID).Debug("Skipping sweep while offline")
		return nil
	}

	limit := s.cfg.SweepConcurrency
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)

	paths := selectablePaths(listing.Tree)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			_, err := s.orch.Sync(ctx, accountID, path)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"account": accountID,
		"folders": len(paths),
	}).Info("Folder sweep finished")
	return nil
}

func selectablePaths(nodes []*types.FolderNode) []string {
	var paths []string
	for _, n := range nodes {
		if n.Selectable && !n.Synthetic {
			paths = append(paths, n.Path)
		}
		paths = append(paths, selectablePaths(n.Children)...)
	}
	return paths
}
