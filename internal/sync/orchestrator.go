package sync

import (
	"context"
	"fmt"
	gosync "sync"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/config"
	"github.com/brandon/mailsync/internal/email"
	apperrors "github.com/brandon/mailsync/internal/errors"
	"github.com/brandon/mailsync/pkg/types"
)

// Remote is the remote mail adapter as seen by the orchestrator
type Remote interface {
	ListFolders(ctx context.Context, accountID string) ([]types.Mailbox, error)
	FetchMessages(ctx context.Context, accountID, folder string, sinceUID uint32) (*types.FetchResult, error)
	MoveToTrash(ctx context.Context, accountID, folder string, uid uint32) error
	SetSeenFlag(ctx context.Context, accountID, folder string, uid uint32) error
}

// Store is the local cache as seen by the orchestrator
type Store interface {
	UpsertMessages(ctx context.Context, accountID, folder string, messages []types.CachedMessage) (int, error)
	GetMessages(ctx context.Context, accountID, folder string, limit int) ([]types.CachedMessage, error)
	GetMessage(ctx context.Context, accountID, folder string, uid uint32) (*types.CachedMessage, error)
	MarkRead(ctx context.Context, accountID, folder string, uid uint32) error
	SoftDelete(ctx context.Context, accountID, folder string, uid uint32) error
	HighestUID(ctx context.Context, accountID, folder string) (uint32, error)
	UnreadCount(ctx context.Context, accountID, folder string) (int, error)
	ReconcileFlags(ctx context.Context, accountID, folder string, window types.FlagWindow) error
	Search(ctx context.Context, accountID, query string, limit int) ([]types.CachedMessage, error)

	Enqueue(ctx context.Context, accountID string, actionType types.ActionType, payload types.ActionPayload) (int64, error)
	ListPending(ctx context.Context, accountID string) ([]types.PendingAction, error)
	RemovePending(ctx context.Context, id int64) error
	IncrementAttempts(ctx context.Context, id int64) error

	SaveFolders(ctx context.Context, accountID string, mailboxes []types.Mailbox) error
	ListFolders(ctx context.Context, accountID string) ([]types.Mailbox, error)
	SetRemoteUnread(ctx context.Context, accountID, folder string, unread int) error
}

type cycleKey struct {
	account string
	folder  string
}

// cycleState tracks the latest reconciliation cycle of one account+folder
type cycleState struct {
	seq    uint64
	cancel context.CancelFunc
	write  gosync.Mutex
}

// Orchestrator reconciles remote mailboxes with the local cache. It is the
// only component that talks to both.
type Orchestrator struct {
	store       Store
	remote      Remote
	pageSize    int
	searchLimit int
	logger      *logrus.Logger

	mu     gosync.Mutex
	cycles map[cycleKey]*cycleState
	drains map[string]*gosync.Mutex
}

// NewOrchestrator creates a sync orchestrator
func NewOrchestrator(cfg *config.Config, store Store, remote Remote, logger *logrus.Logger) *Orchestrator {
	pageSize := cfg.PageSize
	if pageSize < 1 {
		pageSize = 100
	}
	searchLimit := cfg.SearchLimit
	if searchLimit < 1 {
		searchLimit = 50
	}
	return &Orchestrator{
		store:       store,
		remote:      remote,
		pageSize:    pageSize,
		searchLimit: searchLimit,
		logger:      logger,
		cycles:      make(map[cycleKey]*cycleState),
		drains:      make(map[string]*gosync.Mutex),
	}
}

// begin registers a new cycle for key, cancelling the one in flight.
// The returned func must be called when the cycle ends.
func (o *Orchestrator) begin(ctx context.Context, key cycleKey) (uint64, *cycleState, context.Context, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	state, ok := o.cycles[key]
	if !ok {
		state = &cycleState{}
		o.cycles[key] = state
	}
	if state.cancel != nil {
		state.cancel()
	}
	state.seq++
	seq := state.seq

	cycleCtx, cancel := context.WithCancel(ctx)
	state.cancel = cancel

	return seq, state, cycleCtx, func() {
		cancel()
		o.mu.Lock()
		if state.seq == seq {
			state.cancel = nil
		}
		o.mu.Unlock()
	}
}

func (o *Orchestrator) isCurrent(state *cycleState, seq uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return state.seq == seq
}

func (o *Orchestrator) drainLock(accountID string) *gosync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	lock, ok := o.drains[accountID]
	if !ok {
		lock = &gosync.Mutex{}
		o.drains[accountID] = lock
	}
	return lock
}

// Sync runs one reconciliation cycle for a folder and returns the cache view.
// Remote failures degrade to cache-only results; only storage failures are
// returned as errors.
func (o *Orchestrator) Sync(ctx context.Context, accountID, folder string) (*types.SyncResult, error) {
	key := cycleKey{account: accountID, folder: folder}
	seq, state, cycleCtx, end := o.begin(ctx, key)
	defer end()

	log := o.logger.WithFields(logrus.Fields{
		"account": accountID,
		"folder":  folder,
		"seq":     seq,
	})
	result := &types.SyncResult{Status: types.SyncDone}

	log.WithField("state", "drain_queue").Debug("Sync state")
	if _, err := o.DrainQueue(cycleCtx, accountID); err != nil {
		if apperrors.IsCacheIntegrity(err) {
			return nil, err
		}
		if apperrors.IsAuthExhausted(err) {
			result.ReauthRequired = true
		}
		log.WithError(err).Debug("Queue blocked, continuing with fetch")
	}

	log.WithField("state", "fetch_remote").Debug("Sync state")
	since, err := o.store.HighestUID(ctx, accountID, folder)
	if err != nil {
		return nil, err
	}

	fetched, err := o.remote.FetchMessages(cycleCtx, accountID, folder, since)
	switch {
	case err != nil && !o.isCurrent(state, seq):
		log.WithError(err).Debug("Fetch abandoned by newer cycle")
		result.Status = types.SyncSuperseded
	case err != nil:
		if apperrors.IsAuthExhausted(err) {
			result.ReauthRequired = true
			log.WithError(err).Error("Re-authentication required, serving cache")
		} else {
			log.WithError(err).Warn("Remote unavailable, serving cache")
		}
		log.WithField("state", "degraded_offline").Debug("Sync state")
		result.Status = types.SyncDegradedOffline
	default:
		log.WithField("state", "write_cache").Debug("Sync state")
		applied, err := o.writeCache(ctx, state, seq, accountID, folder, fetched)
		if err != nil {
			return nil, err
		}
		if !applied {
			log.Debug("Discarding stale fetch result")
			result.Status = types.SyncSuperseded
		}
	}

	if result.Messages, err = o.store.GetMessages(ctx, accountID, folder, o.pageSize); err != nil {
		return nil, err
	}
	if result.UnreadCount, err = o.store.UnreadCount(ctx, accountID, folder); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"state":    result.Status,
		"messages": len(result.Messages),
		"unread":   result.UnreadCount,
	}).Debug("Sync finished")
	return result, nil
}

// writeCache applies a fetch result unless a newer cycle has started for
// the same folder. Writes for one folder are serialized.
func (o *Orchestrator) writeCache(ctx context.Context, state *cycleState, seq uint64, accountID, folder string, fetched *types.FetchResult) (bool, error) {
	state.write.Lock()
	defer state.write.Unlock()

	if !o.isCurrent(state, seq) {
		return false, nil
	}

	inserted, err := o.store.UpsertMessages(ctx, accountID, folder, fetched.Messages)
	if err != nil {
		return false, err
	}
	if err := o.store.ReconcileFlags(ctx, accountID, folder, fetched.Window); err != nil {
		return false, err
	}
	if err := o.store.SetRemoteUnread(ctx, accountID, folder, fetched.UnreadCount); err != nil {
		return false, err
	}

	o.logger.WithFields(logrus.Fields{
		"account":  accountID,
		"folder":   folder,
		"inserted": inserted,
	}).Debug("Wrote fetch result")
	return true, nil
}

// DrainQueue replays an account's pending actions in enqueue order and
// stops at the first action that cannot be delivered. Actions the server
// rejects are dropped. It returns how many actions left the queue.
func (o *Orchestrator) DrainQueue(ctx context.Context, accountID string) (int, error) {
	lock := o.drainLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	return o.drainLocked(ctx, accountID)
}

func (o *Orchestrator) drainLocked(ctx context.Context, accountID string) (int, error) {
	// Queue bookkeeping must outlive a cancelled or superseded cycle
	store := context.WithoutCancel(ctx)

	actions, err := o.store.ListPending(store, accountID)
	if err != nil {
		return 0, err
	}

	drained := 0
	for _, action := range actions {
		log := o.logger.WithFields(logrus.Fields{
			"account":   accountID,
			"action_id": action.ID,
			"action":    action.Type,
			"uid":       action.Payload.UID,
			"folder":    action.Payload.Folder,
		})

		err := o.apply(ctx, accountID, action.Type, action.Payload)
		if err != nil && !apperrors.IsServerRejected(err) {
			if ctx.Err() != nil {
				log.WithError(err).Debug("Replay interrupted")
				return drained, err
			}
			log.WithError(err).WithField("attempts", action.Attempts+1).Warn("Replay failed, queue halted")
			if incErr := o.store.IncrementAttempts(store, action.ID); incErr != nil {
				return drained, incErr
			}
			return drained, err
		}
		if err != nil {
			log.WithError(err).Warn("Server rejected queued action, dropping it")
		}

		if err := o.store.RemovePending(store, action.ID); err != nil {
			return drained, err
		}
		drained++
		log.Debug("Replayed pending action")
	}
	return drained, nil
}

// apply performs a mutation against the remote
func (o *Orchestrator) apply(ctx context.Context, accountID string, actionType types.ActionType, payload types.ActionPayload) error {
	switch actionType {
	case types.ActionDelete:
		return o.remote.MoveToTrash(ctx, accountID, payload.Folder, payload.UID)
	case types.ActionMarkRead:
		return o.remote.SetSeenFlag(ctx, accountID, payload.Folder, payload.UID)
	default:
		return apperrors.Mark(apperrors.ErrServerRejected, fmt.Errorf("unknown action type %q", actionType))
	}
}

// Delete soft-deletes a message locally and moves it to the trash remotely,
// queuing the move when the remote cannot be reached.
func (o *Orchestrator) Delete(ctx context.Context, accountID, folder string, uid uint32) error {
	if err := o.store.SoftDelete(ctx, accountID, folder, uid); err != nil {
		return err
	}
	return o.push(ctx, accountID, types.ActionDelete, types.ActionPayload{UID: uid, Folder: folder})
}

// MarkRead marks a message read locally and sets \Seen remotely, queuing the
// flag change when the remote cannot be reached.
func (o *Orchestrator) MarkRead(ctx context.Context, accountID, folder string, uid uint32) error {
	if err := o.store.MarkRead(ctx, accountID, folder, uid); err != nil {
		return err
	}
	return o.push(ctx, accountID, types.ActionMarkRead, types.ActionPayload{UID: uid, Folder: folder})
}

// push delivers a mutation that has already been applied to the cache.
// Earlier queued actions go first; if they cannot all be delivered the new
// one is queued behind them.
func (o *Orchestrator) push(ctx context.Context, accountID string, actionType types.ActionType, payload types.ActionPayload) error {
	lock := o.drainLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	pending, err := o.store.ListPending(context.WithoutCancel(ctx), accountID)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		if _, err := o.drainLocked(ctx, accountID); err != nil {
			if apperrors.IsCacheIntegrity(err) {
				return err
			}
			return o.queueAction(ctx, accountID, actionType, payload, err)
		}
	}

	err = o.apply(ctx, accountID, actionType, payload)
	switch {
	case err == nil:
		return nil
	case apperrors.IsServerRejected(err):
		o.logger.WithError(err).WithFields(logrus.Fields{
			"account": accountID,
			"action":  actionType,
			"uid":     payload.UID,
		}).Warn("Server rejected action, keeping local state")
		return nil
	default:
		return o.queueAction(ctx, accountID, actionType, payload, err)
	}
}

// queueAction queues a mutation whose delivery failed with cause. The caller
// sees success unless re-authentication is required.
func (o *Orchestrator) queueAction(ctx context.Context, accountID string, actionType types.ActionType, payload types.ActionPayload, cause error) error {
	// The local change is already applied, so the action is queued even when
	// the caller has gone away.
	if _, err := o.store.Enqueue(context.WithoutCancel(ctx), accountID, actionType, payload); err != nil {
		return err
	}
	if apperrors.IsAuthExhausted(cause) {
		return cause
	}
	o.logger.WithError(cause).WithFields(logrus.Fields{
		"account": accountID,
		"action":  actionType,
		"uid":     payload.UID,
	}).Info("Remote unavailable, action deferred")
	return nil
}

// GetCached returns the cached messages of a folder without touching the remote
func (o *Orchestrator) GetCached(ctx context.Context, accountID, folder string) ([]types.CachedMessage, error) {
	return o.store.GetMessages(ctx, accountID, folder, o.pageSize)
}

// GetMessage returns one cached message with its attachments
func (o *Orchestrator) GetMessage(ctx context.Context, accountID, folder string, uid uint32) (*types.CachedMessage, error) {
	return o.store.GetMessage(ctx, accountID, folder, uid)
}

// Search runs a prefix full-text search over an account's cached messages
func (o *Orchestrator) Search(ctx context.Context, accountID, query string) ([]types.CachedMessage, error) {
	return o.store.Search(ctx, accountID, query, o.searchLimit)
}

// ListFolders lists an account's folders from the remote and refreshes the
// folder cache. When the remote fails the cached list is served.
func (o *Orchestrator) ListFolders(ctx context.Context, accountID string) (*types.FolderListing, error) {
	listing := &types.FolderListing{}

	folders, err := o.remote.ListFolders(ctx, accountID)
	if err == nil {
		if err := o.store.SaveFolders(ctx, accountID, folders); err != nil {
			return nil, err
		}
		if err := o.mergeUnread(ctx, accountID, folders); err != nil {
			return nil, err
		}
	} else {
		log := o.logger.WithError(err).WithField("account", accountID)
		if apperrors.IsAuthExhausted(err) {
			listing.ReauthRequired = true
			log.Error("Re-authentication required, serving cached folders")
		} else {
			log.Warn("Remote unavailable, serving cached folders")
		}
		listing.Offline = true

		if folders, err = o.store.ListFolders(ctx, accountID); err != nil {
			return nil, err
		}
	}

	listing.Folders = folders
	listing.Tree = email.BuildFolderTree(folders)
	return listing, nil
}

// mergeUnread copies the unread counts recorded by earlier cycles onto a
// live folder listing.
func (o *Orchestrator) mergeUnread(ctx context.Context, accountID string, folders []types.Mailbox) error {
	cached, err := o.store.ListFolders(ctx, accountID)
	if err != nil {
		return err
	}
	unread := make(map[string]int, len(cached))
	for _, mb := range cached {
		unread[mb.Path] = mb.Unread
	}
	for i := range folders {
		folders[i].Unread = unread[folders[i].Path]
	}
	return nil
}
