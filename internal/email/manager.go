package email

import (
	"context"
	"fmt"
	"sort"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"

	apperrors "github.com/brandon/mailsync/internal/errors"
	"github.com/brandon/mailsync/pkg/types"
)

// SessionProvider hands out connected sessions, renewing credentials as needed
type SessionProvider interface {
	GetConnectedSession(ctx context.Context, accountID string) (Session, error)
}

// Adapter performs remote mailbox operations. Every call opens its own
// session and closes it before returning.
type Adapter struct {
	sessions   SessionProvider
	fetchLimit int
	logger     *logrus.Logger
}

// NewAdapter creates a remote mail adapter. fetchLimit bounds the number of
// most recent messages inspected per fetch.
func NewAdapter(sessions SessionProvider, fetchLimit int, logger *logrus.Logger) *Adapter {
	if fetchLimit < 1 {
		fetchLimit = 50
	}
	return &Adapter{
		sessions:   sessions,
		fetchLimit: fetchLimit,
		logger:     logger,
	}
}

// withSession acquires a session, runs fn and always releases the session.
// Cancelling ctx tears the connection down.
func (a *Adapter) withSession(ctx context.Context, accountID string, fn func(Session) error) error {
	sess, err := a.sessions.GetConnectedSession(ctx, accountID)
	if err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		sess.Terminate() //nolint:errcheck
	})
	defer func() {
		if stop() {
			if err := sess.Logout(); err != nil {
				a.logger.WithError(err).WithField("account", accountID).Debug("Logout failed")
			}
		}
	}()

	if err := fn(sess); err != nil {
		if ctx.Err() != nil {
			return apperrors.Mark(apperrors.ErrRemoteUnavailable, fmt.Errorf("session aborted: %w", ctx.Err()))
		}
		return classifyRemote(err)
	}
	return nil
}

func listMailboxes(s Session) ([]types.Mailbox, error) {
	ch := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.List("", "*", ch)
	}()

	var mailboxes []types.Mailbox
	for m := range ch {
		mailboxes = append(mailboxes, ToMailbox(m))
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return mailboxes, nil
}

// ListFolders lists and classifies every folder of the account
func (a *Adapter) ListFolders(ctx context.Context, accountID string) ([]types.Mailbox, error) {
	var mailboxes []types.Mailbox
	err := a.withSession(ctx, accountID, func(s Session) error {
		var err error
		mailboxes, err = listMailboxes(s)
		return err
	})
	if err != nil {
		return nil, err
	}

	a.logger.WithFields(logrus.Fields{
		"account": accountID,
		"count":   len(mailboxes),
	}).Debug("Listed folders")
	return mailboxes, nil
}

func fetchAll(s Session, set *imap.SeqSet, items []imap.FetchItem) ([]*imap.Message, error) {
	ch := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.UidFetch(set, items, ch)
	}()

	var msgs []*imap.Message
	for m := range ch {
		msgs = append(msgs, m)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return msgs, nil
}

// FetchMessages reads the unseen count, the flag state of the most recent
// messages, and the full content of those newer than sinceUID.
func (a *Adapter) FetchMessages(ctx context.Context, accountID, folder string, sinceUID uint32) (*types.FetchResult, error) {
	result := &types.FetchResult{Window: types.FlagWindow{Seen: map[uint32]bool{}}}

	err := a.withSession(ctx, accountID, func(s Session) error {
		status, err := s.Status(folder, []imap.StatusItem{imap.StatusUnseen})
		if err != nil {
			return fmt.Errorf("failed to read folder status: %w", err)
		}
		result.UnreadCount = int(status.Unseen)

		mbox, err := s.Select(folder, true)
		if err != nil {
			return fmt.Errorf("failed to select folder: %w", err)
		}
		if mbox.Messages == 0 {
			// Everything the cache holds for this folder is gone
			result.Window.MinUID = 1
			result.Window.MaxUID = ^uint32(0)
			return nil
		}

		uids, err := s.UidSearch(imap.NewSearchCriteria())
		if err != nil {
			return fmt.Errorf("failed to search folder: %w", err)
		}
		if len(uids) == 0 {
			return nil
		}
		sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
		if len(uids) > a.fetchLimit {
			uids = uids[len(uids)-a.fetchLimit:]
		}
		result.Window.MinUID = uids[0]
		result.Window.MaxUID = uids[len(uids)-1]

		windowSet := new(imap.SeqSet)
		windowSet.AddNum(uids...)
		flagged, err := fetchAll(s, windowSet, []imap.FetchItem{imap.FetchUid, imap.FetchFlags})
		if err != nil {
			return err
		}
		for _, m := range flagged {
			result.Window.Seen[m.Uid] = hasAttr(m.Flags, imap.SeenFlag)
		}

		newSet := new(imap.SeqSet)
		for _, uid := range uids {
			if uid > sinceUID {
				newSet.AddNum(uid)
			}
		}
		if newSet.Empty() {
			return nil
		}

		section := &imap.BodySectionName{Peek: true}
		items := []imap.FetchItem{imap.FetchUid, imap.FetchFlags, imap.FetchEnvelope, imap.FetchInternalDate, section.FetchItem()}
		full, err := fetchAll(s, newSet, items)
		if err != nil {
			return err
		}
		for _, m := range full {
			result.Messages = append(result.Messages, a.toCachedMessage(m, section))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.logger.WithFields(logrus.Fields{
		"account": accountID,
		"folder":  folder,
		"new":     len(result.Messages),
		"window":  len(result.Window.Seen),
		"unread":  result.UnreadCount,
	}).Debug("Fetched folder")
	return result, nil
}

// requireUID selects folder and fails with ErrServerRejected when the folder
// or the message no longer exists.
func requireUID(s Session, folder string, uid uint32) (*imap.SeqSet, error) {
	if _, err := s.Select(folder, false); err != nil {
		if gone, listErr := folderGone(s, folder); listErr == nil && gone {
			return nil, apperrors.Mark(apperrors.ErrServerRejected, fmt.Errorf("folder %s no longer exists: %w", folder, err))
		}
		return nil, fmt.Errorf("failed to select folder: %w", err)
	}

	set := new(imap.SeqSet)
	set.AddNum(uid)

	criteria := imap.NewSearchCriteria()
	criteria.Uid = set
	found, err := s.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to look up message: %w", err)
	}
	if len(found) == 0 {
		return nil, apperrors.Mark(apperrors.ErrServerRejected, fmt.Errorf("message %d not found in %s", uid, folder))
	}
	return set, nil
}

// folderGone reports whether LIST no longer returns folder
func folderGone(s Session, folder string) (bool, error) {
	mailboxes, err := listMailboxes(s)
	if err != nil {
		return false, err
	}
	for _, mb := range mailboxes {
		if mb.Path == folder {
			return false, nil
		}
	}
	return true, nil
}

// MoveToTrash moves a message into the account's trash folder
func (a *Adapter) MoveToTrash(ctx context.Context, accountID, folder string, uid uint32) error {
	return a.withSession(ctx, accountID, func(s Session) error {
		mailboxes, err := listMailboxes(s)
		if err != nil {
			return err
		}
		trash := resolveTrash(mailboxes)
		if trash == folder {
			return nil
		}

		set, err := requireUID(s, folder, uid)
		if err != nil {
			return err
		}
		if err := s.UidMove(set, trash); err != nil {
			return fmt.Errorf("failed to move message to %s: %w", trash, err)
		}

		a.logger.WithFields(logrus.Fields{
			"account": accountID,
			"folder":  folder,
			"uid":     uid,
			"trash":   trash,
		}).Info("Moved message to trash")
		return nil
	})
}

// SetSeenFlag adds \Seen to a message
func (a *Adapter) SetSeenFlag(ctx context.Context, accountID, folder string, uid uint32) error {
	return a.withSession(ctx, accountID, func(s Session) error {
		set, err := requireUID(s, folder, uid)
		if err != nil {
			return err
		}
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := s.UidStore(set, item, []interface{}{imap.SeenFlag}, nil); err != nil {
			return fmt.Errorf("failed to set seen flag: %w", err)
		}
		return nil
	})
}
