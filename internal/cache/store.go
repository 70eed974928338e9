package cache

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	apperrors "github.com/brandon/mailsync/internal/errors"
	"github.com/brandon/mailsync/pkg/types"
)

// messageRow mirrors the messages table
type messageRow struct {
	ID        int64  `db:"id"`
	AccountID string `db:"account_id"`
	Folder    string `db:"folder"`
	UID       int64  `db:"uid"`
	Subject   string `db:"subject"`
	Sender    string `db:"sender"`
	Date      int64  `db:"date"`
	Snippet   string `db:"snippet"`
	BodyHTML  string `db:"body_html"`
	IsRead    bool   `db:"is_read"`
	IsDeleted bool   `db:"is_deleted"`
}

func (r messageRow) toMessage() types.CachedMessage {
	return types.CachedMessage{
		ID:         r.ID,
		AccountID:  r.AccountID,
		FolderPath: r.Folder,
		UID:        uint32(r.UID),
		Subject:    r.Subject,
		Sender:     r.Sender,
		Date:       time.UnixMilli(r.Date).UTC(),
		Snippet:    r.Snippet,
		BodyHTML:   r.BodyHTML,
		IsRead:     r.IsRead,
		IsDeleted:  r.IsDeleted,
	}
}

type attachmentRow struct {
	ID          string `db:"id"`
	MessageID   int64  `db:"message_id"`
	Filename    string `db:"filename"`
	ContentType string `db:"content_type"`
	SizeBytes   int64  `db:"size_bytes"`
	Content     []byte `db:"content"`
	Checksum    string `db:"checksum"`
}

const messageColumns = `id, account_id, folder, uid, subject, sender, date, snippet, body_html, is_read, is_deleted`

// UpsertMessages inserts messages keyed by (account, folder, uid). Existing
// rows are left untouched. Attachments are written in the same transaction.
func (c *Cache) UpsertMessages(ctx context.Context, accountID, folder string, messages []types.CachedMessage) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	inserted := 0
	err := c.withTx(ctx, func(tx *sqlx.Tx) error {
		msgStmt, err := tx.PreparexContext(ctx, `
			INSERT OR IGNORE INTO messages (account_id, folder, uid, subject, sender, date, snippet, body_html, is_read, is_deleted)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`)
		if err != nil {
			return integrity(err, "failed to prepare message insert")
		}
		defer msgStmt.Close()

		attStmt, err := tx.PreparexContext(ctx, `
			INSERT INTO attachments (id, message_id, filename, content_type, size_bytes, content, checksum)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return integrity(err, "failed to prepare attachment insert")
		}
		defer attStmt.Close()

		for _, m := range messages {
			res, err := msgStmt.ExecContext(ctx,
				accountID, folder, m.UID, m.Subject, m.Sender, m.Date.UnixMilli(),
				m.Snippet, m.BodyHTML, m.IsRead,
			)
			if err != nil {
				return integrity(err, "failed to insert message %d", m.UID)
			}

			affected, err := res.RowsAffected()
			if err != nil {
				return integrity(err, "failed to read insert result")
			}
			if affected == 0 {
				continue
			}
			inserted++

			messageID, err := res.LastInsertId()
			if err != nil {
				return integrity(err, "failed to read message id")
			}

			for _, a := range m.Attachments {
				checksum := a.Checksum
				if checksum == "" {
					sum := md5.Sum(a.Content)
					checksum = hex.EncodeToString(sum[:])
				}
				if _, err := attStmt.ExecContext(ctx,
					uuid.New().String(), messageID, a.Filename, a.ContentType, a.SizeBytes, a.Content, checksum,
				); err != nil {
					return integrity(err, "failed to insert attachment for message %d", m.UID)
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	c.logger.WithFields(logrus.Fields{
		"account":  accountID,
		"folder":   folder,
		"received": len(messages),
		"inserted": inserted,
	}).Debug("Upserted messages")

	return inserted, nil
}

// GetMessages returns the most recent non-deleted messages of a folder,
// highest UID first.
func (c *Cache) GetMessages(ctx context.Context, accountID, folder string, limit int) ([]types.CachedMessage, error) {
	var rows []messageRow
	err := c.db.SelectContext(ctx, &rows, `
		SELECT `+messageColumns+` FROM messages
		WHERE account_id = ? AND folder = ? AND is_deleted = 0
		ORDER BY uid DESC
		LIMIT ?`, accountID, folder, limit)
	if err != nil {
		return nil, integrity(err, "failed to query messages")
	}

	messages := make([]types.CachedMessage, len(rows))
	for i, r := range rows {
		messages[i] = r.toMessage()
	}
	return messages, nil
}

// GetMessage returns one message with its attachments, deleted or not
func (c *Cache) GetMessage(ctx context.Context, accountID, folder string, uid uint32) (*types.CachedMessage, error) {
	var row messageRow
	err := c.db.GetContext(ctx, &row, `
		SELECT `+messageColumns+` FROM messages
		WHERE account_id = ? AND folder = ? AND uid = ?`, accountID, folder, uid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, fmt.Sprintf("message %d in %s", uid, folder))
		}
		return nil, integrity(err, "failed to get message")
	}

	msg := row.toMessage()
	attachments, err := c.GetAttachments(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	msg.Attachments = attachments
	return &msg, nil
}

// GetAttachments returns the attachments owned by a message row
func (c *Cache) GetAttachments(ctx context.Context, messageID int64) ([]types.Attachment, error) {
	var rows []attachmentRow
	err := c.db.SelectContext(ctx, &rows, `
		SELECT id, message_id, filename, content_type, size_bytes, content, checksum
		FROM attachments WHERE message_id = ? ORDER BY filename`, messageID)
	if err != nil {
		return nil, integrity(err, "failed to query attachments")
	}

	attachments := make([]types.Attachment, len(rows))
	for i, r := range rows {
		attachments[i] = types.Attachment{
			ID:          r.ID,
			Filename:    r.Filename,
			ContentType: r.ContentType,
			SizeBytes:   r.SizeBytes,
			Content:     r.Content,
			Checksum:    r.Checksum,
		}
	}
	return attachments, nil
}

// MarkRead sets is_read on one message. Re-applying is a no-op.
func (c *Cache) MarkRead(ctx context.Context, accountID, folder string, uid uint32) error {
	return c.setFlag(ctx, "is_read", accountID, folder, uid)
}

// SoftDelete sets is_deleted on one message, which also drops it from the
// search index. Re-applying is a no-op.
func (c *Cache) SoftDelete(ctx context.Context, accountID, folder string, uid uint32) error {
	return c.setFlag(ctx, "is_deleted", accountID, folder, uid)
}

func (c *Cache) setFlag(ctx context.Context, column, accountID, folder string, uid uint32) error {
	var exists int
	err := c.db.GetContext(ctx, &exists,
		`SELECT COUNT(*) FROM messages WHERE account_id = ? AND folder = ? AND uid = ?`,
		accountID, folder, uid)
	if err != nil {
		return integrity(err, "failed to look up message %d", uid)
	}
	if exists == 0 {
		return apperrors.Wrap(apperrors.ErrNotFound, fmt.Sprintf("message %d in %s", uid, folder))
	}

	// column is one of two constants above
	query := fmt.Sprintf(
		`UPDATE messages SET %s = 1 WHERE account_id = ? AND folder = ? AND uid = ? AND %s = 0`,
		column, column)
	if _, err := c.db.ExecContext(ctx, query, accountID, folder, uid); err != nil {
		return integrity(err, "failed to set %s on message %d", column, uid)
	}
	return nil
}

// HighestUID returns the largest cached UID for a folder, or 0
func (c *Cache) HighestUID(ctx context.Context, accountID, folder string) (uint32, error) {
	var uid int64
	err := c.db.GetContext(ctx, &uid,
		`SELECT COALESCE(MAX(uid), 0) FROM messages WHERE account_id = ? AND folder = ?`,
		accountID, folder)
	if err != nil {
		return 0, integrity(err, "failed to read highest uid")
	}
	return uint32(uid), nil
}

// UnreadCount counts non-deleted unread messages of a folder
func (c *Cache) UnreadCount(ctx context.Context, accountID, folder string) (int, error) {
	var count int
	err := c.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM messages
		WHERE account_id = ? AND folder = ? AND is_deleted = 0 AND is_read = 0`,
		accountID, folder)
	if err != nil {
		return 0, integrity(err, "failed to count unread messages")
	}
	return count, nil
}

// ReconcileFlags applies remote flag state for the UIDs inside window.
// The server wins except for UIDs that still have a queued local mutation.
// Cached rows inside the window range that the server no longer lists are
// soft-deleted.
func (c *Cache) ReconcileFlags(ctx context.Context, accountID, folder string, window types.FlagWindow) error {
	if window.MaxUID == 0 {
		return nil
	}

	return c.withTx(ctx, func(tx *sqlx.Tx) error {
		pending, err := pendingUIDs(ctx, tx, accountID, folder)
		if err != nil {
			return err
		}

		var rows []struct {
			UID    int64 `db:"uid"`
			IsRead bool  `db:"is_read"`
		}
		err = tx.SelectContext(ctx, &rows, `
			SELECT uid, is_read FROM messages
			WHERE account_id = ? AND folder = ? AND is_deleted = 0 AND uid BETWEEN ? AND ?`,
			accountID, folder, window.MinUID, window.MaxUID)
		if err != nil {
			return integrity(err, "failed to load flag window")
		}

		for _, r := range rows {
			uid := uint32(r.UID)
			if pending[uid] {
				continue
			}

			seen, present := window.Seen[uid]
			switch {
			case !present:
				_, err = tx.ExecContext(ctx,
					`UPDATE messages SET is_deleted = 1 WHERE account_id = ? AND folder = ? AND uid = ?`,
					accountID, folder, uid)
			case seen != r.IsRead:
				_, err = tx.ExecContext(ctx,
					`UPDATE messages SET is_read = ? WHERE account_id = ? AND folder = ? AND uid = ?`,
					seen, accountID, folder, uid)
			default:
				continue
			}
			if err != nil {
				return integrity(err, "failed to reconcile message %d", uid)
			}
		}
		return nil
	})
}

// pendingUIDs returns the UIDs of folder that have queued mutations
func pendingUIDs(ctx context.Context, q sqlx.QueryerContext, accountID, folder string) (map[uint32]bool, error) {
	var payloads []string
	err := sqlx.SelectContext(ctx, q, &payloads,
		`SELECT payload FROM pending_actions WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, integrity(err, "failed to load pending actions")
	}

	uids := make(map[uint32]bool, len(payloads))
	for _, raw := range payloads {
		p, err := types.DecodePayload(raw)
		if err != nil {
			return nil, integrity(err, "failed to decode pending payload")
		}
		if p.Folder == folder {
			uids[p.UID] = true
		}
	}
	return uids, nil
}
