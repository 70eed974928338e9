package cache

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	"github.com/brandon/mailsync/pkg/types"
)

type folderRow struct {
	Path         string `db:"path"`
	DisplayName  string `db:"display_name"`
	Delimiter    string `db:"delimiter"`
	Flags        string `db:"flags"`
	SpecialUse   string `db:"special_use"`
	RemoteUnread int    `db:"remote_unread"`
}

// SaveFolders replaces the cached folder list of an account. Remote unread
// counts already recorded for surviving folders are kept.
func (c *Cache) SaveFolders(ctx context.Context, accountID string, mailboxes []types.Mailbox) error {
	return c.withTx(ctx, func(tx *sqlx.Tx) error {
		paths := make([]string, 0, len(mailboxes))
		for _, mb := range mailboxes {
			flags, err := json.Marshal(mb.Flags)
			if err != nil {
				return integrity(err, "failed to encode flags for %s", mb.Path)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO folders (account_id, path, display_name, delimiter, flags, special_use)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(account_id, path) DO UPDATE SET
					display_name = excluded.display_name,
					delimiter = excluded.delimiter,
					flags = excluded.flags,
					special_use = excluded.special_use`,
				accountID, mb.Path, mb.DisplayName, mb.Delimiter, string(flags), string(mb.SpecialUse))
			if err != nil {
				return integrity(err, "failed to save folder %s", mb.Path)
			}
			paths = append(paths, mb.Path)
		}

		query, args := `DELETE FROM folders WHERE account_id = ?`, []interface{}{accountID}
		if len(paths) > 0 {
			var err error
			query, args, err = sqlx.In(`DELETE FROM folders WHERE account_id = ? AND path NOT IN (?)`, accountID, paths)
			if err != nil {
				return integrity(err, "failed to build folder prune")
			}
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return integrity(err, "failed to prune folders")
		}
		return nil
	})
}

// ListFolders returns the cached folder descriptors of an account
func (c *Cache) ListFolders(ctx context.Context, accountID string) ([]types.Mailbox, error) {
	var rows []folderRow
	err := c.db.SelectContext(ctx, &rows, `
		SELECT path, display_name, delimiter, flags, special_use, remote_unread
		FROM folders WHERE account_id = ? ORDER BY path`, accountID)
	if err != nil {
		return nil, integrity(err, "failed to query folders")
	}

	mailboxes := make([]types.Mailbox, 0, len(rows))
	for _, r := range rows {
		var flags []string
		if err := json.Unmarshal([]byte(r.Flags), &flags); err != nil {
			return nil, integrity(err, "failed to decode flags for %s", r.Path)
		}
		mailboxes = append(mailboxes, types.Mailbox{
			Path:        r.Path,
			DisplayName: r.DisplayName,
			Delimiter:   r.Delimiter,
			Flags:       flags,
			SpecialUse:  types.SpecialUse(r.SpecialUse),
			Unread:      r.RemoteUnread,
		})
	}
	return mailboxes, nil
}

// SetRemoteUnread records the server's unseen count for a folder. A folder
// synced before it was ever listed gets a placeholder row that the next
// SaveFolders fills in.
func (c *Cache) SetRemoteUnread(ctx context.Context, accountID, folder string, unread int) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO folders (account_id, path, display_name, remote_unread)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, path) DO UPDATE SET remote_unread = excluded.remote_unread`,
		accountID, folder, folder, unread)
	if err != nil {
		return integrity(err, "failed to record unread count for %s", folder)
	}
	return nil
}
