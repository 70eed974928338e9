package cache

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/brandon/mailsync/pkg/types"
)

// buildMatchQuery turns free text into an FTS5 prefix query. Each
// whitespace-separated token becomes a quoted prefix term and all terms
// must match.
func buildMatchQuery(query string) string {
	tokens := strings.Fields(query)
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.ReplaceAll(tok, `"`, `""`)
		terms = append(terms, `"`+tok+`"*`)
	}
	return strings.Join(terms, " ")
}

// Search performs a prefix full-text search over an account's non-deleted
// messages, newest first.
func (c *Cache) Search(ctx context.Context, accountID, query string, limit int) ([]types.CachedMessage, error) {
	match := buildMatchQuery(query)
	if match == "" {
		return []types.CachedMessage{}, nil
	}

	var rows []messageRow
	err := c.db.SelectContext(ctx, &rows, `
		SELECT m.id, m.account_id, m.folder, m.uid, m.subject, m.sender, m.date,
		       m.snippet, m.body_html, m.is_read, m.is_deleted
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.rowid
		WHERE messages_fts MATCH ? AND m.account_id = ? AND m.is_deleted = 0
		ORDER BY m.date DESC, messages_fts.rank
		LIMIT ?`, match, accountID, limit)
	if err != nil {
		return nil, integrity(err, "failed to search messages")
	}

	results := make([]types.CachedMessage, len(rows))
	for i, r := range rows {
		results[i] = r.toMessage()
	}

	c.logger.WithField("account", accountID).WithField("results", len(results)).Debug("Search completed")
	return results, nil
}

// RebuildSearchIndex repopulates the index from non-deleted message rows
func (c *Cache) RebuildSearchIndex(ctx context.Context) error {
	return c.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO messages_fts(messages_fts) VALUES ('delete-all')`); err != nil {
			return integrity(err, "failed to clear search index")
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages_fts(rowid, subject, sender, snippet, body_html)
			SELECT id, subject, sender, snippet, body_html FROM messages WHERE is_deleted = 0`)
		if err != nil {
			return integrity(err, "failed to rebuild search index")
		}
		return nil
	})
}
