package cache

type migration struct {
	version int
	sql     string
}

// migrations are applied in order; never edit a released entry.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id TEXT NOT NULL,
    folder TEXT NOT NULL,
    uid INTEGER NOT NULL,
    subject TEXT NOT NULL DEFAULT '',
    sender TEXT NOT NULL DEFAULT '',
    date INTEGER NOT NULL DEFAULT 0,
    snippet TEXT NOT NULL DEFAULT '',
    body_html TEXT NOT NULL DEFAULT '',
    is_read INTEGER NOT NULL DEFAULT 0,
    is_deleted INTEGER NOT NULL DEFAULT 0,
    UNIQUE(account_id, folder, uid)
);

CREATE INDEX IF NOT EXISTS idx_messages_folder ON messages(account_id, folder, is_deleted, uid);
CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date);

CREATE TABLE IF NOT EXISTS attachments (
    id TEXT PRIMARY KEY,
    message_id INTEGER NOT NULL,
    filename TEXT NOT NULL,
    content_type TEXT NOT NULL,
    size_bytes INTEGER NOT NULL,
    content BLOB,
    checksum TEXT NOT NULL,
    FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_attachments_message_id ON attachments(message_id);

CREATE TABLE IF NOT EXISTS pending_actions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id TEXT NOT NULL,
    action_type TEXT NOT NULL,
    payload TEXT NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    enqueued_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pending_actions_account ON pending_actions(account_id, id);

CREATE TABLE IF NOT EXISTS folders (
    account_id TEXT NOT NULL,
    path TEXT NOT NULL,
    display_name TEXT NOT NULL,
    delimiter TEXT NOT NULL DEFAULT '',
    flags TEXT NOT NULL DEFAULT '[]',
    special_use TEXT NOT NULL DEFAULT 'normal',
    remote_unread INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (account_id, path)
);

-- Index over non-deleted messages only
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    subject,
    sender,
    snippet,
    body_html,
    content='messages',
    content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS messages_fts_insert AFTER INSERT ON messages
WHEN new.is_deleted = 0 BEGIN
    INSERT INTO messages_fts(rowid, subject, sender, snippet, body_html)
    VALUES (new.id, new.subject, new.sender, new.snippet, new.body_html);
END;

CREATE TRIGGER IF NOT EXISTS messages_fts_update
AFTER UPDATE OF subject, sender, snippet, body_html, is_deleted ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, subject, sender, snippet, body_html)
    SELECT 'delete', old.id, old.subject, old.sender, old.snippet, old.body_html
    WHERE old.is_deleted = 0;
    INSERT INTO messages_fts(rowid, subject, sender, snippet, body_html)
    SELECT new.id, new.subject, new.sender, new.snippet, new.body_html
    WHERE new.is_deleted = 0;
END;

CREATE TRIGGER IF NOT EXISTS messages_fts_delete AFTER DELETE ON messages
WHEN old.is_deleted = 0 BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, subject, sender, snippet, body_html)
    VALUES ('delete', old.id, old.subject, old.sender, old.snippet, old.body_html);
END;

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
