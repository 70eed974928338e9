package types

import "time"

// CachedMessage is a message row as held in the local cache.
// (AccountID, FolderPath, UID) identifies it.
type CachedMessage struct {
	ID          int64        `json:"id"`
	AccountID   string       `json:"account_id"`
	FolderPath  string       `json:"folder_path"`
	UID         uint32       `json:"uid"`
	Subject     string       `json:"subject"`
	Sender      string       `json:"sender"`
	Date        time.Time    `json:"date"`
	Snippet     string       `json:"snippet"`
	BodyHTML    string       `json:"body_html,omitempty"`
	IsRead      bool         `json:"is_read"`
	IsDeleted   bool         `json:"is_deleted"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment belongs to exactly one cached message
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	Content     []byte `json:"-"`
	Checksum    string `json:"checksum"`
}

// FlagWindow describes the remote state of the most recent UIDs of a folder.
// Every UID the server holds between MinUID and MaxUID appears in Seen.
type FlagWindow struct {
	MinUID uint32          `json:"min_uid"`
	MaxUID uint32          `json:"max_uid"`
	Seen   map[uint32]bool `json:"seen"`
}

// Contains reports whether uid lies inside the window range
func (w FlagWindow) Contains(uid uint32) bool {
	return w.MaxUID > 0 && uid >= w.MinUID && uid <= w.MaxUID
}

// FetchResult is the outcome of one remote fetch for a folder
type FetchResult struct {
	Messages    []CachedMessage `json:"messages"`
	Window      FlagWindow      `json:"window"`
	UnreadCount int             `json:"unread_count"`
}

// SyncStatus is the terminal state of a reconciliation cycle
type SyncStatus string

const (
	SyncDone            SyncStatus = "done"
	SyncDegradedOffline SyncStatus = "degraded_offline"
	SyncSuperseded      SyncStatus = "superseded"
)

// SyncResult is the cache view returned after a reconciliation cycle
type SyncResult struct {
	Messages       []CachedMessage `json:"messages"`
	UnreadCount    int             `json:"unread_count"`
	Status         SyncStatus      `json:"status"`
	ReauthRequired bool            `json:"reauth_required,omitempty"`
}
