package types

// SpecialUse classifies a mailbox by role
type SpecialUse string

const (
	SpecialInbox   SpecialUse = "inbox"
	SpecialSent    SpecialUse = "sent"
	SpecialDrafts  SpecialUse = "drafts"
	SpecialTrash   SpecialUse = "trash"
	SpecialJunk    SpecialUse = "junk"
	SpecialArchive SpecialUse = "archive"
	SpecialNormal  SpecialUse = "normal"
)

// Mailbox describes a remote folder
type Mailbox struct {
	Path        string     `json:"path"`
	DisplayName string     `json:"display_name"`
	Delimiter   string     `json:"delimiter"`
	Flags       []string   `json:"flags"`
	SpecialUse  SpecialUse `json:"special_use"`
	// Unread is the server's unseen count as of the folder's last sync
	Unread int `json:"unread"`
}

// FolderNode is one node of the reconstructed folder tree.
// Synthetic nodes carry no cache rows.
type FolderNode struct {
	Mailbox
	Selectable bool          `json:"selectable"`
	Synthetic  bool          `json:"synthetic,omitempty"`
	Children   []*FolderNode `json:"children,omitempty"`
}

// FolderListing is the folder list of an account with its tree. Offline
// listings come from the cache.
type FolderListing struct {
	Folders        []Mailbox     `json:"folders"`
	Tree           []*FolderNode `json:"tree"`
	Offline        bool          `json:"offline,omitempty"`
	ReauthRequired bool          `json:"reauth_required,omitempty"`
}
