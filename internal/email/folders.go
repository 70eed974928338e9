package email

import (
	"sort"
	"strings"

	"github.com/emersion/go-imap"

	"github.com/brandon/mailsync/pkg/types"
)

// CustomFoldersName labels the synthetic container for unclassified folders
const CustomFoldersName = "Custom Folders"

var specialUseAttrs = map[string]types.SpecialUse{
	imap.SentAttr:    types.SpecialSent,
	imap.DraftsAttr:  types.SpecialDrafts,
	imap.TrashAttr:   types.SpecialTrash,
	imap.JunkAttr:    types.SpecialJunk,
	imap.ArchiveAttr: types.SpecialArchive,
	imap.AllAttr:     types.SpecialArchive,
}

// Localized names for servers that omit RFC 6154 attributes, lower case
var specialUseNames = map[string]types.SpecialUse{
	"sent":             types.SpecialSent,
	"sent items":       types.SpecialSent,
	"sent mail":        types.SpecialSent,
	"sent messages":    types.SpecialSent,
	"gesendet":         types.SpecialSent,
	"envoyés":          types.SpecialSent,
	"drafts":           types.SpecialDrafts,
	"draft":            types.SpecialDrafts,
	"entwürfe":         types.SpecialDrafts,
	"brouillons":       types.SpecialDrafts,
	"trash":            types.SpecialTrash,
	"bin":              types.SpecialTrash,
	"deleted items":    types.SpecialTrash,
	"deleted messages": types.SpecialTrash,
	"papierkorb":       types.SpecialTrash,
	"corbeille":        types.SpecialTrash,
	"papelera":         types.SpecialTrash,
	"junk":             types.SpecialJunk,
	"spam":             types.SpecialJunk,
	"junk e-mail":      types.SpecialJunk,
	"bulk mail":        types.SpecialJunk,
	"archive":          types.SpecialArchive,
	"archives":         types.SpecialArchive,
	"all mail":         types.SpecialArchive,
}

// Root order of special folders in the tree
var specialOrder = []types.SpecialUse{
	types.SpecialInbox,
	types.SpecialDrafts,
	types.SpecialSent,
	types.SpecialArchive,
	types.SpecialJunk,
	types.SpecialTrash,
}

// trashFallbacks are tried when no folder carries the \Trash attribute
var trashFallbacks = []string{"[Gmail]/Trash", "[Gmail]/Bin", "Trash", "Deleted Items", "Deleted Messages"}

// defaultTrash is used when nothing else matches
const defaultTrash = "INBOX.Trash"

func lastSegment(path, delimiter string) string {
	if delimiter == "" {
		return path
	}
	if i := strings.LastIndex(path, delimiter); i >= 0 {
		return path[i+len(delimiter):]
	}
	return path
}

func hasAttr(attrs []string, want string) bool {
	for _, a := range attrs {
		if strings.EqualFold(a, want) {
			return true
		}
	}
	return false
}

// classify resolves the role of a folder: special-use attribute first, then
// name heuristics on the last path segment.
func classify(path, delimiter string, attrs []string) types.SpecialUse {
	if strings.EqualFold(path, "INBOX") {
		return types.SpecialInbox
	}
	for _, a := range attrs {
		for attr, use := range specialUseAttrs {
			if strings.EqualFold(a, attr) {
				return use
			}
		}
	}
	if use, ok := specialUseNames[strings.ToLower(lastSegment(path, delimiter))]; ok {
		return use
	}
	return types.SpecialNormal
}

// ToMailbox converts a LIST response into a classified descriptor
func ToMailbox(info *imap.MailboxInfo) types.Mailbox {
	use := classify(info.Name, info.Delimiter, info.Attributes)

	name := lastSegment(info.Name, info.Delimiter)
	if use == types.SpecialInbox {
		name = "Inbox"
	}

	attrs := make([]string, len(info.Attributes))
	copy(attrs, info.Attributes)

	return types.Mailbox{
		Path:        info.Name,
		DisplayName: name,
		Delimiter:   info.Delimiter,
		Flags:       attrs,
		SpecialUse:  use,
	}
}

// resolveTrash picks the folder deleted messages are moved to
func resolveTrash(mailboxes []types.Mailbox) string {
	for _, mb := range mailboxes {
		if hasAttr(mb.Flags, imap.TrashAttr) {
			return mb.Path
		}
	}
	for _, candidate := range trashFallbacks {
		for _, mb := range mailboxes {
			if strings.EqualFold(mb.Path, candidate) {
				return mb.Path
			}
		}
	}
	return defaultTrash
}

// BuildFolderTree reconstructs the presentation tree from flat descriptors.
// Special folders sit at the root in a fixed order. Other folders nest under
// the folder obtained by stripping their last path segment; those without a
// parent go under a synthetic, non-selectable "Custom Folders" node.
// Non-selectable folders left without children are dropped.
func BuildFolderTree(mailboxes []types.Mailbox) []*types.FolderNode {
	nodes := make(map[string]*types.FolderNode, len(mailboxes))
	for _, mb := range mailboxes {
		nodes[mb.Path] = &types.FolderNode{
			Mailbox:    mb,
			Selectable: !hasAttr(mb.Flags, imap.NoSelectAttr) && !hasAttr(mb.Flags, "\\NonExistent"),
		}
	}

	var specials, orphans []*types.FolderNode
	for _, mb := range mailboxes {
		node := nodes[mb.Path]
		if mb.SpecialUse != types.SpecialNormal {
			specials = append(specials, node)
			continue
		}

		if mb.Delimiter != "" {
			if i := strings.LastIndex(mb.Path, mb.Delimiter); i > 0 {
				if parent, ok := nodes[mb.Path[:i]]; ok {
					parent.Children = append(parent.Children, node)
					continue
				}
			}
		}
		orphans = append(orphans, node)
	}

	rank := make(map[types.SpecialUse]int, len(specialOrder))
	for i, use := range specialOrder {
		rank[use] = i
	}
	sort.SliceStable(specials, func(i, j int) bool {
		return rank[specials[i].SpecialUse] < rank[specials[j].SpecialUse]
	})

	roots := pruneAndSort(specials, false)

	if custom := pruneAndSort(orphans, true); len(custom) > 0 {
		roots = append(roots, &types.FolderNode{
			Mailbox: types.Mailbox{
				DisplayName: CustomFoldersName,
				SpecialUse:  types.SpecialNormal,
			},
			Synthetic: true,
			Children:  custom,
		})
	}
	return roots
}

// pruneAndSort drops non-selectable leaves and orders children by name
func pruneAndSort(nodes []*types.FolderNode, sortByName bool) []*types.FolderNode {
	kept := make([]*types.FolderNode, 0, len(nodes))
	for _, n := range nodes {
		n.Children = pruneAndSort(n.Children, true)
		if !n.Selectable && len(n.Children) == 0 {
			continue
		}
		kept = append(kept, n)
	}
	if sortByName {
		sort.SliceStable(kept, func(i, j int) bool {
			return strings.ToLower(kept[i].DisplayName) < strings.ToLower(kept[j].DisplayName)
		})
	}
	return kept
}
