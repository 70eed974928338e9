package sync

import (
	"context"
	"fmt"
	"sort"
	gosync "sync"
	"time"

	"github.com/brandon/mailsync/pkg/types"
)

// fakeRemote holds server state per account+folder and records every
// mutation it receives.
type fakeRemote struct {
	mu       gosync.Mutex
	folders  []types.Mailbox
	boxes    map[string]map[uint32]bool // folder -> uid -> seen
	listErr  error
	fetchErr error
	moveErr  error
	seenErr  error
	fetchFn  func(ctx context.Context, folder string, since uint32) (*types.FetchResult, error)
	moveFn   func(ctx context.Context, folder string, uid uint32) error
	calls    []string
	fetched  []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{boxes: map[string]map[uint32]bool{}}
}

func (f *fakeRemote) put(folder string, uid uint32, seen bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.boxes[folder] == nil {
		f.boxes[folder] = map[uint32]bool{}
	}
	f.boxes[folder][uid] = seen
}

func (f *fakeRemote) drop(folder string, uid uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.boxes[folder], uid)
}

func (f *fakeRemote) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) ListFolders(ctx context.Context, accountID string) ([]types.Mailbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.folders, nil
}

func (f *fakeRemote) FetchMessages(ctx context.Context, accountID, folder string, sinceUID uint32) (*types.FetchResult, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, folder)
	fn, fetchErr := f.fetchFn, f.fetchErr
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, folder, sinceUID)
	}
	if fetchErr != nil {
		return nil, fetchErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	result := &types.FetchResult{Window: types.FlagWindow{Seen: map[uint32]bool{}}}
	var uids []uint32
	for uid := range f.boxes[folder] {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if len(uids) == 0 {
		result.Window.MinUID, result.Window.MaxUID = 1, ^uint32(0)
		return result, nil
	}

	result.Window.MinUID, result.Window.MaxUID = uids[0], uids[len(uids)-1]
	for _, uid := range uids {
		seen := f.boxes[folder][uid]
		result.Window.Seen[uid] = seen
		if !seen {
			result.UnreadCount++
		}
		if uid > sinceUID {
			result.Messages = append(result.Messages, remoteMessage(uid, seen))
		}
	}
	return result, nil
}

func (f *fakeRemote) MoveToTrash(ctx context.Context, accountID, folder string, uid uint32) error {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("move:%d", uid))
	fn := f.moveFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, folder, uid)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.moveErr != nil {
		return f.moveErr
	}
	delete(f.boxes[folder], uid)
	return nil
}

func (f *fakeRemote) SetSeenFlag(ctx context.Context, accountID, folder string, uid uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("seen:%d", uid))
	if f.seenErr != nil {
		return f.seenErr
	}
	if _, ok := f.boxes[folder][uid]; ok {
		f.boxes[folder][uid] = true
	}
	return nil
}

func remoteMessage(uid uint32, seen bool) types.CachedMessage {
	return types.CachedMessage{
		UID:      uid,
		Subject:  fmt.Sprintf("Message %d", uid),
		Sender:   "Alice Example",
		Date:     time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(uid) * time.Minute),
		Snippet:  fmt.Sprintf("Body of message %d", uid),
		BodyHTML: fmt.Sprintf("<p>Body of message %d</p>", uid),
		IsRead:   seen,
	}
}
