package email

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/brandon/mailsync/internal/errors"
)

const testAccount = "a@example.com"

func newTestAdapter(sess *fakeSession, limit int) (*Adapter, *fakeProvider) {
	provider := &fakeProvider{session: sess}
	return NewAdapter(provider, limit, quietLogger()), provider
}

func TestFetchMessages_InitialFetch(t *testing.T) {
	sess := newFakeSession()
	sess.add("INBOX", 10, false, "Invoice #204")
	sess.add("INBOX", 11, true, "Lunch")
	sess.add("INBOX", 12, false, "Report")
	adapter, _ := newTestAdapter(sess, 50)

	result, err := adapter.FetchMessages(context.Background(), testAccount, "INBOX", 0)
	require.NoError(t, err)

	require.Len(t, result.Messages, 3)
	assert.Equal(t, 2, result.UnreadCount)
	assert.Equal(t, uint32(10), result.Window.MinUID)
	assert.Equal(t, uint32(12), result.Window.MaxUID)
	assert.Equal(t, map[uint32]bool{10: false, 11: true, 12: false}, result.Window.Seen)

	byUID := map[uint32]string{}
	for _, m := range result.Messages {
		byUID[m.UID] = m.Subject
		assert.Equal(t, "Alice Example", m.Sender)
		assert.Equal(t, "Body of "+m.Subject, m.Snippet)
		assert.Contains(t, m.BodyHTML, "<pre>")
		if m.UID == 11 {
			assert.True(t, m.IsRead)
		}
	}
	assert.Equal(t, "Invoice #204", byUID[10])
	assert.True(t, sess.loggedOut)
	assert.False(t, sess.terminated)
}

func TestFetchMessages_OnlyDownloadsNewerThanSince(t *testing.T) {
	sess := newFakeSession()
	sess.add("INBOX", 10, false, "Ten")
	sess.add("INBOX", 11, false, "Eleven")
	sess.add("INBOX", 12, false, "Twelve")
	adapter, _ := newTestAdapter(sess, 50)

	result, err := adapter.FetchMessages(context.Background(), testAccount, "INBOX", 11)
	require.NoError(t, err)

	require.Len(t, result.Messages, 1)
	assert.Equal(t, uint32(12), result.Messages[0].UID)
	assert.Len(t, result.Window.Seen, 3)
}

func TestFetchMessages_BoundedByFetchLimit(t *testing.T) {
	sess := newFakeSession()
	for uid := uint32(1); uid <= 5; uid++ {
		sess.add("INBOX", uid, false, "Message")
	}
	adapter, _ := newTestAdapter(sess, 2)

	result, err := adapter.FetchMessages(context.Background(), testAccount, "INBOX", 0)
	require.NoError(t, err)

	require.Len(t, result.Messages, 2)
	assert.Equal(t, uint32(4), result.Window.MinUID)
	assert.Equal(t, uint32(5), result.Window.MaxUID)
	assert.Equal(t, 5, result.UnreadCount)
}

func TestFetchMessages_EmptyFolderCoversEverything(t *testing.T) {
	adapter, _ := newTestAdapter(newFakeSession(), 50)

	result, err := adapter.FetchMessages(context.Background(), testAccount, "INBOX", 40)
	require.NoError(t, err)

	assert.Empty(t, result.Messages)
	assert.True(t, result.Window.Contains(1))
	assert.True(t, result.Window.Contains(40))
	assert.Empty(t, result.Window.Seen)
}

func TestFetchMessages_ErrorClassification(t *testing.T) {
	sess := newFakeSession()
	sess.statusErr = io.ErrUnexpectedEOF
	adapter, _ := newTestAdapter(sess, 50)

	_, err := adapter.FetchMessages(context.Background(), testAccount, "INBOX", 0)
	assert.True(t, apperrors.IsRemoteUnavailable(err))
	assert.True(t, sess.loggedOut)

	_, err = adapter.FetchMessages(context.Background(), testAccount, "Nope", 0)
	assert.True(t, apperrors.IsRemoteUnavailable(err))

	// A refusal without a confirmed missing target stays retryable
	sess.statusErr = nil
	_, err = adapter.FetchMessages(context.Background(), testAccount, "Nope", 0)
	assert.True(t, apperrors.IsRemoteUnavailable(err))
	assert.False(t, apperrors.IsServerRejected(err))
}

func TestFetchMessages_CancelTearsDownSession(t *testing.T) {
	sess := newFakeSession()
	sess.blockUntil = make(chan struct{})
	adapter, _ := newTestAdapter(sess, 50)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := adapter.FetchMessages(ctx, testAccount, "INBOX", 0)
	assert.True(t, apperrors.IsRemoteUnavailable(err))
	assert.True(t, sess.terminated)
	assert.False(t, sess.loggedOut)
}

func TestAdapter_SessionErrorsPassThrough(t *testing.T) {
	adapter := NewAdapter(&fakeProvider{err: apperrors.ErrAuthExhausted}, 50, quietLogger())

	_, err := adapter.ListFolders(context.Background(), testAccount)
	assert.True(t, apperrors.IsAuthExhausted(err))

	err = adapter.SetSeenFlag(context.Background(), testAccount, "INBOX", 1)
	assert.True(t, apperrors.IsAuthExhausted(err))
}

func TestListFolders_Classifies(t *testing.T) {
	sess := newFakeSession()
	sess.mailboxes = []*imap.MailboxInfo{
		{Name: "INBOX", Delimiter: "/"},
		{Name: "[Gmail]", Delimiter: "/", Attributes: []string{imap.NoSelectAttr}},
		{Name: "[Gmail]/Bin", Delimiter: "/", Attributes: []string{imap.TrashAttr}},
		{Name: "[Gmail]/Sent Mail", Delimiter: "/"},
		{Name: "Receipts", Delimiter: "/"},
	}
	adapter, _ := newTestAdapter(sess, 50)

	boxes, err := adapter.ListFolders(context.Background(), testAccount)
	require.NoError(t, err)
	require.Len(t, boxes, 5)

	uses := map[string]string{}
	for _, b := range boxes {
		uses[b.Path] = string(b.SpecialUse)
	}
	assert.Equal(t, "inbox", uses["INBOX"])
	assert.Equal(t, "trash", uses["[Gmail]/Bin"])
	assert.Equal(t, "sent", uses["[Gmail]/Sent Mail"])
	assert.Equal(t, "normal", uses["Receipts"])
	assert.True(t, sess.loggedOut)
}

func TestMoveToTrash(t *testing.T) {
	sess := newFakeSession()
	sess.mailboxes = append(sess.mailboxes, &imap.MailboxInfo{
		Name: "Deleted", Delimiter: "/", Attributes: []string{imap.TrashAttr},
	})
	sess.folders["Deleted"] = nil
	sess.add("INBOX", 42, false, "Doomed")
	adapter, _ := newTestAdapter(sess, 50)

	require.NoError(t, adapter.MoveToTrash(context.Background(), testAccount, "INBOX", 42))
	assert.Equal(t, "Deleted", sess.moves[42])

	// Already gone
	err := adapter.MoveToTrash(context.Background(), testAccount, "INBOX", 42)
	assert.True(t, apperrors.IsServerRejected(err))
}

func TestMoveToTrash_FallsBackToWellKnownName(t *testing.T) {
	sess := newFakeSession()
	sess.add("INBOX", 7, false, "Old")
	adapter, _ := newTestAdapter(sess, 50)

	require.NoError(t, adapter.MoveToTrash(context.Background(), testAccount, "INBOX", 7))
	assert.Equal(t, "Trash", sess.moves[7])
}

func TestSetSeenFlag(t *testing.T) {
	sess := newFakeSession()
	sess.add("INBOX", 5, false, "Unread")
	adapter, _ := newTestAdapter(sess, 50)

	require.NoError(t, adapter.SetSeenFlag(context.Background(), testAccount, "INBOX", 5))
	assert.True(t, sess.folders["INBOX"][0].seen)

	err := adapter.SetSeenFlag(context.Background(), testAccount, "INBOX", 6)
	assert.True(t, apperrors.IsServerRejected(err))
}

func TestClassifyRemote(t *testing.T) {
	assert.Nil(t, classifyRemote(nil))
	assert.True(t, apperrors.IsRemoteUnavailable(classifyRemote(io.EOF)))
	assert.True(t, apperrors.IsRemoteUnavailable(classifyRemote(errors.New("imap: connection closed during command execution"))))
	assert.True(t, apperrors.IsAuthExhausted(classifyRemote(apperrors.ErrAuthExhausted)))
	assert.True(t, apperrors.IsServerRejected(classifyRemote(apperrors.ErrServerRejected)))

	for _, code := range []imap.StatusRespCode{"UNAVAILABLE", "INUSE", "LIMIT", ""} {
		err := classifyRemote((&imap.StatusResp{Type: imap.StatusRespNo, Code: code, Info: "try later"}).Err())
		assert.True(t, apperrors.IsRemoteUnavailable(err), code)
		assert.False(t, apperrors.IsServerRejected(err), code)
	}
}

func TestSetSeenFlag_TransientSelectFailureIsRetryable(t *testing.T) {
	sess := newFakeSession()
	sess.add("INBOX", 1, false, "One")
	sess.selectErr = errors.New("[INUSE] Mailbox is locked")
	adapter, _ := newTestAdapter(sess, 50)

	err := adapter.SetSeenFlag(context.Background(), testAccount, "INBOX", 1)
	assert.True(t, apperrors.IsRemoteUnavailable(err))
	assert.False(t, apperrors.IsServerRejected(err))
}

func TestSetSeenFlag_MissingFolderIsRejected(t *testing.T) {
	sess := newFakeSession()
	adapter, _ := newTestAdapter(sess, 50)

	err := adapter.SetSeenFlag(context.Background(), testAccount, "Gone", 1)
	assert.True(t, apperrors.IsServerRejected(err))
}
