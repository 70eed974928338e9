package email

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	gosync "sync"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"
)

type fakeMessage struct {
	uid     uint32
	seen    bool
	subject string
	raw     string
}

// fakeSession is an in-memory IMAP server for a single connection
type fakeSession struct {
	mu         gosync.Mutex
	mailboxes  []*imap.MailboxInfo
	folders    map[string][]*fakeMessage
	selected   string
	statusErr  error
	selectErr  error
	blockUntil chan struct{}
	moves      map[uint32]string
	fetched    [][]uint32
	loggedOut  bool
	terminated bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		mailboxes: []*imap.MailboxInfo{
			{Name: "INBOX", Delimiter: "/"},
			{Name: "Trash", Delimiter: "/"},
		},
		folders: map[string][]*fakeMessage{"INBOX": {}, "Trash": {}},
		moves:   map[uint32]string{},
	}
}

func rawMessage(subject, body string) string {
	return "From: Alice Example <alice@example.com>\r\n" +
		"To: bob@example.com\r\n" +
		"Subject: " + subject + "\r\n" +
		"Date: Fri, 01 Mar 2024 09:00:00 +0000\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		body + "\r\n"
}

func (f *fakeSession) add(folder string, uid uint32, seen bool, subject string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folders[folder] = append(f.folders[folder], &fakeMessage{
		uid:     uid,
		seen:    seen,
		subject: subject,
		raw:     rawMessage(subject, "Body of "+subject),
	})
}

func (f *fakeSession) List(ref, name string, ch chan *imap.MailboxInfo) error {
	defer close(ch)
	for _, mb := range f.mailboxes {
		ch <- mb
	}
	return nil
}

func (f *fakeSession) Status(name string, items []imap.StatusItem) (*imap.MailboxStatus, error) {
	if f.blockUntil != nil {
		<-f.blockUntil
		return nil, io.ErrUnexpectedEOF
	}
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs, ok := f.folders[name]
	if !ok {
		return nil, errors.New("Mailbox doesn't exist")
	}
	status := imap.NewMailboxStatus(name, items)
	for _, m := range msgs {
		if !m.seen {
			status.Unseen++
		}
	}
	return status, nil
}

func (f *fakeSession) Select(name string, readOnly bool) (*imap.MailboxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	msgs, ok := f.folders[name]
	if !ok {
		return nil, errors.New("Mailbox doesn't exist")
	}
	f.selected = name
	status := imap.NewMailboxStatus(name, nil)
	status.Messages = uint32(len(msgs))
	return status, nil
}

func (f *fakeSession) UidSearch(criteria *imap.SearchCriteria) ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var uids []uint32
	for _, m := range f.folders[f.selected] {
		if criteria.Uid != nil && !criteria.Uid.Contains(m.uid) {
			continue
		}
		uids = append(uids, m.uid)
	}
	// Servers need not answer in order
	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
	return uids, nil
}

func (f *fakeSession) UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error {
	defer close(ch)
	f.mu.Lock()
	defer f.mu.Unlock()

	withBody := false
	for _, item := range items {
		if strings.HasPrefix(string(item), "BODY") {
			withBody = true
		}
	}

	var uids []uint32
	for _, m := range f.folders[f.selected] {
		if !seqset.Contains(m.uid) {
			continue
		}
		uids = append(uids, m.uid)

		msg := &imap.Message{Uid: m.uid, Body: map[*imap.BodySectionName]imap.Literal{}}
		if m.seen {
			msg.Flags = []string{imap.SeenFlag}
		}
		if withBody {
			msg.Envelope = &imap.Envelope{
				Subject: m.subject,
				From:    []*imap.Address{{PersonalName: "Alice Example", MailboxName: "alice", HostName: "example.com"}},
			}
			msg.Body[&imap.BodySectionName{}] = bytes.NewReader([]byte(m.raw))
		}
		ch <- msg
	}
	f.fetched = append(f.fetched, uids)
	return nil
}

func (f *fakeSession) UidMove(seqset *imap.SeqSet, dest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.folders[dest]; !ok {
		return errors.New("[TRYCREATE] Mailbox doesn't exist")
	}
	var kept []*fakeMessage
	for _, m := range f.folders[f.selected] {
		if seqset.Contains(m.uid) {
			f.moves[m.uid] = dest
			f.folders[dest] = append(f.folders[dest], m)
			continue
		}
		kept = append(kept, m)
	}
	f.folders[f.selected] = kept
	return nil
}

func (f *fakeSession) UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.folders[f.selected] {
		if seqset.Contains(m.uid) {
			m.seen = true
		}
	}
	return nil
}

func (f *fakeSession) Logout() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = true
	return nil
}

func (f *fakeSession) Terminate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	wasTerminated := f.terminated
	f.terminated = true
	if !wasTerminated && f.blockUntil != nil {
		close(f.blockUntil)
	}
	return nil
}

// fakeProvider hands out the same session
type fakeProvider struct {
	session *fakeSession
	err     error
	calls   int
}

func (p *fakeProvider) GetConnectedSession(ctx context.Context, accountID string) (Session, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.session, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
