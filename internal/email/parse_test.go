package email

import (
	"bytes"
	"strings"
	"testing"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multipartMessage = "From: Alice <alice@example.com>\r\n" +
	"To: bob@example.com\r\n" +
	"Subject: Invoice #204\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"XYZ\"\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Please pay the invoice</p>\r\n" +
	"--XYZ\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"invoice.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"aGVsbG8=\r\n" +
	"--XYZ--\r\n"

func TestParseBody_PlainTextFallsBackToPre(t *testing.T) {
	body, err := parseBody(strings.NewReader(rawMessage("Hi", "Hello <world> & more")))
	require.NoError(t, err)

	assert.Equal(t, "Hello <world> & more", body.Snippet)
	assert.True(t, strings.HasPrefix(body.HTML, "<pre>"))
	assert.Contains(t, body.HTML, "Hello &lt;world&gt; &amp; more")
	assert.Empty(t, body.Attachments)
}

func TestParseBody_HTMLAndAttachment(t *testing.T) {
	body, err := parseBody(strings.NewReader(multipartMessage))
	require.NoError(t, err)

	assert.Contains(t, body.HTML, "<p>Please pay the invoice</p>")
	assert.Contains(t, body.Snippet, "Please pay the invoice")
	require.Len(t, body.Attachments, 1)

	att := body.Attachments[0]
	assert.Equal(t, "invoice.pdf", att.Filename)
	assert.Equal(t, "application/pdf", att.ContentType)
	assert.Equal(t, int64(5), att.SizeBytes)
	assert.Equal(t, []byte("hello"), att.Content)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", att.Checksum)
}

func TestMakeSnippet(t *testing.T) {
	assert.Equal(t, noContent, makeSnippet(""))
	assert.Equal(t, noContent, makeSnippet(" \r\n\t "))
	assert.Equal(t, "one two", makeSnippet("one\r\n\r\n   two"))

	long := strings.Repeat("é", 250)
	snippet := makeSnippet(long)
	assert.Equal(t, strings.Repeat("é", 200)+"...", snippet)
}

func TestSenderOf(t *testing.T) {
	assert.Equal(t, unknownSender, senderOf(nil))
	assert.Equal(t, unknownSender, senderOf(&imap.Envelope{}))
	assert.Equal(t, "Alice", senderOf(&imap.Envelope{From: []*imap.Address{{PersonalName: "Alice", MailboxName: "a", HostName: "x.com"}}}))
	assert.Equal(t, "a@x.com", senderOf(&imap.Envelope{From: []*imap.Address{{MailboxName: "a", HostName: "x.com"}}}))
}

func TestToCachedMessage_Defaults(t *testing.T) {
	adapter := NewAdapter(&fakeProvider{}, 10, quietLogger())
	section := &imap.BodySectionName{Peek: true}

	msg := &imap.Message{Uid: 3, Envelope: &imap.Envelope{}}
	cached := adapter.toCachedMessage(msg, section)
	assert.Equal(t, noSubject, cached.Subject)
	assert.Equal(t, unknownSender, cached.Sender)
	assert.Equal(t, noContent, cached.Snippet)
	assert.False(t, cached.Date.IsZero())

	msg = &imap.Message{
		Uid:   4,
		Flags: []string{imap.SeenFlag},
		Body: map[*imap.BodySectionName]imap.Literal{
			{}: bytes.NewReader([]byte(multipartMessage)),
		},
	}
	cached = adapter.toCachedMessage(msg, section)
	assert.True(t, cached.IsRead)
	assert.Len(t, cached.Attachments, 1)
}
