package email

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"

	"github.com/brandon/mailsync/pkg/types"
)

const (
	snippetLength   = 200
	noContent       = "(No content)"
	noSubject       = "(No Subject)"
	unknownSender   = "Unknown"
	unnamedFilename = "unnamed_file"
)

// parsedBody is what the cache keeps from a raw RFC 822 message
type parsedBody struct {
	Snippet     string
	HTML        string
	Attachments []types.Attachment
}

// parseBody reads a raw message with enmime. The HTML body falls back to a
// pre-formatted rendering of the text part.
func parseBody(r io.Reader) (*parsedBody, error) {
	env, err := enmime.ReadEnvelope(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	body := &parsedBody{
		Snippet: makeSnippet(env.Text),
		HTML:    env.HTML,
	}
	if body.HTML == "" {
		body.HTML = "<pre>" + html.EscapeString(env.Text) + "</pre>"
	}

	parts := append(append([]*enmime.Part{}, env.Attachments...), env.Inlines...)
	for _, p := range parts {
		name := p.FileName
		if name == "" {
			name = unnamedFilename
		}
		sum := md5.Sum(p.Content)
		body.Attachments = append(body.Attachments, types.Attachment{
			Filename:    name,
			ContentType: p.ContentType,
			SizeBytes:   int64(len(p.Content)),
			Content:     p.Content,
			Checksum:    hex.EncodeToString(sum[:]),
		})
	}

	return body, nil
}

// makeSnippet collapses whitespace and truncates to a preview
func makeSnippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return noContent
	}
	runes := []rune(text)
	if len(runes) <= snippetLength {
		return text
	}
	return string(runes[:snippetLength]) + "..."
}

func senderOf(env *imap.Envelope) string {
	if env == nil || len(env.From) == 0 || env.From[0] == nil {
		return unknownSender
	}
	from := env.From[0]
	if from.PersonalName != "" {
		return from.PersonalName
	}
	if addr := from.Address(); addr != "" && addr != "@" {
		return addr
	}
	return unknownSender
}

// toCachedMessage converts a fetched IMAP message into a cache row
func (a *Adapter) toCachedMessage(msg *imap.Message, section *imap.BodySectionName) types.CachedMessage {
	cached := types.CachedMessage{
		UID:     msg.Uid,
		Subject: noSubject,
		Sender:  senderOf(msg.Envelope),
		Date:    msg.InternalDate,
		IsRead:  hasAttr(msg.Flags, imap.SeenFlag),
		Snippet: noContent,
	}

	if msg.Envelope != nil {
		if msg.Envelope.Subject != "" {
			cached.Subject = msg.Envelope.Subject
		}
		if !msg.Envelope.Date.IsZero() {
			cached.Date = msg.Envelope.Date
		}
	}
	if cached.Date.IsZero() {
		cached.Date = time.Now()
	}

	literal := msg.GetBody(section)
	if literal == nil {
		a.logger.WithField("uid", msg.Uid).Warn("Message body missing from fetch response")
		cached.BodyHTML = "<pre></pre>"
		return cached
	}

	body, err := parseBody(literal)
	if err != nil {
		a.logger.WithError(err).WithField("uid", msg.Uid).Warn("Failed to parse message body")
		cached.BodyHTML = "<pre></pre>"
		return cached
	}

	cached.Snippet = body.Snippet
	cached.BodyHTML = body.HTML
	cached.Attachments = body.Attachments
	return cached
}
