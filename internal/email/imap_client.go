package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/config"
	apperrors "github.com/brandon/mailsync/internal/errors"
)

// Session is one authenticated IMAP connection, used for a single logical
// operation group and then closed. *client.Client satisfies it.
type Session interface {
	List(ref, name string, ch chan *imap.MailboxInfo) error
	Status(name string, items []imap.StatusItem) (*imap.MailboxStatus, error)
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidMove(seqset *imap.SeqSet, dest string) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	Logout() error
	Terminate() error
}

var _ Session = (*client.Client)(nil)

// Dialer opens a session authenticated with an access token.
// Authentication rejections are reported as ErrAuthExpired, everything else
// as ErrRemoteUnavailable.
type Dialer interface {
	Dial(ctx context.Context, acc *config.AccountConfig, accessToken string) (Session, error)
}

// IMAPDialer dials implicit-TLS IMAP servers
type IMAPDialer struct {
	timeout time.Duration
	logger  *logrus.Logger
}

// NewIMAPDialer creates a dialer whose connect and per-command deadline is timeout
func NewIMAPDialer(timeout time.Duration, logger *logrus.Logger) *IMAPDialer {
	return &IMAPDialer{
		timeout: timeout,
		logger:  logger,
	}
}

// contextDialer adapts net.Dialer to the go-imap Dialer. The connection gets
// a deadline covering the TLS handshake and greeting, and is closed if ctx
// ends before release is called.
type contextDialer struct {
	ctx     context.Context
	dialer  *net.Dialer
	timeout time.Duration
	stop    func() bool
}

func (d *contextDialer) Dial(network, addr string) (net.Conn, error) {
	conn, err := d.dialer.DialContext(d.ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if d.timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(d.timeout)); err != nil {
			conn.Close()
			return nil, err
		}
	}
	d.stop = context.AfterFunc(d.ctx, func() {
		conn.Close()
	})
	return conn, nil
}

// release hands the connection's lifetime back to the caller
func (d *contextDialer) release() {
	if d.stop != nil {
		d.stop()
	}
}

// Dial connects and authenticates
func (d *IMAPDialer) Dial(ctx context.Context, acc *config.AccountConfig, accessToken string) (Session, error) {
	addr := net.JoinHostPort(acc.IMAPHost, strconv.Itoa(acc.IMAPPort))

	dialer := &contextDialer{ctx: ctx, dialer: &net.Dialer{Timeout: d.timeout}, timeout: d.timeout}
	defer dialer.release()

	c, err := client.DialWithDialerTLS(dialer, addr, &tls.Config{
		ServerName: acc.IMAPHost,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return nil, apperrors.Mark(apperrors.ErrRemoteUnavailable, fmt.Errorf("failed to connect to IMAP server: %w", err))
	}
	c.Timeout = d.timeout

	if err := c.Authenticate(authenticator(acc, accessToken)); err != nil {
		c.Terminate() //nolint:errcheck
		if isNetworkError(err) || ctx.Err() != nil {
			return nil, apperrors.Mark(apperrors.ErrRemoteUnavailable, fmt.Errorf("failed to authenticate: %w", err))
		}
		d.logger.WithError(err).WithField("account", acc.ID).Warn("IMAP server rejected access token")
		return nil, apperrors.Mark(apperrors.ErrAuthExpired, fmt.Errorf("failed to authenticate: %w", err))
	}

	d.logger.WithField("account", acc.ID).Debug("Connected to IMAP server")
	return c, nil
}

// isNetworkError separates transport failures from server status replies.
// go-imap reports NO/BAD responses as plain errors carrying the server text.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return strings.Contains(err.Error(), "connection closed")
}

// classifyRemote maps a session error onto the error taxonomy. go-imap drops
// the response code of NO/BAD replies, so an unmarked refusal may be
// temporary ([UNAVAILABLE], [INUSE], [LIMIT]) and is treated as retryable.
// ServerRejected is only produced where the target is confirmed gone.
func classifyRemote(err error) error {
	switch {
	case err == nil:
		return nil
	case apperrors.IsServerRejected(err), apperrors.IsRemoteUnavailable(err),
		apperrors.IsAuthExhausted(err), apperrors.IsAuthExpired(err):
		return err
	default:
		return apperrors.Mark(apperrors.ErrRemoteUnavailable, err)
	}
}
