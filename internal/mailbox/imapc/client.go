// Package imapc is the direct-protocol mailbox backend: a stateful,
// TLS-encrypted IMAP session authenticated with username/password.
package imapc

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"mailmon/internal/domain/email"
	"mailmon/internal/mailbox"
	"mailmon/internal/normalize"
)

const backendName = "imap"

type Config struct {
	// Addr is host:port, conventionally port 993.
	Addr        string
	Username    string
	Password    string
	Mailbox     string
	DialTimeout time.Duration
	// CommandTimeout bounds each IMAP command on the session, so a hung
	// server cannot stall a poll cycle past it.
	CommandTimeout time.Duration
}

type Client struct {
	cfg    Config
	logger *slog.Logger
	conn   *client.Client
}

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 20 * time.Second
	}
	return &Client{
		cfg:    cfg,
		logger: logger.With("backend", backendName),
	}
}

// Connect dials the server, logs in, and selects the mailbox. A rejected
// login is an AuthError: either the credentials are wrong or the server
// has IMAP access disabled for this account.
func (c *Client) Connect(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", c.cfg.Addr, nil)
	if err != nil {
		return &mailbox.FetchError{Backend: backendName, Err: fmt.Errorf("dial %s: %w", c.cfg.Addr, err)}
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		return &mailbox.FetchError{Backend: backendName, Err: fmt.Errorf("imap greeting: %w", err)}
	}
	imapClient.Timeout = c.cfg.CommandTimeout

	if err := imapClient.Login(c.cfg.Username, c.cfg.Password); err != nil {
		imapClient.Logout()
		return &mailbox.AuthError{
			Backend: backendName,
			Reason:  fmt.Sprintf("login rejected for %s (wrong password, or IMAP access disabled by the server)", c.cfg.Username),
			Err:     err,
		}
	}

	if _, err := imapClient.Select(c.cfg.Mailbox, false); err != nil {
		imapClient.Logout()
		return &mailbox.FetchError{Backend: backendName, Err: fmt.Errorf("select %s: %w", c.cfg.Mailbox, err)}
	}

	c.conn = imapClient
	c.logger.Debug("imap session established", "addr", c.cfg.Addr, "mailbox", c.cfg.Mailbox)
	return nil
}

// FetchUnseen runs a server-side UNSEEN search and retrieves each hit
// with BODY.PEEK so the fetch itself does not flip the seen flag.
func (c *Client) FetchUnseen(ctx context.Context) ([]email.Message, error) {
	if c.conn == nil {
		return nil, &mailbox.FetchError{Backend: backendName, Err: fmt.Errorf("not connected")}
	}
	defer c.abortOnCancel(ctx)()

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := c.conn.UidSearch(criteria)
	if err != nil {
		return nil, &mailbox.FetchError{Backend: backendName, Err: fmt.Errorf("search unseen: %w", err)}
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.conn.UidFetch(seqSet, items, messages)
	}()

	var out []email.Message
	for msg := range messages {
		m, err := c.parseMessage(msg, section)
		if err != nil {
			c.logger.Warn("failed to parse message", "uid", msg.Uid, "error", err)
			continue
		}
		out = append(out, m)
	}

	if err := <-done; err != nil {
		return out, &mailbox.FetchError{Backend: backendName, Err: fmt.Errorf("fetch: %w", err)}
	}

	return out, nil
}

// MarkSeen sets the server-side \Seen flag for the given UID.
func (c *Client) MarkSeen(ctx context.Context, id string) error {
	if c.conn == nil {
		return &mailbox.FetchError{Backend: backendName, Err: fmt.Errorf("not connected")}
	}

	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return &mailbox.FetchError{Backend: backendName, Err: fmt.Errorf("invalid uid %q: %w", id, err)}
	}
	defer c.abortOnCancel(ctx)()

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uint32(uid))

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}

	if err := c.conn.UidStore(seqSet, item, flags, nil); err != nil {
		return &mailbox.FetchError{Backend: backendName, Err: fmt.Errorf("store \\Seen on %s: %w", id, err)}
	}
	return nil
}

// Close logs out of the session. Idempotent.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Logout()
	c.conn = nil
	return err
}

// abortOnCancel terminates the session if ctx is cancelled while an IMAP
// command is in flight, failing the blocked command instead of waiting on
// the server. The returned func stops the watch; callers defer it.
func (c *Client) abortOnCancel(ctx context.Context) func() {
	conn := c.conn
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Terminate()
		case <-stop:
		}
	}()
	return func() { close(stop) }
}

func (c *Client) parseMessage(msg *imap.Message, section *imap.BodySectionName) (email.Message, error) {
	id := strconv.FormatUint(uint64(msg.Uid), 10)

	var from, subject string
	var received time.Time
	if msg.Envelope != nil {
		subject = msg.Envelope.Subject
		received = msg.Envelope.Date
		if len(msg.Envelope.From) > 0 {
			from = msg.Envelope.From[0].Address()
		}
	}

	body, err := extractBody(msg.GetBody(section))
	if err != nil {
		return email.Message{}, err
	}

	return email.NewMessage(id, from, subject, received, body), nil
}

// extractBody walks the MIME parts preferring text/plain, falling back
// to stripped text/html.
func extractBody(r io.Reader) (string, error) {
	if r == nil {
		return "", nil
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", fmt.Errorf("create mail reader: %w", err)
	}

	var plain, html string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		ct, _, _ := h.ContentType()
		content, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(ct, "text/plain") && plain == "":
			plain = string(content)
		case strings.HasPrefix(ct, "text/html") && html == "":
			html = string(content)
		}
	}

	if plain != "" {
		return plain, nil
	}
	return normalize.HTMLToText(html), nil
}
