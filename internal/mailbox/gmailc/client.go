// Package gmailc is a delegated-HTTP mailbox backend for Gmail accounts,
// polling the Gmail REST API with an OAuth2 token.
package gmailc

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"mailmon/internal/domain/email"
	"mailmon/internal/mailbox"
	"mailmon/internal/normalize"
)

const backendName = "gmail"

type Client struct {
	srv        *gmail.Service
	logger     *slog.Logger
	maxResults int64
}

func NewClient(srv *gmail.Service, maxResults int64, logger *slog.Logger) *Client {
	if maxResults <= 0 {
		maxResults = 25
	}
	return &Client{
		srv:        srv,
		logger:     logger.With("backend", backendName),
		maxResults: maxResults,
	}
}

// Connect verifies the token with a cheap profile call.
func (c *Client) Connect(ctx context.Context) error {
	if _, err := c.srv.Users.GetProfile("me").Context(ctx).Do(); err != nil {
		return wrapErr("get profile", err)
	}
	return nil
}

// FetchUnseen lists unread inbox messages and retrieves each in full.
func (c *Client) FetchUnseen(ctx context.Context) ([]email.Message, error) {
	listRes, err := c.srv.Users.Messages.List("me").
		Q("is:unread").
		LabelIds("INBOX").
		MaxResults(c.maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapErr("list messages", err)
	}

	var out []email.Message
	for _, m := range listRes.Messages {
		msg, err := c.fetchByID(ctx, m.Id)
		if err != nil {
			c.logger.Warn("failed to fetch message", "id", m.Id, "error", err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// MarkSeen clears the UNREAD label.
func (c *Client) MarkSeen(ctx context.Context, id string) error {
	_, err := c.srv.Users.Messages.Modify("me", id, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		return wrapErr(fmt.Sprintf("mark seen %s", id), err)
	}
	return nil
}

func (c *Client) Close() error {
	return nil
}

// EnableWatch registers the mailbox for push notifications on the given
// Pub/Sub topic, so the poll loop can be nudged between ticks.
func (c *Client) EnableWatch(ctx context.Context, topicName string) error {
	_, err := c.srv.Users.Watch("me", &gmail.WatchRequest{
		TopicName: topicName,
	}).Context(ctx).Do()
	if err != nil {
		return wrapErr("enable watch", err)
	}
	return nil
}

func (c *Client) fetchByID(ctx context.Context, id string) (email.Message, error) {
	msg, err := c.srv.Users.Messages.Get("me", id).Format("FULL").Context(ctx).Do()
	if err != nil {
		return email.Message{}, wrapErr("get message", err)
	}

	received := time.UnixMilli(msg.InternalDate)

	return email.NewMessage(
		id,
		header(msg, "From"),
		header(msg, "Subject"),
		received,
		extractBody(msg),
	), nil
}

func header(msg *gmail.Message, name string) string {
	if msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func extractBody(msg *gmail.Message) string {
	if msg.Payload == nil {
		return ""
	}

	if msg.Payload.Body != nil && msg.Payload.Body.Data != "" {
		d, _ := base64.URLEncoding.DecodeString(msg.Payload.Body.Data)
		return string(d)
	}

	var html string
	for _, p := range msg.Payload.Parts {
		if p.Body == nil || p.Body.Data == "" {
			continue
		}
		d, _ := base64.URLEncoding.DecodeString(p.Body.Data)
		switch p.MimeType {
		case "text/plain":
			return string(d)
		case "text/html":
			if html == "" {
				html = string(d)
			}
		}
	}
	return normalize.HTMLToText(html)
}

// wrapErr maps googleapi status codes onto the shared error taxonomy.
func wrapErr(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &mailbox.AuthError{
				Backend: backendName,
				Reason:  "server rejected the access token (expired or revoked); re-authorize",
				Err:     fmt.Errorf("%s: %w", op, err),
			}
		case http.StatusTooManyRequests:
			return &mailbox.FetchError{
				Backend:     backendName,
				RateLimited: true,
				Err:         fmt.Errorf("%s: %w", op, err),
			}
		}
	}
	return &mailbox.FetchError{Backend: backendName, Err: fmt.Errorf("%s: %w", op, err)}
}
