// Package graphc is the delegated-HTTP mailbox backend: stateless REST
// polling of the Microsoft Graph mail API with a bearer token. Used when
// the server blocks basic-auth IMAP access.
package graphc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mailmon/internal/domain/email"
	"mailmon/internal/mailbox"
	"mailmon/internal/normalize"
)

const (
	backendName    = "graph"
	defaultBaseURL = "https://graph.microsoft.com/v1.0"
	defaultTop     = 25
)

type Client struct {
	baseURL    string
	tokens     *TokenManager
	httpClient *http.Client
	logger     *slog.Logger
	maxFetch   int
}

func NewClient(tokens *TokenManager, logger *slog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:   logger.With("backend", backendName),
		maxFetch: defaultTop,
	}
}

// Connect validates that a usable token exists. The backend itself is
// stateless, so there is no session to open.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.tokens.Token(ctx)
	return err
}

type graphAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type graphMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    struct {
		EmailAddress graphAddress `json:"emailAddress"`
	} `json:"from"`
	ReceivedDateTime string `json:"receivedDateTime"`
	BodyPreview      string `json:"bodyPreview"`
	Body             struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

type listResponse struct {
	Value []graphMessage `json:"value"`
}

// FetchUnseen lists unread messages sorted by receipt time.
func (c *Client) FetchUnseen(ctx context.Context) ([]email.Message, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("$filter", "isRead eq false")
	q.Set("$top", strconv.Itoa(c.maxFetch))
	q.Set("$select", "id,subject,from,receivedDateTime,bodyPreview,body")
	q.Set("$orderby", "receivedDateTime DESC")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me/messages?"+q.Encode(), nil)
	if err != nil {
		return nil, &mailbox.FetchError{Backend: backendName, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &mailbox.FetchError{Backend: backendName, Err: fmt.Errorf("list messages: %w", err)}
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	var list listResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, &mailbox.FetchError{Backend: backendName, Err: fmt.Errorf("decode list response: %w", err)}
	}

	out := make([]email.Message, 0, len(list.Value))
	for _, gm := range list.Value {
		out = append(out, normalizeGraphMessage(gm))
	}
	return out, nil
}

// MarkSeen issues the isRead property update.
func (c *Client) MarkSeen(ctx context.Context, id string) error {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	body, _ := json.Marshal(map[string]bool{"isRead": true})
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+"/me/messages/"+url.PathEscape(id), bytes.NewReader(body))
	if err != nil {
		return &mailbox.FetchError{Backend: backendName, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &mailbox.FetchError{Backend: backendName, Err: fmt.Errorf("mark seen %s: %w", id, err)}
	}
	defer resp.Body.Close()

	return c.checkStatus(resp)
}

func (c *Client) Close() error {
	return nil
}

// checkStatus maps HTTP status codes onto the error taxonomy: 401/403 is
// an auth problem, 429 is the retryable rate-limit sub-kind, and any
// other non-success status is a plain fetch fault.
func (c *Client) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &mailbox.AuthError{
			Backend: backendName,
			Reason:  "server rejected the access token (expired or revoked); re-authorize",
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode, snippet),
		}
	case http.StatusTooManyRequests:
		return &mailbox.FetchError{
			Backend:     backendName,
			RateLimited: true,
			RetryAfter:  retryAfter(resp),
			Err:         fmt.Errorf("status 429: %s", snippet),
		}
	default:
		return &mailbox.FetchError{
			Backend: backendName,
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode, snippet),
		}
	}
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func normalizeGraphMessage(gm graphMessage) email.Message {
	received, _ := time.Parse(time.RFC3339, gm.ReceivedDateTime)

	body := gm.Body.Content
	if strings.EqualFold(gm.Body.ContentType, "html") {
		body = normalize.HTMLToText(body)
	}
	if body == "" {
		body = gm.BodyPreview
	}

	return email.NewMessage(gm.ID, gm.From.EmailAddress.Address, gm.Subject, received, body)
}
