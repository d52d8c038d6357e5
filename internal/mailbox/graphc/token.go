package graphc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"mailmon/internal/mailbox"
)

// graphScopes grants read-only mail access; offline_access asks for a
// refresh token so the monitor can outlive the ~1h access token.
var graphScopes = []string{"Mail.Read", "offline_access"}

// TokenManager owns the authorization-code exchange and the access-token
// lifecycle for the Graph backend. Expiry is checked lazily before each
// use; silent refresh happens only when a refresh token was granted,
// otherwise Token returns ErrReauthRequired and the caller must rerun the
// interactive consent step.
type TokenManager struct {
	cfg  *oauth2.Config
	path string

	mu  sync.Mutex
	tok *oauth2.Token
}

func NewTokenManager(clientID, tenantID, redirectURL, tokenPath string) *TokenManager {
	if tenantID == "" {
		tenantID = "common"
	}
	return &TokenManager{
		cfg: &oauth2.Config{
			ClientID:    clientID,
			Endpoint:    microsoft.AzureADEndpoint(tenantID),
			RedirectURL: redirectURL,
			Scopes:      graphScopes,
		},
		path: tokenPath,
	}
}

// AuthCodeURL is the browser URL for the out-of-band consent step.
func (m *TokenManager) AuthCodeURL() string {
	return m.cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token, once. The code may
// be the raw value or the full localhost redirect URL the user pasted
// back. Failure here is fatal to this consent attempt.
func (m *TokenManager) Exchange(ctx context.Context, code string) error {
	code = extractCode(code)
	if code == "" {
		return fmt.Errorf("no authorization code found in input")
	}

	tok, err := m.cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("cannot exchange code for token: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tok = tok
	return m.save(tok)
}

// Token returns a bearer token guaranteed valid at call time. It never
// hands out an expired token: an expired token is silently refreshed when
// a refresh credential exists, and ErrReauthRequired is returned when it
// does not.
func (m *TokenManager) Token(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tok == nil {
		tok, err := m.load()
		if err != nil {
			return nil, fmt.Errorf("no stored token (%v): %w", err, mailbox.ErrReauthRequired)
		}
		m.tok = tok
	}

	if m.tok.Valid() {
		return m.tok, nil
	}

	if m.tok.RefreshToken == "" {
		return nil, mailbox.ErrReauthRequired
	}

	refreshed, err := m.cfg.TokenSource(ctx, m.tok).Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed (%v): %w", err, mailbox.ErrReauthRequired)
	}

	m.tok = refreshed
	if err := m.save(refreshed); err != nil {
		return nil, err
	}
	return refreshed, nil
}

func (m *TokenManager) load() (*oauth2.Token, error) {
	f, err := os.Open(m.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (m *TokenManager) save(tok *oauth2.Token) error {
	f, err := os.OpenFile(m.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("cannot save token: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("cannot encode token: %w", err)
	}
	return nil
}

// extractCode accepts either a bare authorization code or the full
// redirect URL captured from the browser.
func extractCode(input string) string {
	input = strings.TrimSpace(input)
	if !strings.Contains(input, "code=") {
		return input
	}
	u, err := url.Parse(input)
	if err != nil {
		return ""
	}
	return u.Query().Get("code")
}
