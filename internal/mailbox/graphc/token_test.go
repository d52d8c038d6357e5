package graphc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"mailmon/internal/mailbox"
)

func TestTokenValidPassesThrough(t *testing.T) {
	tm := testTokenManager(t)

	tok, err := tm.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != "test-token" {
		t.Errorf("access token = %q", tok.AccessToken)
	}
}

func TestExpiredWithoutRefreshIsTerminal(t *testing.T) {
	tm := testTokenManager(t)
	tm.tok = &oauth2.Token{
		AccessToken: "stale",
		Expiry:      time.Now().Add(-time.Minute),
	}

	_, err := tm.Token(context.Background())
	if !errors.Is(err, mailbox.ErrReauthRequired) {
		t.Fatalf("got %v, want ErrReauthRequired", err)
	}
}

func TestExpiredWithRefreshIsRenewed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600,"refresh_token":"next"}`))
	}))
	defer srv.Close()

	tm := testTokenManager(t)
	tm.cfg.Endpoint = oauth2.Endpoint{TokenURL: srv.URL}
	tm.tok = &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh-credential",
		Expiry:       time.Now().Add(-time.Minute),
	}

	tok, err := tm.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != "fresh" {
		t.Errorf("access token = %q, want the refreshed one", tok.AccessToken)
	}
	if !tok.Valid() {
		t.Error("refreshed token reported invalid")
	}
}

func TestNoStoredTokenIsTerminal(t *testing.T) {
	tm := NewTokenManager("id", "common", "http://localhost:8080", filepath.Join(t.TempDir(), "nope.json"))

	_, err := tm.Token(context.Background())
	if !errors.Is(err, mailbox.ErrReauthRequired) {
		t.Fatalf("got %v, want ErrReauthRequired", err)
	}
}

func TestExchangePersistsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("code"); got != "the-code" {
			t.Errorf("code = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"granted","token_type":"Bearer","expires_in":3600,"refresh_token":"r1"}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "token.json")
	tm := NewTokenManager("id", "common", "http://localhost:8080", path)
	tm.cfg.Endpoint = oauth2.Endpoint{TokenURL: srv.URL}

	// The pasted input is the full redirect URL, not a bare code.
	err := tm.Exchange(context.Background(), "http://localhost:8080/?code=the-code&state=state-token")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}

	// A fresh manager must be able to load the persisted token.
	tm2 := NewTokenManager("id", "common", "http://localhost:8080", path)
	tok, err := tm2.Token(context.Background())
	if err != nil {
		t.Fatalf("Token after exchange: %v", err)
	}
	if tok.AccessToken != "granted" {
		t.Errorf("access token = %q", tok.AccessToken)
	}
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"rawcode123", "rawcode123"},
		{"http://localhost:8080/?code=abc&state=s", "abc"},
		{"  http://localhost:8080/?state=s&code=xyz  ", "xyz"},
	}

	for _, tt := range tests {
		if got := extractCode(tt.in); got != tt.want {
			t.Errorf("extractCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
