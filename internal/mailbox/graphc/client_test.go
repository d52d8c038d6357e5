package graphc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"mailmon/internal/mailbox"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTokenManager(t *testing.T) *TokenManager {
	t.Helper()
	tm := NewTokenManager("client-id", "common", "http://localhost:8080", filepath.Join(t.TempDir(), "token.json"))
	tm.tok = &oauth2.Token{
		AccessToken: "test-token",
		Expiry:      time.Now().Add(time.Hour),
	}
	return tm
}

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c := NewClient(testTokenManager(t), testLogger())
	c.baseURL = srv.URL
	c.httpClient = srv.Client()
	return c
}

func TestFetchUnseenParsesMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("$filter"); got != "isRead eq false" {
			t.Errorf("$filter = %q", got)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{
					"id":               "AAMk1",
					"subject":          "Lab results",
					"from":             map[string]any{"emailAddress": map[string]any{"name": "Lab", "address": "lab@kbtu.kz"}},
					"receivedDateTime": "2026-08-25T10:30:00Z",
					"body":             map[string]any{"contentType": "html", "content": "<p>Results <b>attached</b></p>"},
				},
				{
					"id":               "AAMk2",
					"subject":          "",
					"receivedDateTime": "2026-08-25T11:00:00Z",
					"bodyPreview":      "preview text",
					"body":             map[string]any{"contentType": "text", "content": ""},
				},
			},
		})
	}))
	defer srv.Close()

	msgs, err := testClient(t, srv).FetchUnseen(context.Background())
	if err != nil {
		t.Fatalf("FetchUnseen: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}

	if msgs[0].ID != "AAMk1" || msgs[0].From != "lab@kbtu.kz" {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[0].Body != "Results attached" {
		t.Errorf("html body not normalized: %q", msgs[0].Body)
	}
	if msgs[0].ReceivedAt.UTC().Hour() != 10 {
		t.Errorf("received at = %v", msgs[0].ReceivedAt)
	}

	if msgs[1].Subject != "(No Subject)" {
		t.Errorf("missing subject not defaulted: %q", msgs[1].Subject)
	}
	if msgs[1].Body != "preview text" {
		t.Errorf("empty body should fall back to preview, got %q", msgs[1].Body)
	}
}

func TestFetchUnseenUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(t, srv).FetchUnseen(context.Background())
	if !mailbox.IsAuthError(err) {
		t.Fatalf("got %v, want AuthError", err)
	}
}

func TestFetchUnseenRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(t, srv).FetchUnseen(context.Background())

	after, ok := mailbox.RateLimit(err)
	if !ok {
		t.Fatalf("got %v, want rate-limited FetchError", err)
	}
	if after != 2*time.Minute {
		t.Errorf("retry after = %v, want 2m", after)
	}
}

func TestMarkSeenPatchesIsRead(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := testClient(t, srv).MarkSeen(context.Background(), "AAMk1"); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}

	if gotMethod != http.MethodPatch {
		t.Errorf("method = %s, want PATCH", gotMethod)
	}
	if gotPath != "/me/messages/AAMk1" {
		t.Errorf("path = %s", gotPath)
	}
	if !gotBody["isRead"] {
		t.Errorf("body = %v, want isRead=true", gotBody)
	}
}

func TestCallsFailWithoutValidToken(t *testing.T) {
	c := NewClient(NewTokenManager("id", "common", "http://localhost:8080", filepath.Join(t.TempDir(), "missing.json")), testLogger())

	err := c.Connect(context.Background())
	if !errors.Is(err, mailbox.ErrReauthRequired) {
		t.Fatalf("got %v, want ErrReauthRequired", err)
	}
}
