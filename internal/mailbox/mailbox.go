// Package mailbox defines the capability surface shared by every mailbox
// backend, plus the error taxonomy the poll loop keys its recovery
// decisions on.
package mailbox

import (
	"context"

	"mailmon/internal/domain/email"
)

// Client is implemented by each backend (IMAP session, Graph REST,
// Gmail REST). Implementations normalize backend-native messages into
// the canonical email.Message before returning them.
type Client interface {
	// Connect establishes (or validates) whatever the backend needs to
	// serve fetches: a logged-in session for IMAP, a non-expired token
	// for the HTTP backends.
	Connect(ctx context.Context) error

	// FetchUnseen returns all messages not yet flagged seen server-side.
	// Ordering is backend-defined; callers must not rely on it.
	FetchUnseen(ctx context.Context) ([]email.Message, error)

	// MarkSeen durably flags the message as read on the server. Callers
	// must only invoke it after the message has been fully processed.
	MarkSeen(ctx context.Context, id string) error

	// Close releases the session on every exit path. Safe to call on a
	// client that never connected.
	Close() error
}
