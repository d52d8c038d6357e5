package mailbox

import (
	"errors"
	"fmt"
	"time"
)

// ErrReauthRequired signals that the stored token is expired and no
// refresh credential exists. The poll loop must stop fetching and surface
// an actionable notice instead of retrying.
var ErrReauthRequired = errors.New("re-authorization required: access token expired and no refresh token is available")

// AuthError indicates rejected credentials or a rejected token. Reason
// carries the human-readable remediation hint ("credentials wrong" vs
// "protocol disabled" vs "token expired").
type AuthError struct {
	Backend string
	Reason  string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth error (%s): %s: %v", e.Backend, e.Reason, e.Err)
	}
	return fmt.Sprintf("auth error (%s): %s", e.Backend, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError indicates a transport or protocol fault mid-fetch.
// RateLimited marks the retryable sub-kind that should trigger an
// extended backoff before the next cycle.
type FetchError struct {
	Backend     string
	RateLimited bool
	RetryAfter  time.Duration
	Err         error
}

func (e *FetchError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("fetch error (%s): rate limited: %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("fetch error (%s): %v", e.Backend, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// RateLimit reports whether err is a rate-limited FetchError and, if so,
// the server-suggested wait (zero when the server gave none).
func RateLimit(err error) (time.Duration, bool) {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) && fetchErr.RateLimited {
		return fetchErr.RetryAfter, true
	}
	return 0, false
}
