// Package classifier assigns a category, priority, summary, and action
// items to each canonical message. Analysis is best-effort: Analyze is
// total and degrades to a deterministic fallback rather than failing a
// poll cycle.
package classifier

import (
	"context"

	"mailmon/internal/domain/email"
)

type Analyzer interface {
	Analyze(ctx context.Context, msg email.Message) email.Classification
}

// Static is the no-LLM analyzer: every message gets the schema-valid
// degraded verdict. Used when no analysis credential is configured.
type Static struct{}

func (Static) Analyze(_ context.Context, msg email.Message) email.Classification {
	return email.Fallback(msg.Subject)
}
