package email

import "time"

// DefaultPreviewLength bounds how much body text is handed to the
// classifier, keeping analysis cost and latency predictable.
const DefaultPreviewLength = 500

// Message is the canonical form of a mailbox item, independent of which
// backend it was fetched from. ID is the backend-native identifier and is
// the sole deduplication key; it is stable across polls for the same
// physical message.
type Message struct {
	ID         string
	From       string
	Subject    string
	ReceivedAt time.Time
	Body       string
}

func NewMessage(id, from, subject string, receivedAt time.Time, body string) Message {
	if subject == "" {
		subject = "(No Subject)"
	}
	return Message{
		ID:         id,
		From:       from,
		Subject:    subject,
		ReceivedAt: receivedAt,
		Body:       body,
	}
}

// BodyPreview returns at most limit runes of the body. A limit <= 0 falls
// back to DefaultPreviewLength.
func (m Message) BodyPreview(limit int) string {
	if limit <= 0 {
		limit = DefaultPreviewLength
	}
	runes := []rune(m.Body)
	if len(runes) <= limit {
		return m.Body
	}
	return string(runes[:limit])
}
