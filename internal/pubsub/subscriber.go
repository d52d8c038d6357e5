// Package pubsub turns Gmail watch notifications into early poll-loop
// ticks. The poll loop stays the source of truth; a notification only
// nudges it so new mail is picked up before the next scheduled cycle.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/pubsub"
)

// Notification is the Gmail watch payload.
type Notification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

type Subscriber struct {
	client         *pubsub.Client
	subscriptionID string
	logger         *slog.Logger

	mu      sync.Mutex
	handled map[uint64]bool
}

func NewSubscriber(ctx context.Context, projectID, subscriptionID string, logger *slog.Logger) (*Subscriber, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	return &Subscriber{
		client:         client,
		subscriptionID: subscriptionID,
		logger:         logger.With("component", "pubsub"),
		handled:        make(map[uint64]bool),
	}, nil
}

// Listen blocks receiving notifications until ctx is cancelled, calling
// notify once per distinct historyID. Gmail resends the same historyID
// several times; duplicates are dropped here.
func (s *Subscriber) Listen(ctx context.Context, notify func()) error {
	sub := s.client.Subscription(s.subscriptionID)

	s.logger.Info("pubsub listener started", "subscription", s.subscriptionID)

	return sub.Receive(ctx, func(_ context.Context, m *pubsub.Message) {
		defer m.Ack()

		var n Notification
		if err := json.Unmarshal(m.Data, &n); err != nil {
			s.logger.Warn("unparseable notification", "error", err, "raw", string(m.Data))
			return
		}

		s.mu.Lock()
		dup := s.handled[n.HistoryID]
		s.handled[n.HistoryID] = true
		s.mu.Unlock()
		if dup {
			return
		}

		s.logger.Debug("new mail notification", "address", n.EmailAddress, "history_id", n.HistoryID)
		notify()
	})
}

func (s *Subscriber) Close() error {
	return s.client.Close()
}
