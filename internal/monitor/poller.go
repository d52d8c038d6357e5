// Package monitor drives the fetch → normalize → dedupe → classify →
// mark pipeline on a fixed interval.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mailmon/internal/classifier"
	"mailmon/internal/domain/email"
	"mailmon/internal/mailbox"
	"mailmon/internal/tracker"
)

// Journal persists processed ids across restarts. Optional.
type Journal interface {
	MarkProcessed(ctx context.Context, id string) error
}

type Options struct {
	// Interval between poll cycles.
	Interval time.Duration
	// RateLimitBackoff replaces Interval after a rate-limited cycle when
	// the server gave no Retry-After.
	RateLimitBackoff time.Duration
	// CallTimeout bounds each individual network call so a hung backend
	// cannot stall the loop.
	CallTimeout time.Duration
	// Workers classify messages of one cycle concurrently. Each message
	// is handled by exactly one worker, so the per-message ordering
	// (classify before mark) holds regardless.
	Workers int
}

func (o *Options) fillDefaults() {
	if o.Interval <= 0 {
		o.Interval = 60 * time.Second
	}
	if o.RateLimitBackoff <= 0 {
		o.RateLimitBackoff = 5 * o.Interval
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 20 * time.Second
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
}

type Poller struct {
	client   mailbox.Client
	analyzer classifier.Analyzer
	seen     *tracker.SeenSet
	journal  Journal
	sinks    []Sink
	logger   *slog.Logger
	opts     Options

	trigger chan struct{}
	paused  bool
	cycle   int
}

func NewPoller(client mailbox.Client, analyzer classifier.Analyzer, seen *tracker.SeenSet, sinks []Sink, logger *slog.Logger, opts Options) *Poller {
	opts.fillDefaults()
	return &Poller{
		client:   client,
		analyzer: analyzer,
		seen:     seen,
		sinks:    sinks,
		logger:   logger,
		opts:     opts,
		trigger:  make(chan struct{}, 1),
	}
}

// SetJournal enables durable dedup; marks are appended after each
// successfully processed message.
func (p *Poller) SetJournal(j Journal) {
	p.journal = j
}

// TriggerNow requests an immediate cycle, e.g. from a push notification.
// Non-blocking; a pending trigger absorbs further ones.
func (p *Poller) TriggerNow() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. The first cycle starts immediately.
// Cycle-level failures never stop the loop; only a cancelled context does.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poll loop started", "interval", p.opts.Interval, "workers", p.opts.Workers)

	for {
		wait := p.opts.Interval
		if p.paused {
			// Fetching is suspended until the operator re-authorizes;
			// keep ticking so a restart is not required for log liveness.
			p.logger.Debug("skipping cycle: re-authorization required")
		} else {
			wait = p.runCycle(ctx)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info("poll loop stopped")
			return nil
		case <-timer.C:
		case <-p.trigger:
			timer.Stop()
			p.logger.Debug("cycle triggered early")
		}
	}
}

// runCycle executes one poll cycle and returns the wait before the next.
func (p *Poller) runCycle(ctx context.Context) time.Duration {
	p.cycle++
	log := p.logger.With("cycle", p.cycle)

	err := p.fetchAndProcess(ctx, log)
	if err == nil {
		return p.opts.Interval
	}

	switch {
	case errors.Is(err, context.Canceled):
		return p.opts.Interval
	case errors.Is(err, mailbox.ErrReauthRequired):
		p.paused = true
		log.Error("authorization expired and cannot be refreshed; run the authorize step and restart to resume fetching", "error", err)
		return p.opts.Interval
	default:
		if after, ok := mailbox.RateLimit(err); ok {
			wait := p.opts.RateLimitBackoff
			if after > wait {
				wait = after
			}
			log.Warn("rate limited, backing off", "wait", wait, "error", err)
			return wait
		}
		if mailbox.IsAuthError(err) {
			log.Error("cycle aborted: authentication failed", "error", err)
			return p.opts.Interval
		}
		log.Error("cycle aborted", "error", err)
		return p.opts.Interval
	}
}

func (p *Poller) fetchAndProcess(ctx context.Context, log *slog.Logger) error {
	connCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	err := p.client.Connect(connCtx)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := p.client.Close(); err != nil {
			log.Warn("failed to close mailbox session", "error", err)
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	msgs, err := p.client.FetchUnseen(fetchCtx)
	cancel()
	if err != nil {
		return err
	}

	var fresh []email.Message
	for _, msg := range msgs {
		if p.seen.IsNew(msg.ID) {
			fresh = append(fresh, msg)
		}
	}

	if len(fresh) == 0 {
		log.Debug("no new messages", "listed", len(msgs))
		return nil
	}

	log.Info("processing new messages", "count", len(fresh), "listed", len(msgs))

	jobs := make(chan email.Message)
	var wg sync.WaitGroup
	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range jobs {
				p.process(ctx, log, msg)
			}
		}()
	}
	for _, msg := range fresh {
		jobs <- msg
	}
	close(jobs)
	wg.Wait()

	return nil
}

// process handles one message end to end. Errors here are isolated: they
// are logged and never abort sibling messages. The server-side and local
// seen marks happen strictly after classification returns, on every path
// including the degraded one.
func (p *Poller) process(ctx context.Context, log *slog.Logger, msg email.Message) {
	result := p.analyzer.Analyze(ctx, msg)

	for _, sink := range p.sinks {
		if err := sink.Deliver(ctx, msg, result); err != nil {
			log.Warn("sink delivery failed", "id", msg.ID, "error", err)
		}
	}

	markCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	err := p.client.MarkSeen(markCtx, msg.ID)
	cancel()
	if err != nil {
		// Local dedup still prevents reprocessing even though the
		// server-side flag lagged.
		log.Warn("failed to mark seen server-side", "id", msg.ID, "error", err)
	}

	p.seen.Mark(msg.ID)
	if p.journal != nil {
		if err := p.journal.MarkProcessed(ctx, msg.ID); err != nil {
			log.Warn("failed to journal processed id", "id", msg.ID, "error", err)
		}
	}
}
