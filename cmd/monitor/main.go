package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"mailmon/internal/classifier"
	"mailmon/internal/config"
	"mailmon/internal/mailbox"
	"mailmon/internal/mailbox/gmailc"
	"mailmon/internal/mailbox/graphc"
	"mailmon/internal/mailbox/imapc"
	"mailmon/internal/monitor"
	"mailmon/internal/pubsub"
	"mailmon/internal/store"
	"mailmon/internal/tracker"
)

func main() {
	authorize := flag.Bool("authorize", false, "run the interactive OAuth consent flow for the graph backend and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *authorize {
		if err := runAuthorize(ctx, cfg); err != nil {
			logger.Error("authorization failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("monitor exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	client, gmailClient, err := buildMailboxClient(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build mailbox client: %w", err)
	}

	seen := tracker.New()

	var analyzer classifier.Analyzer
	if cfg.OpenAIAPIKey != "" {
		analyzer = classifier.New(cfg.OpenAIAPIKey, cfg.ModelName, logger)
	} else {
		logger.Warn("OPENAI_API_KEY not set; messages will get fallback verdicts only")
		analyzer = classifier.Static{}
	}

	sinks := []monitor.Sink{&monitor.LogSink{Logger: logger}}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, monitor.NewWebhookSink(cfg.WebhookURL))
		logger.Info("webhook delivery enabled", "url", cfg.WebhookURL)
	}

	poller := monitor.NewPoller(client, analyzer, seen, sinks, logger, monitor.Options{
		Interval:         cfg.PollInterval,
		RateLimitBackoff: cfg.RateLimitBackoff,
		CallTimeout:      cfg.CallTimeout,
		Workers:          cfg.NumWorkers,
	})

	if cfg.DatabasePath != "" {
		st, err := store.New(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer st.Close()

		ids, err := st.LoadProcessed(ctx)
		if err != nil {
			return fmt.Errorf("preload journal: %w", err)
		}
		seen.Preload(ids)
		poller.SetJournal(st)
		logger.Info("durable dedup enabled", "path", cfg.DatabasePath, "preloaded", len(ids))
	}

	if cfg.PushEnabled() && gmailClient != nil {
		if err := gmailClient.EnableWatch(ctx, cfg.TopicName()); err != nil {
			logger.Warn("failed to enable gmail watch, falling back to polling only", "error", err)
		} else {
			sub, err := pubsub.NewSubscriber(ctx, cfg.GoogleCloudProject, cfg.SubscriptionID, logger)
			if err != nil {
				return fmt.Errorf("create pubsub subscriber: %w", err)
			}
			defer sub.Close()

			go func() {
				if err := sub.Listen(ctx, poller.TriggerNow); err != nil && ctx.Err() == nil {
					logger.Error("pubsub listener error", "error", err)
				}
			}()
		}
	}

	logger.Info("mailmon is running", "backend", cfg.Backend, "interval", cfg.PollInterval)
	return poller.Run(ctx)
}

func buildMailboxClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (mailbox.Client, *gmailc.Client, error) {
	switch cfg.Backend {
	case config.BackendIMAP:
		return imapc.New(imapc.Config{
			Addr:           cfg.IMAPServer,
			Username:       cfg.IMAPUsername,
			Password:       cfg.IMAPPassword,
			Mailbox:        cfg.IMAPMailbox,
			DialTimeout:    cfg.IMAPDialTimeout,
			CommandTimeout: cfg.CallTimeout,
		}, logger), nil, nil
	case config.BackendGraph:
		tokens := graphc.NewTokenManager(cfg.GraphClientID, cfg.GraphTenantID, cfg.GraphRedirectURL, cfg.GraphTokenPath)
		return graphc.NewClient(tokens, logger), nil, nil
	case config.BackendGmail:
		srv, err := gmailc.NewService(ctx, cfg.GmailCredentialsPath, cfg.GmailTokenPath)
		if err != nil {
			return nil, nil, err
		}
		client := gmailc.NewClient(srv, cfg.GmailMaxResults, logger)
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// runAuthorize performs the one-time interactive consent for the graph
// backend: print the URL, read the pasted redirect URL (or bare code),
// exchange it, and persist the token file.
func runAuthorize(ctx context.Context, cfg *config.Config) error {
	if cfg.Backend != config.BackendGraph {
		return fmt.Errorf("-authorize applies to the graph backend (MAILBOX_BACKEND=graph)")
	}

	tokens := graphc.NewTokenManager(cfg.GraphClientID, cfg.GraphTenantID, cfg.GraphRedirectURL, cfg.GraphTokenPath)

	fmt.Println("1) Copy this URL and open it in your browser:")
	fmt.Println(tokens.AuthCodeURL())
	fmt.Println("\n2) Sign in and accept the permissions.")
	fmt.Print("3) Paste the full redirect URL (or the code) here: ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("cannot read input: %w", err)
	}

	exCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := tokens.Exchange(exCtx, strings.TrimSpace(line)); err != nil {
		return err
	}

	fmt.Printf("Token saved to %s\n", cfg.GraphTokenPath)
	return nil
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.TimeOnly,
	}))
	slog.SetDefault(logger)
	return logger
}
