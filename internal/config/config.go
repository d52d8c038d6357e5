package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendIMAP  = "imap"
	BackendGraph = "graph"
	BackendGmail = "gmail"
)

type Config struct {
	// Mailbox backend: imap, graph, or gmail.
	Backend string `env:"MAILBOX_BACKEND" envDefault:"imap"`

	// IMAP (direct protocol)
	IMAPServer      string        `env:"IMAP_SERVER" envDefault:"outlook.office365.com:993"`
	IMAPUsername    string        `env:"IMAP_USERNAME"`
	IMAPPassword    string        `env:"IMAP_PASSWORD"`
	IMAPMailbox     string        `env:"IMAP_MAILBOX" envDefault:"INBOX"`
	IMAPDialTimeout time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`

	// Microsoft Graph (delegated HTTP)
	GraphClientID    string `env:"GRAPH_CLIENT_ID"`
	GraphTenantID    string `env:"GRAPH_TENANT_ID" envDefault:"common"`
	GraphRedirectURL string `env:"GRAPH_REDIRECT_URL" envDefault:"http://localhost:8080"`
	GraphTokenPath   string `env:"GRAPH_TOKEN_PATH" envDefault:"graph_token.json"`

	// Gmail (delegated HTTP)
	GmailCredentialsPath string `env:"GMAIL_CREDENTIALS_PATH" envDefault:"credentials.json"`
	GmailTokenPath       string `env:"GMAIL_TOKEN_PATH" envDefault:"token.json"`
	GmailMaxResults      int64  `env:"GMAIL_MAX_RESULTS" envDefault:"25"`

	// Gmail push notifications (optional)
	GoogleCloudProject string `env:"GOOGLE_CLOUD_PROJECT"`
	SubscriptionID     string `env:"SUBSCRIPTION_ID"`

	// Analysis backend; empty key disables LLM classification and every
	// message gets the deterministic fallback verdict.
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	ModelName    string `env:"MODEL_NAME" envDefault:"gpt-4o-mini"`

	// Poll loop
	PollInterval     time.Duration `env:"POLL_INTERVAL" envDefault:"60s"`
	RateLimitBackoff time.Duration `env:"RATE_LIMIT_BACKOFF" envDefault:"5m"`
	CallTimeout      time.Duration `env:"CALL_TIMEOUT" envDefault:"20s"`
	NumWorkers       int           `env:"NUM_WORKERS" envDefault:"1"`

	// Output
	WebhookURL string `env:"WEBHOOK_URL"`

	// Durable dedup journal; empty keeps the seen-set in memory only and
	// a restart reprocesses the current unseen window.
	DatabasePath string `env:"DATABASE_PATH"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (*Config, error) {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	switch cfg.Backend {
	case BackendIMAP:
		if cfg.IMAPUsername == "" || cfg.IMAPPassword == "" {
			return nil, fmt.Errorf("IMAP_USERNAME and IMAP_PASSWORD are required for the imap backend")
		}
	case BackendGraph:
		if cfg.GraphClientID == "" {
			return nil, fmt.Errorf("GRAPH_CLIENT_ID is required for the graph backend")
		}
	case BackendGmail:
		// Credential files are checked when the service is built.
	default:
		return nil, fmt.Errorf("unknown MAILBOX_BACKEND %q (want imap, graph, or gmail)", cfg.Backend)
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be positive")
	}

	return cfg, nil
}

// PushEnabled reports whether Gmail push notifications are configured.
func (c *Config) PushEnabled() bool {
	return c.Backend == BackendGmail && c.GoogleCloudProject != "" && c.SubscriptionID != ""
}

// TopicName is the Pub/Sub topic Gmail watch publishes to.
func (c *Config) TopicName() string {
	return fmt.Sprintf("projects/%s/topics/gmail-topic", c.GoogleCloudProject)
}
