package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"mailmon/internal/domain/email"
)

const defaultCallTimeout = 20 * time.Second

// completer isolates the chat call so the parsing and fallback logic can
// be exercised without the network.
type completer interface {
	complete(ctx context.Context, prompt string) (string, error)
}

type openAICompleter struct {
	api   openai.Client
	model string
}

func (o *openAICompleter) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty LLM response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Client classifies messages with an OpenAI chat model.
type Client struct {
	completer    completer
	logger       *slog.Logger
	previewLimit int
	timeout      time.Duration
}

func New(apiKey, model string, logger *slog.Logger) *Client {
	api := openai.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &Client{
		completer:    &openAICompleter{api: api, model: model},
		logger:       logger,
		previewLimit: email.DefaultPreviewLength,
		timeout:      defaultCallTimeout,
	}
}

// Analyze returns a verdict for msg. Transport failure, timeout, or a
// malformed response all degrade to email.Fallback; the cycle never sees
// an error from here.
func (c *Client) Analyze(ctx context.Context, msg email.Message) email.Classification {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := c.completer.complete(ctx, c.buildPrompt(msg))
	if err != nil {
		c.logger.Warn("analysis call failed, using fallback verdict", "id", msg.ID, "error", err)
		return email.Fallback(msg.Subject)
	}

	result, err := parseVerdict(text)
	if err != nil {
		c.logger.Warn("analysis response malformed, using fallback verdict", "id", msg.ID, "error", err)
		return email.Fallback(msg.Subject)
	}

	return result
}

func (c *Client) buildPrompt(msg email.Message) string {
	return fmt.Sprintf(`Analyze the following email and return ONLY pure JSON, without markdown and without backticks.

Categories: ["Academic","Administrative","Social","Spam","Other"]
Priorities: ["High","Medium","Low"]

Rules:
- summary is 1-2 sentences.
- action_items lists concrete required actions; empty array if none.
- Pick exactly one category and one priority from the lists above.

Format:
{"category":"...","priority":"...","summary":"...","action_items":["..."]}

Email:
From: %s
Subject: %s
Received: %s

Body:
%s`, msg.From, msg.Subject, msg.ReceivedAt.Format(time.RFC3339), msg.BodyPreview(c.previewLimit))
}

type verdict struct {
	Category    string   `json:"category"`
	Priority    string   `json:"priority"`
	Summary     string   `json:"summary"`
	ActionItems []string `json:"action_items"`
}

// parseVerdict strips the markdown fences some models insist on, decodes
// the JSON verdict, and coerces out-of-schema enum values instead of
// propagating them.
func parseVerdict(text string) (email.Classification, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var v verdict
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return email.Classification{}, fmt.Errorf("cannot parse JSON: %w (raw=%s)", err, text)
	}

	return email.Classification{
		Category:    email.ParseCategory(v.Category),
		Priority:    email.ParsePriority(v.Priority),
		Summary:     strings.TrimSpace(v.Summary),
		ActionItems: v.ActionItems,
	}, nil
}
