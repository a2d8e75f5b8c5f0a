// Package backend wraps the hosted language-model completion API that
// every responder persona ultimately talks to.
package backend

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"boardroom/internal/config"
)

// Message is one turn of conversation history supplied to a completion.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request is an opaque (system, messages) -> text completion request.
// Temperature is a pointer so an explicit zero survives; nil means use
// the config default.
type Request struct {
	System      string
	Messages    []Message
	Model       string
	Temperature *float64
	MaxTokens   int
}

// Usage reports token counts for a single completion.
type Usage struct {
	TokensIn  int64
	TokensOut int64
}

// Client wraps the Anthropic SDK client with usage tracking.
type Client struct {
	inner   anthropic.Client
	cfg     config.BackendConfig
	tracker *UsageTracker
}

func NewClient(cfg config.BackendConfig) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("backend API key is not configured")
	}

	return &Client{
		inner:   anthropic.NewClient(option.WithAPIKey(apiKey)),
		cfg:     cfg,
		tracker: NewUsageTracker(),
	}, nil
}

// Tracker returns the usage tracker for this client.
func (c *Client) Tracker() *UsageTracker {
	return c.tracker
}

// Complete issues a single completion call. Defaults for model,
// temperature, and max tokens come from the backend config when the
// request leaves them unset.
func (c *Client) Complete(ctx context.Context, req Request) (string, Usage, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.cfg.MaxTokens
	}
	temperature := c.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		Messages:    messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := c.inner.Messages.New(ctx, params)
	if err != nil {
		return "", Usage{}, fmt.Errorf("completion call: %w", err)
	}

	usage := Usage{
		TokensIn:  resp.Usage.InputTokens,
		TokensOut: resp.Usage.OutputTokens,
	}
	c.tracker.Add(usage.TokensIn, usage.TokensOut)

	var text string
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += tb.Text
		}
	}
	if text == "" {
		return "", usage, fmt.Errorf("completion returned no text content")
	}

	return text, usage, nil
}
