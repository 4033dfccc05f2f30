package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/citypulse/citypulse/internal/domain"
)

const maxSummaryTokens = 256

// Client implements domain.Summarizer using Anthropic's API.
type Client struct {
	client *anthropic.Client
	model  string
}

// NewClient creates a summary client. model may be empty to use the default.
func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = string(anthropic.ModelClaude3_5HaikuLatest)
	}
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &Client{
		client: &client,
		model:  model,
	}
}

// Summarize asks the model for a two-sentence city vibe summary.
func (c *Client) Summarize(ctx context.Context, req domain.SummaryRequest) (string, error) {
	prompt := buildPrompt(req)

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxSummaryTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("call summary model: %w", err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("summary model returned empty response")
	}

	return strings.TrimSpace(text), nil
}

func buildPrompt(req domain.SummaryRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write a friendly two-sentence summary of what's happening right now in %s.\n", req.City)
	fmt.Fprintf(&b, "Do not use bullet points, headers, or emoji. Respond with the summary only.\n\n")

	if len(req.Pulses) > 0 {
		b.WriteString("Recent resident posts:\n")
		for _, p := range req.Pulses {
			fmt.Fprintf(&b, "- %s\n", p)
		}
		b.WriteString("\n")
	}
	if len(req.Events) > 0 {
		b.WriteString("Events today:\n")
		for _, e := range req.Events {
			fmt.Fprintf(&b, "- %s\n", e)
		}
		b.WriteString("\n")
	}
	if len(req.News) > 0 {
		b.WriteString("Local headlines:\n")
		for _, n := range req.News {
			fmt.Fprintf(&b, "- %s\n", n)
		}
		b.WriteString("\n")
	}
	if req.Ambient.WeatherCondition != "" {
		fmt.Fprintf(&b, "Weather: %s\n", req.Ambient.WeatherCondition)
	}
	if req.Ambient.TrafficLevel != "" {
		fmt.Fprintf(&b, "Traffic: %s\n", req.Ambient.TrafficLevel)
	}

	return b.String()
}
