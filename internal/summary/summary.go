// Package summary condenses an item's content into a couple of sentences
// using Claude. It is an optional nicety: the daemon runs without it when no
// API key is configured.
package summary

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

//go:embed system_prompt.txt
var systemPrompt string

// maxContentBytes bounds how much of an article is sent along; anything past
// this adds tokens without adding signal.
const maxContentBytes = 24 * 1024

type claudeSummary struct {
	Summary string `json:"summary"`
}

// Use a schema to constrain the output
var (
	outputSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary": map[string]any{"type": "string"},
		},
		"required": []string{"summary"},
	}
	outputFormat = anthropic.BetaJSONSchemaOutputFormat(outputSchema)
)

type Summarizer struct {
	client anthropic.Client
}

func New(apiKey string) *Summarizer {
	return &Summarizer{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Summarize condenses one article. Title gives the model context; content is
// the sanitized article body.
func (s *Summarizer) Summarize(ctx context.Context, title, content string) (string, error) {
	if len(content) > maxContentBytes {
		content = content[:maxContentBytes]
	}
	userMessage := fmt.Sprintf("Title: %s\n\nArticle:\n%s", title, content)

	resp, err := s.client.Beta.Messages.New(ctx, anthropic.BetaMessageNewParams{
		Model: anthropic.ModelClaudeHaiku4_5,
		Betas: []anthropic.AnthropicBeta{
			"structured-outputs-2025-11-13",
		},
		MaxTokens:    1024,
		OutputFormat: outputFormat,
		System: []anthropic.BetaTextBlockParam{{
			Text: systemPrompt,
		}},
		Messages: []anthropic.BetaMessageParam{
			anthropic.NewBetaUserMessage(anthropic.NewBetaTextBlock(userMessage)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("error calling claude: %w", err)
	}

	var claudeJson strings.Builder
	for _, content := range resp.Content {
		claudeJson.WriteString(content.Text)
	}
	var cs claudeSummary
	if err := json.Unmarshal([]byte(claudeJson.String()), &cs); err != nil {
		return "", fmt.Errorf("error unmarshaling claude json: %s", err)
	}

	return cs.Summary, nil
}
