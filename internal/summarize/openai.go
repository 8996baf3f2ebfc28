package summarize

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jibinmichael/paperforslack/pkg/models"
)

const summarySystemPrompt = `You summarize team chat conversations into a living channel document.
Write concise markdown with these sections when the content supports them:
"## What happened", "## Decisions", "## Action items".
Attribute decisions and action items to people by name. Do not invent
content that is not in the transcript. Keep the whole summary under 400
words.`

const titleSystemPrompt = `Write a short title (at most six words) for a team chat summary.
Return only the title text, no quotes, no punctuation at the end.`

// OpenAIConfig configures the OpenAI-backed gateway.
type OpenAIConfig struct {
	APIKey string
	// Model defaults to gpt-4o-mini.
	Model string
	// BaseURL overrides the API endpoint for compatible providers.
	BaseURL string
}

// OpenAIGateway implements Gateway against the OpenAI chat completions
// API. Safe for concurrent use; every call is independent.
type OpenAIGateway struct {
	client *openai.Client
	model  string
}

// NewOpenAIGateway creates the gateway.
func NewOpenAIGateway(cfg OpenAIConfig) *OpenAIGateway {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIGateway{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

// Summarize implements Gateway.
func (g *OpenAIGateway) Summarize(ctx context.Context, msgs []models.Message) (string, error) {
	return g.complete(ctx, summarySystemPrompt, Transcript(msgs), 700)
}

// Title implements Gateway.
func (g *OpenAIGateway) Title(ctx context.Context, msgs []models.Message) (string, error) {
	title, err := g.complete(ctx, titleSystemPrompt, Transcript(msgs), 20)
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(title), `"`), nil
}

func (g *OpenAIGateway) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     g.model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Transcript renders messages as "[15:04] name: text" lines for the
// prompt.
func Transcript(msgs []models.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		name := m.UserName
		if name == "" {
			name = m.UserID
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp.Format("Jan 2 15:04"), name, m.Text)
	}
	return b.String()
}
