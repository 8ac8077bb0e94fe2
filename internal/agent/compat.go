package agent

import (
	"context"
	"errors"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"orchestra/internal/conversation"
)

// Compat talks to any OpenAI-compatible chat endpoint (local llama.cpp,
// vLLM, hosted gateways) selected by base URL.
type Compat struct {
	client  *goopenai.Client
	model   string
	backend *Backend
}

func NewCompat(apiKey, baseURL, model string, httpClient *http.Client, backend *Backend) *Compat {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &Compat{client: goopenai.NewClientWithConfig(cfg), model: model, backend: backend}
}

func (c *Compat) Submit(ctx context.Context, command string) error {
	return c.backend.Submit(ctx, command)
}

func (c *Compat) Reply(ctx context.Context, history []conversation.Message, text string) (string, error) {
	msgs := []goopenai.ChatCompletionMessage{{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt}}
	for _, m := range history {
		role := goopenai.ChatMessageRoleUser
		if m.Role == conversation.RoleAI {
			role = goopenai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: text})

	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}
