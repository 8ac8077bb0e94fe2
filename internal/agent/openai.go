package agent

import (
	"context"
	"fmt"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"

	"orchestra/internal/conversation"
)

const systemPrompt = `
You are the voice of an automation orchestrator running on the user's desk.
Replies are spoken aloud by a speech synthesizer.

RULES:
1. Answer in one to three short sentences.
2. No markdown, lists, code or emoji.
3. If the user asks to run something you cannot run, say so plainly.
`

// OpenAI answers conversation turns with a chat completion model. Unmatched
// commands are still submitted to the automation backend.
type OpenAI struct {
	client  openai.Client
	model   openai.ChatModel
	backend *Backend
}

func NewOpenAI(client openai.Client, model string, backend *Backend) *OpenAI {
	m := openai.ChatModelGPT5Nano
	if model != "" {
		m = openai.ChatModel(model)
	}
	return &OpenAI{client: client, model: m, backend: backend}
}

func (o *OpenAI) Submit(ctx context.Context, command string) error {
	return o.backend.Submit(ctx, command)
}

func (o *OpenAI) Reply(ctx context.Context, history []conversation.Message, text string) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	msgs = append(msgs, openai.SystemMessage(systemPrompt))
	for _, m := range history {
		if m.Role == conversation.RoleAI {
			msgs = append(msgs, openai.AssistantMessage(m.Text))
		} else {
			msgs = append(msgs, openai.UserMessage(m.Text))
		}
	}
	msgs = append(msgs, openai.UserMessage(text))

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    o.model,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("empty message content")
	}

	log.Debug("Agent replied", "model", o.model, "chars", len(content))
	return content, nil
}
