// Package agent implements conversation.Agent on top of the remote services
// that can answer free-form requests.
package agent

import (
	"context"
	"errors"
	"fmt"

	"orchestra/internal/api"
	"orchestra/internal/conversation"
)

type VoiceCommander interface {
	VoiceCommand(ctx context.Context, command string, useAgent bool) (api.Response, error)
}

// Backend forwards everything to the automation backend's /voice-command
// endpoint with the agent flag set. The backend keeps its own conversation
// state, so history is not sent.
type Backend struct {
	client VoiceCommander
}

func NewBackend(client VoiceCommander) *Backend {
	return &Backend{client: client}
}

func (b *Backend) Submit(ctx context.Context, command string) error {
	_, err := b.client.VoiceCommand(ctx, command, true)
	return err
}

func (b *Backend) Reply(ctx context.Context, _ []conversation.Message, text string) (string, error) {
	resp, err := b.client.VoiceCommand(ctx, text, true)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("agent declined: %s", resp.Message)
	}
	if resp.Message == "" {
		return "", errors.New("empty agent reply")
	}
	return resp.Message, nil
}
