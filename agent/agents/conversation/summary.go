package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
)

const summaryMaxTokens = 200

var _ contractx.Summarizer = (*Summarizer)(nil)

// Summarizer writes the short staff-facing summary stored on a finished call.
type Summarizer struct {
	client *openaisdk.Client
	model  string
	prompt string
}

func NewSummarizer(client *openaisdk.Client, model, prompt string) (*Summarizer, error) {
	if client == nil {
		return nil, errors.New("openai client is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("%w: summary model is required", contractx.ErrConfiguration)
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, contractx.ErrPromptMissing
	}
	return &Summarizer{client: client, model: strings.TrimSpace(model), prompt: prompt}, nil
}

func (s *Summarizer) Summarize(ctx context.Context, transcript []contractx.TranscriptEntry) (string, error) {
	if len(transcript) == 0 {
		return "", nil
	}

	resp, err := s.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(s.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(s.prompt),
			openaisdk.UserMessage(RenderTranscript(transcript)),
		},
		MaxCompletionTokens: openaisdk.Int(summaryMaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("%w: summary: %v", contractx.ErrModelInvoke, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: summary response has no choices", contractx.ErrModelInvoke)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// RenderTranscript formats entries one per line as "SPEAKER: text".
func RenderTranscript(transcript []contractx.TranscriptEntry) string {
	var b strings.Builder
	for _, e := range transcript {
		b.WriteString(string(e.Speaker))
		b.WriteString(": ")
		b.WriteString(e.Contents)
		if e.WasInterrupted {
			b.WriteString(" (interrupted)")
		}
		b.WriteByte('\n')
	}
	return b.String()
}
