package llm

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"
)

// OpenAI completes prompts with the chat completions API. A custom base URL
// lets it target any compatible server.
type OpenAI struct {
	cli   *openai.Client
	model string
}

func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{cli: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAI) Name() string { return "openai:" + o.model }
func (o *OpenAI) Close() error { return nil }

func (o *OpenAI) Complete(ctx context.Context, prompt string, params Params) (string, error) {
	resp, err := o.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: float32(params.Temperature),
		MaxTokens:   params.MaxOutputTokens,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		}},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in openai response")
	}
	return resp.Choices[0].Message.Content, nil
}
