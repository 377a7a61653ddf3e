package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// Ollama completes prompts against a local Ollama server.
type Ollama struct {
	cli   *ollama.Client
	model string
}

// NewOllama builds the client; a zero timeout leaves HTTP calls unbounded.
func NewOllama(host, model string, timeout time.Duration) (*Ollama, error) {
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}
	return &Ollama{
		cli:   ollama.NewClient(u, &http.Client{Timeout: timeout}),
		model: model,
	}, nil
}

func (o *Ollama) Name() string { return "ollama:" + o.model }
func (o *Ollama) Close() error { return nil }

// Ping checks the server answers.
func (o *Ollama) Ping(ctx context.Context) error { return o.cli.Heartbeat(ctx) }

func (o *Ollama) Complete(ctx context.Context, prompt string, params Params) (string, error) {
	stream := false
	req := &ollama.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]any{
			"temperature": params.Temperature,
			"num_predict": params.MaxOutputTokens,
		},
	}

	var text strings.Builder
	if err := o.cli.Generate(ctx, req, func(gr ollama.GenerateResponse) error {
		text.WriteString(gr.Response)
		return nil
	}); err != nil {
		return "", err
	}
	return text.String(), nil
}
