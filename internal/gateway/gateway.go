// Package gateway turns a stage prompt into a JSON mapping: one completion
// call, then tolerant extraction of the reply.
package gateway

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/itsm-triage/internal/extract"
	"github.com/spec-kit/itsm-triage/internal/llm"
	apperrors "github.com/spec-kit/itsm-triage/pkg/util"
)

// Preamble is placed ahead of every prompt.
const Preamble = "STRICT RULES:\n" +
	"1) Output ONLY JSON\n" +
	"2) No markdown, no ```\n" +
	"3) No trailing commas"

// CompletionError reports a failed completion call. Its message is the
// provider's own; it matches apperrors.ErrCompletion and the wrapped error.
type CompletionError struct {
	Provider string
	Err      error
}

func (e *CompletionError) Error() string { return e.Err.Error() }

func (e *CompletionError) Unwrap() error { return e.Err }

func (e *CompletionError) Is(target error) bool { return target == apperrors.ErrCompletion }

func (e *CompletionError) ErrorDetails() map[string]any {
	return map[string]any{"provider": e.Provider}
}

// Gateway owns a completion client and the generation parameters used with it.
type Gateway struct {
	client  llm.Client
	params  llm.Params
	timeout time.Duration
	logger  *zap.Logger
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithTimeout bounds each completion call. Zero leaves it unbounded.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func New(client llm.Client, params llm.Params, opts ...Option) *Gateway {
	g := &Gateway{client: client, params: params, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// BuildPrompt joins the preamble, system and user text.
func BuildPrompt(system, user string) string {
	parts := []string{Preamble}
	for _, p := range []string{system, user} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}

// CompleteJSON sends one prompt and returns whatever mapping the extractor
// recovers from the reply. An empty mapping means the reply held no usable
// JSON; that is not an error here. Service failures come back as a
// *CompletionError carrying the provider's error unmodified.
func (g *Gateway) CompleteJSON(ctx context.Context, system, user string) (map[string]any, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	prompt := BuildPrompt(system, user)
	start := time.Now()
	text, err := g.client.Complete(ctx, prompt, g.params)
	if err != nil {
		g.logger.Warn("completion failed",
			zap.String("provider", g.client.Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, &CompletionError{Provider: g.client.Name(), Err: err}
	}

	out := extract.ExtractAndParse(text)
	fields := []zap.Field{
		zap.String("provider", g.client.Name()),
		zap.Int("prompt_bytes", len(prompt)),
		zap.Int("reply_bytes", len(text)),
		zap.Duration("elapsed", time.Since(start)),
	}
	if len(out) == 0 {
		g.logger.Warn("completion reply held no JSON object", fields...)
	} else {
		g.logger.Debug("completion", fields...)
	}
	return out, nil
}
