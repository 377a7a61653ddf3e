package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned when a Scripted client runs out of replies.
var ErrScriptExhausted = errors.New("scripted completion: no reply queued")

// Scripted replays queued replies in order and records every prompt it was
// given. Tests use it in place of a real service.
type Scripted struct {
	mu      sync.Mutex
	replies []string
	prompts []string
	params  []Params

	// Err, when set, is returned by every call instead of a reply.
	Err error
}

func NewScripted(replies ...string) *Scripted {
	return &Scripted{replies: replies}
}

func (s *Scripted) Name() string { return "scripted" }
func (s *Scripted) Close() error { return nil }

func (s *Scripted) Complete(ctx context.Context, prompt string, params Params) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, prompt)
	s.params = append(s.params, params)
	if s.Err != nil {
		return "", s.Err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.replies) == 0 {
		return "", ErrScriptExhausted
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

// Prompts returns the prompts received so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Params returns the generation parameters received so far.
func (s *Scripted) Params() []Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Params(nil), s.params...)
}

// Calls reports how many completions were requested.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}
