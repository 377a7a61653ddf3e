package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/itsm-triage/internal/events"
)

// EventPublisher delivers a serialized event to an external channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

const (
	DefaultPublishTimeout  = 2 * time.Second
	DefaultPublishCooldown = 30 * time.Second
)

// RunNotifier reports pipeline run events to the log and, when a publisher
// is configured, fans them out as JSON. Each publish is bounded by a timeout;
// after a failure publishing is skipped until the cooldown has passed.
type RunNotifier struct {
	dispatcher events.Dispatcher
	publisher  EventPublisher
	channel    string
	logger     *zap.Logger

	timeout  time.Duration
	cooldown time.Duration
	now      func() time.Time

	mu          sync.Mutex
	pausedUntil time.Time
}

// NotifierOption customizes a RunNotifier.
type NotifierOption func(*RunNotifier)

// WithPublishTimeout bounds a single publish; zero disables the bound.
func WithPublishTimeout(d time.Duration) NotifierOption {
	return func(n *RunNotifier) { n.timeout = d }
}

// WithPublishCooldown sets how long publishing stays paused after a failure;
// zero retries on every event.
func WithPublishCooldown(d time.Duration) NotifierOption {
	return func(n *RunNotifier) { n.cooldown = d }
}

// NewRunNotifier creates the notifier. publisher may be nil.
func NewRunNotifier(dispatcher events.Dispatcher, publisher EventPublisher, channel string, logger *zap.Logger, opts ...NotifierOption) *RunNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &RunNotifier{
		dispatcher: dispatcher,
		publisher:  publisher,
		channel:    channel,
		logger:     logger,
		timeout:    DefaultPublishTimeout,
		cooldown:   DefaultPublishCooldown,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// RegisterHandlers subscribes to every run event.
func (n *RunNotifier) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	events.SubscribeAll(n.dispatcher, n.handle)
}

func (n *RunNotifier) handle(ctx context.Context, event events.Event) error {
	n.log(event)
	if n.publisher == nil {
		return nil
	}
	if n.paused() {
		n.logger.Debug("event publish paused", zap.String("type", string(event.Type)), zap.String("run_id", event.RunID))
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	if err := n.publisher.Publish(ctx, n.channel, payload); err != nil {
		n.pause()
		return fmt.Errorf("publish %s event to %s: %w", event.Type, n.channel, err)
	}
	return nil
}

func (n *RunNotifier) paused() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.now().Before(n.pausedUntil)
}

func (n *RunNotifier) pause() {
	if n.cooldown <= 0 {
		return
	}
	n.mu.Lock()
	n.pausedUntil = n.now().Add(n.cooldown)
	n.mu.Unlock()
	n.logger.Warn("event publishing paused after failure", zap.String("channel", n.channel), zap.Duration("cooldown", n.cooldown))
}

func (n *RunNotifier) log(event events.Event) {
	fields := []zap.Field{
		zap.String("run_id", event.RunID),
		zap.String("ticket_id", event.TicketID),
		zap.String("runner", event.Runner),
	}
	if event.Stage != "" {
		fields = append(fields, zap.String("stage", event.Stage))
	}

	switch p := event.Payload.(type) {
	case events.FailurePayload:
		fields = append(fields,
			zap.String("code", p.Code),
			zap.String("error", p.Error),
			zap.Int64("elapsed_ms", p.ElapsedMS))
		n.logger.Warn(string(event.Type), fields...)
	case events.StageCompletedPayload:
		n.logger.Info(string(event.Type), append(fields, zap.Int64("elapsed_ms", p.ElapsedMS))...)
	case events.RunCompletedPayload:
		n.logger.Info(string(event.Type), append(fields, zap.Int64("elapsed_ms", p.ElapsedMS))...)
	default:
		n.logger.Debug(string(event.Type), fields...)
	}
}
