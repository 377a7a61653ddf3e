// Package app wires configuration into a ready pipeline runner shared by the
// CLI and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/itsm-triage/internal/bridge"
	"github.com/spec-kit/itsm-triage/internal/config"
	"github.com/spec-kit/itsm-triage/internal/events"
	"github.com/spec-kit/itsm-triage/internal/gateway"
	"github.com/spec-kit/itsm-triage/internal/llm"
	"github.com/spec-kit/itsm-triage/internal/observability"
	"github.com/spec-kit/itsm-triage/internal/persistence"
	"github.com/spec-kit/itsm-triage/internal/pipeline"
	"github.com/spec-kit/itsm-triage/internal/service"
	"github.com/spec-kit/itsm-triage/internal/worker"
)

// App holds the long-lived collaborators of one process.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Completion llm.Client
	Stages     *service.TriageService
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Runner     *pipeline.Runner
	// Redis is nil when event fan-out is disabled.
	Redis *persistence.Redis
}

// New builds the completion client, the stages and a runner able to execute
// both direct and bridged runs.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := llm.New(ctx, cfg.Completion)
	if err != nil {
		return nil, fmt.Errorf("completion provider: %w", err)
	}
	logger.Info("completion provider ready", zap.String("provider", client.Name()))

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Completion: client,
		Dispatcher: events.NewInMemoryDispatcher(),
		Metrics:    observability.NewMetrics(),
	}
	a.Stages = NewStages(cfg.Completion, client, logger)

	var publisher service.EventPublisher
	if cfg.Redis.Enabled() {
		a.Redis = persistence.NewRedis(cfg.Redis, logger)
		publisher = a.Redis
	}
	worker.StartRunNotifier(service.NewRunNotifier(a.Dispatcher, publisher, cfg.Redis.EventsChannel, logger.Named("events"),
		service.WithPublishTimeout(cfg.Redis.PublishTimeout()),
		service.WithPublishCooldown(cfg.Redis.PublishCooldown())))

	bridgeCfg := cfg.Bridge
	bridgeLogger := logger.Named("bridge")
	a.Runner = pipeline.NewRunner(pipeline.Dependencies{
		Stages: a.Stages,
		OpenSession: func(ctx context.Context) (pipeline.Session, error) {
			c, err := bridge.Dial(ctx, bridgeCfg, bridgeLogger)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Dispatcher: a.Dispatcher,
		Metrics:    a.Metrics,
		Logger:     logger,
	})
	return a, nil
}

// BridgeStatus spawns the configured tool server and confirms it lists the
// stage tools. The HTTP API uses it as an opt-in readiness check.
func (a *App) BridgeStatus(ctx context.Context) error {
	_, err := bridge.CheckStatus(ctx, a.Config.Bridge, a.Logger.Named("bridge"))
	return err
}

// NewStages builds the in-process stages on top of client.
func NewStages(cfg config.CompletionConfig, client llm.Client, logger *zap.Logger) *service.TriageService {
	gw := gateway.New(client,
		llm.Params{Temperature: cfg.Temperature, MaxOutputTokens: cfg.MaxOutputTokens},
		gateway.WithTimeout(cfg.Timeout()),
		gateway.WithLogger(logger.Named("gateway")),
	)
	return service.NewTriageService(gw, logger)
}

// Close releases the completion client and the Redis connection.
func (a *App) Close() error {
	var errs []error
	if a.Completion != nil {
		errs = append(errs, a.Completion.Close())
	}
	a.Redis.Close()
	return errors.Join(errs...)
}
