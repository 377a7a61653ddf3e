package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/itsm-triage/internal/api/http"
	"github.com/spec-kit/itsm-triage/internal/api/http/handlers"
	"github.com/spec-kit/itsm-triage/internal/app"
	"github.com/spec-kit/itsm-triage/internal/auth"
	"github.com/spec-kit/itsm-triage/internal/config"
	"github.com/spec-kit/itsm-triage/internal/llm"
	"github.com/spec-kit/itsm-triage/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build pipeline", zap.Error(err))
	}
	defer a.Close() //nolint:errcheck

	var authMiddleware *auth.AuthMiddleware
	if cfg.Auth.JWTSecret != "" {
		authMiddleware = auth.NewAuthMiddleware(auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes))
	} else {
		logger.Warn("AUTH_JWT_SECRET not set, /v1 is unauthenticated")
	}

	checks := []handlers.Check{{
		Name: "completion:" + a.Completion.Name(),
		Ping: func(ctx context.Context) error {
			if p, ok := a.Completion.(llm.Pinger); ok {
				return p.Ping(ctx)
			}
			return nil
		},
	}}
	if a.Redis != nil {
		checks = append(checks, handlers.Check{Name: "redis", Ping: a.Redis.Ping})
	}
	if cfg.Bridge.ReadyCheck {
		checks = append(checks, handlers.Check{Name: "mcp-bridge", Ping: a.BridgeStatus})
	}

	fiberApp := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(fiberApp, logger, a.Metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(fiberApp, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, checks...),
		Triage:         handlers.NewTriageHandler(a.Runner),
		Metrics:        handlers.NewMetricsHandler(a.Metrics),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := fiberApp.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = fiberApp.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
