package main

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/itsm-triage/internal/app"
	"github.com/spec-kit/itsm-triage/internal/bridge"
	"github.com/spec-kit/itsm-triage/internal/llm"
)

// mcpServerCommand serves the stages on stdin/stdout until the client
// closes stdin or the process is signalled.
func mcpServerCommand(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var logLevel string
	fs := pflag.NewFlagSet("triage mcp-server", pflag.ContinueOnError)
	fs.StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")
	if err := parseFlags(fs, args, stderr); err != nil {
		if errors.Is(err, errHelp) {
			return nil
		}
		return err
	}

	cfg, logger, err := loadConfig(logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	logger = logger.Named("mcp-server")

	client, err := llm.New(ctx, cfg.Completion)
	if err != nil {
		return err
	}
	defer client.Close() //nolint:errcheck

	stages := app.NewStages(cfg.Completion, client, logger)
	logger.Info("serving tools over stdio", zap.String("provider", client.Name()), zap.String("version", cfg.App.Version))

	err = bridge.Serve(ctx, bridge.NewServer(stages, cfg.App.Version, logger), stdin, stdout, logger)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
