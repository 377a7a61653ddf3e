package main

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/itsm-triage/internal/app"
	"github.com/spec-kit/itsm-triage/internal/pipeline"
	"github.com/spec-kit/itsm-triage/internal/ticketfile"
	apperrors "github.com/spec-kit/itsm-triage/pkg/util"
)

func runCommand(ctx context.Context, args []string, _ io.Reader, stdout, stderr io.Writer) error {
	var ticketPath, runner, outPath, logLevel string
	fs := pflag.NewFlagSet("triage run", pflag.ContinueOnError)
	fs.StringVarP(&ticketPath, "ticket", "t", "", "path to a ticket file (.json, .yaml or .yml)")
	fs.StringVarP(&runner, "runner", "r", pipeline.RunnerDirect, "execution mode: direct or mcp")
	fs.StringVarP(&outPath, "output", "o", "", "write the result here instead of stdout")
	fs.StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")
	if err := parseFlags(fs, args, stderr); err != nil {
		if errors.Is(err, errHelp) {
			return nil
		}
		return err
	}
	if ticketPath == "" {
		return apperrors.NewValidationError("--ticket is required", nil)
	}

	ticket, err := ticketfile.Load(ticketPath)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig(logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	result, err := a.Runner.Run(ctx, strings.ToLower(runner), ticket)
	if err != nil {
		return err
	}

	if outPath == "" {
		return ticketfile.WriteJSON(stdout, result)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := ticketfile.WriteJSON(f, result); err != nil {
		_ = f.Close()
		return err
	}
	logger.Info("result written", zap.String("path", outPath))
	return f.Close()
}
