package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/itsm-triage/internal/bridge"
	"github.com/spec-kit/itsm-triage/internal/ticketfile"
)

// mcpStatusCommand spawns the configured tool server the way the mcp runner
// would, lists its tools and fails unless the three stage tools are there.
func mcpStatusCommand(ctx context.Context, args []string, _ io.Reader, stdout, stderr io.Writer) error {
	var logLevel string
	var asJSON bool
	fs := pflag.NewFlagSet("triage mcp-status", pflag.ContinueOnError)
	fs.BoolVar(&asJSON, "json", false, "print the status as JSON")
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

	status, err := bridge.CheckStatus(ctx, cfg.Bridge, logger.Named("bridge"))
	if err != nil && status.Server.Name == "" {
		return err
	}
	logger.Debug("tool server status",
		zap.String("command", cfg.Bridge.Command),
		zap.Strings("tools", status.Tools),
		zap.Duration("elapsed", status.Elapsed))

	if asJSON {
		if werr := ticketfile.WriteJSON(stdout, struct {
			OK        bool  `json:"ok"`
			ElapsedMS int64 `json:"elapsed_ms"`
			bridge.Status
		}{status.OK() && err == nil, status.Elapsed.Milliseconds(), status}); werr != nil {
			return werr
		}
		return err
	}

	fmt.Fprintf(stdout, "server:  %s %s\n", status.Server.Name, status.Server.Version)
	fmt.Fprintf(stdout, "tools:   %s\n", strings.Join(status.Tools, ", "))
	if len(status.Missing) > 0 {
		fmt.Fprintf(stdout, "missing: %s\n", strings.Join(status.Missing, ", "))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "status:  ok (%d ms)\n", status.Elapsed.Milliseconds())
	return nil
}
