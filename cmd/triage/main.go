// Command triage runs ITSM tickets through the classify, troubleshoot and
// compose pipeline, serves those stages as MCP tools, and mints API tokens.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/itsm-triage/internal/config"
	"github.com/spec-kit/itsm-triage/internal/observability"
	apperrors "github.com/spec-kit/itsm-triage/pkg/util"
)

const usage = `Usage: triage <command> [flags]

Commands:
  run         triage one ticket file and print the result JSON
  mcp-server  serve the pipeline stages as MCP tools over stdio
  mcp-status  spawn the configured tool server and list its tools
  token       mint a bearer token for the HTTP API

Run 'triage <command> --help' for command flags.
`

type command func(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error

var commands = map[string]command{
	"run":        runCommand,
	"mcp-server": mcpServerCommand,
	"mcp-status": mcpStatusCommand,
	"token":      tokenCommand,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return apperrors.NewValidationError("command required", nil)
	}
	if isHelp(args[0]) {
		fmt.Fprint(stderr, usage)
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return apperrors.NewValidationError(fmt.Sprintf("unknown command %q", args[0]), nil)
	}
	return cmd(ctx, args[1:], stdin, stdout, stderr)
}

// parseFlags parses args into fs. A help request is reported as errHelp
// after the flag defaults are printed.
func parseFlags(fs *pflag.FlagSet, args []string, stderr io.Writer) error {
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return errHelp
		}
		return apperrors.NewValidationError(err.Error(), nil)
	}
	if fs.NArg() > 0 {
		return apperrors.NewValidationError(fmt.Sprintf("unexpected argument %q", fs.Arg(0)), nil)
	}
	return nil
}

var errHelp = errors.New("help requested")

func isHelp(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}

// loadConfig reads configuration and builds a logger that never writes to
// stdout, which carries command output.
func loadConfig(levelOverride string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, apperrors.NewValidationError(err.Error(), nil)
	}
	if levelOverride != "" {
		cfg.Logger.Level = levelOverride
	}
	if strings.EqualFold(cfg.Logger.Output, "stdout") {
		cfg.Logger.Output = "stderr"
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// formatError renders err as "error [CODE] stage=... runner=...: cause".
func formatError(err error) string {
	de := apperrors.ToDomainError(err)
	var b strings.Builder
	fmt.Fprintf(&b, "error [%s]", de.Code)
	for _, key := range []string{"stage", "runner", "tool"} {
		if v, ok := de.Details[key].(string); ok && v != "" {
			fmt.Fprintf(&b, " %s=%s", key, v)
		}
	}
	b.WriteString(": ")
	b.WriteString(err.Error())
	return b.String()
}
