package bridge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/spec-kit/itsm-triage/internal/config"
)

// RequiredTools are the tools a server must expose to run the pipeline.
var RequiredTools = []string{ToolClassify, ToolTroubleshoot, ToolCompose}

// ErrToolsMissing means the server answered but lacks a required tool.
var ErrToolsMissing = errors.New("tool server is missing required tools")

// Status describes a reachable tool server.
type Status struct {
	Server  mcp.Implementation `json:"server"`
	Tools   []string           `json:"tools"`
	Missing []string           `json:"missing,omitempty"`
	Elapsed time.Duration      `json:"-"`
}

// OK reports whether every required tool is present.
func (s Status) OK() bool { return len(s.Missing) == 0 }

// CheckStatus spawns the configured server, lists its tools and confirms
// the pipeline tools are there. The returned Status is filled in as far as
// the check got, so callers can report it alongside the error.
func CheckStatus(ctx context.Context, cfg config.BridgeConfig, logger *zap.Logger) (Status, error) {
	var status Status
	start := time.Now()
	err := WithSession(ctx, cfg, logger, func(c *Client) error {
		var err error
		status, err = StatusOf(ctx, c)
		return err
	})
	status.Elapsed = time.Since(start)
	return status, err
}

// StatusOf lists tools over an open session.
func StatusOf(ctx context.Context, c *Client) (Status, error) {
	status := Status{Server: c.Server()}
	tools, err := c.ListTools(ctx)
	if err != nil {
		return status, err
	}
	for _, tool := range tools {
		status.Tools = append(status.Tools, tool.Name)
	}
	slices.Sort(status.Tools)
	for _, name := range RequiredTools {
		if !slices.Contains(status.Tools, name) {
			status.Missing = append(status.Missing, name)
		}
	}
	if !status.OK() {
		return status, fmt.Errorf("%w: %s", ErrToolsMissing, strings.Join(status.Missing, ", "))
	}
	return status, nil
}
