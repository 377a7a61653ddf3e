package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/spec-kit/itsm-triage/internal/domain"
	"github.com/spec-kit/itsm-triage/internal/pipeline"
	apperrors "github.com/spec-kit/itsm-triage/pkg/util"
)

// ServerName is announced during the handshake.
const ServerName = "itsm-triage"

type toolHandlers struct {
	stages pipeline.Stages
	logger *zap.Logger
}

// NewServer registers the three stage tools on an MCP server. Arguments are
// validated again here; the server does not trust the client's mappings.
func NewServer(stages pipeline.Stages, version string, logger *zap.Logger) *server.MCPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &toolHandlers{stages: stages, logger: logger}

	s := server.NewMCPServer(ServerName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.AddTool(mcp.NewTool(ToolClassify,
		mcp.WithDescription("Classify an ITSM ticket into category, priority and assignment group."),
		mcp.WithObject(argTicket, mcp.Required(), mcp.Description("Ticket to classify.")),
	), h.classify)
	s.AddTool(mcp.NewTool(ToolTroubleshoot,
		mcp.WithDescription("Produce a troubleshooting plan for a classified ticket."),
		mcp.WithObject(argTicket, mcp.Required(), mcp.Description("Ticket being triaged.")),
		mcp.WithObject(argClassification, mcp.Required(), mcp.Description("Output of "+ToolClassify+".")),
	), h.troubleshoot)
	s.AddTool(mcp.NewTool(ToolCompose,
		mcp.WithDescription("Write the user message and the ticket work note."),
		mcp.WithObject(argTicket, mcp.Required(), mcp.Description("Ticket being triaged.")),
		mcp.WithObject(argClassification, mcp.Required(), mcp.Description("Output of "+ToolClassify+".")),
		mcp.WithObject(argTroubleshooting, mcp.Required(), mcp.Description("Output of "+ToolTroubleshoot+".")),
	), h.compose)
	return s
}

// Serve speaks MCP over r and w until ctx ends or r reaches EOF.
func Serve(ctx context.Context, s *server.MCPServer, r io.Reader, w io.Writer, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(zap.NewStdLog(logger.Named("mcp")))
	return stdio.Listen(ctx, r, w)
}

func (h *toolHandlers) classify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	args := req.GetArguments()
	ticket, err := ticketArg(args)
	if err != nil {
		return h.failure(ToolClassify, start, err), nil
	}
	cls, err := h.stages.Classify(ctx, ticket)
	if err != nil {
		return h.failure(ToolClassify, start, err), nil
	}
	return h.success(ToolClassify, start, cls), nil
}

func (h *toolHandlers) troubleshoot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	args := req.GetArguments()
	ticket, err := ticketArg(args)
	if err != nil {
		return h.failure(ToolTroubleshoot, start, err), nil
	}
	cls, err := classificationArg(args)
	if err != nil {
		return h.failure(ToolTroubleshoot, start, err), nil
	}
	ts, err := h.stages.Troubleshoot(ctx, ticket, cls)
	if err != nil {
		return h.failure(ToolTroubleshoot, start, err), nil
	}
	return h.success(ToolTroubleshoot, start, ts), nil
}

func (h *toolHandlers) compose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	args := req.GetArguments()
	ticket, err := ticketArg(args)
	if err != nil {
		return h.failure(ToolCompose, start, err), nil
	}
	cls, err := classificationArg(args)
	if err != nil {
		return h.failure(ToolCompose, start, err), nil
	}
	ts, err := troubleshootingArg(args)
	if err != nil {
		return h.failure(ToolCompose, start, err), nil
	}
	comm, err := h.stages.Compose(ctx, ticket, cls, ts)
	if err != nil {
		return h.failure(ToolCompose, start, err), nil
	}
	return h.success(ToolCompose, start, comm), nil
}

func (h *toolHandlers) success(tool string, start time.Time, v any) *mcp.CallToolResult {
	body, err := json.Marshal(v)
	if err != nil {
		return h.failure(tool, start, err)
	}
	h.logger.Info("tool call completed", zap.String("tool", tool), zap.Duration("duration", time.Since(start)))
	return mcp.NewToolResultText(string(body))
}

func (h *toolHandlers) failure(tool string, start time.Time, err error) *mcp.CallToolResult {
	de := apperrors.ToDomainError(err)
	h.logger.Error("tool call failed",
		zap.String("tool", tool),
		zap.String("code", de.Code),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	body, merr := json.Marshal(map[string]string{"code": de.Code, "message": err.Error()})
	if merr != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(string(body))
}

func objectArg(args map[string]any, key string) (map[string]any, error) {
	v, ok := args[key].(map[string]any)
	if !ok {
		reason := "field required"
		if raw, present := args[key]; present && raw != nil {
			reason = fmt.Sprintf("expected object, got %T", raw)
		}
		return nil, &domain.SchemaViolation{Model: "arguments", Fields: []domain.FieldError{{Field: key, Reason: reason}}}
	}
	return v, nil
}

func ticketArg(args map[string]any) (domain.Ticket, error) {
	m, err := objectArg(args, argTicket)
	if err != nil {
		return domain.Ticket{}, err
	}
	return domain.ParseTicket(m)
}

func classificationArg(args map[string]any) (domain.Classification, error) {
	m, err := objectArg(args, argClassification)
	if err != nil {
		return domain.Classification{}, err
	}
	return domain.ParseClassification(m)
}

func troubleshootingArg(args map[string]any) (domain.Troubleshooting, error) {
	m, err := objectArg(args, argTroubleshooting)
	if err != nil {
		return domain.Troubleshooting{}, err
	}
	return domain.ParseTroubleshooting(m)
}
