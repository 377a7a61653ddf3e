package bridge

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/itsm-triage/internal/config"
	"github.com/spec-kit/itsm-triage/internal/domain"
	"github.com/spec-kit/itsm-triage/internal/gateway"
	"github.com/spec-kit/itsm-triage/internal/llm"
	"github.com/spec-kit/itsm-triage/internal/pipeline"
	"github.com/spec-kit/itsm-triage/internal/service"
	apperrors "github.com/spec-kit/itsm-triage/pkg/util"
)

const helperEnv = "BRIDGE_TEST_HELPER"

// TestMain lets the test binary double as a tool server child process.
func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "serve":
		err := Serve(context.Background(), NewServer(offlineStages(), "test", nil), os.Stdin, os.Stdout, nil)
		if err != nil {
			os.Exit(2)
		}
		os.Exit(0)
	case "hang":
		_, _ = io.Copy(io.Discard, os.Stdin)
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func offlineStages() *service.TriageService {
	return service.NewTriageService(gateway.New(llm.NewOffline(), llm.Params{Temperature: 0.2, MaxOutputTokens: 1200}), nil)
}

func testTicket() domain.Ticket {
	impact, urgency := "Single User", "Medium"
	return domain.Ticket{
		TicketID:         "INC-1",
		ShortDescription: "VPN not connecting",
		Description:      "Error 809",
		Caller:           domain.UnknownCaller,
		Impact:           &impact,
		Urgency:          &urgency,
	}
}

// startServer runs an mcp-go server in-process and returns a transport to it.
func startServer(t *testing.T, stages pipeline.Stages) Transport {
	t.Helper()
	toClientR, toClientW := io.Pipe()
	toServerR, toServerW := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Serve(ctx, NewServer(stages, "test", nil), toServerR, toClientW, nil)
		_ = toClientW.Close()
	}()

	tr := NewLineTransport(toClientR, toServerW)
	t.Cleanup(func() {
		_ = tr.Close()
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	})
	return tr
}

func TestServerPipelineMatchesDirect(t *testing.T) {
	tr := startServer(t, offlineStages())
	client, err := NewClient(context.Background(), tr, ClientOptions{CallTimeout: 10 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, ServerName, client.Server().Name)

	runner := pipeline.NewRunner(pipeline.Dependencies{
		Stages:      offlineStages(),
		OpenSession: func(context.Context) (pipeline.Session, error) { return client, nil },
	})
	direct, err := runner.RunDirect(context.Background(), testTicket())
	require.NoError(t, err)
	remote, err := runner.RunMCP(context.Background(), testTicket())
	require.NoError(t, err)

	assert.Equal(t, pipeline.RunnerDirect, direct.Runner)
	assert.Equal(t, pipeline.RunnerMCP, remote.Runner)
	remote.Runner = direct.Runner
	assert.Equal(t, direct, remote)
}

func TestServerRevalidatesArguments(t *testing.T) {
	tr := startServer(t, offlineStages())
	client, err := NewClient(context.Background(), tr, ClientOptions{})
	require.NoError(t, err)

	ticket, err := domain.AsMap(testTicket())
	require.NoError(t, err)

	_, err = client.CallTool(context.Background(), ToolClassify, map[string]any{})
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, apperrors.CodeSchemaViolation, te.Code)
	assert.Contains(t, te.Message, "ticket")

	_, err = client.CallTool(context.Background(), ToolTroubleshoot, map[string]any{
		"ticket": ticket,
		"classification": map[string]any{
			"category": "VPN", "priority": "P9", "assignment_group": "g", "confidence": 0.5, "reason": "r",
		},
	})
	require.ErrorAs(t, err, &te)
	assert.Equal(t, apperrors.CodeSchemaViolation, te.Code)
	assert.Contains(t, te.Message, "priority")

	_, err = client.CallTool(context.Background(), ToolCompose, map[string]any{
		"ticket": map[string]any{"ticket_id": "INC-1"},
	})
	require.ErrorAs(t, err, &te)
	assert.Equal(t, apperrors.CodeSchemaViolation, te.Code)

	// Tool failures do not end the session.
	out, err := client.CallTool(context.Background(), ToolClassify, map[string]any{"ticket": ticket})
	require.NoError(t, err)
	assert.Equal(t, "VPN", out["category"])
}

func TestServerReportsStageFailure(t *testing.T) {
	garbage := service.NewTriageService(gateway.New(llm.NewScripted("no json here"), llm.Params{}), nil)
	tr := startServer(t, garbage)
	client, err := NewClient(context.Background(), tr, ClientOptions{})
	require.NoError(t, err)

	_, err = client.Classify(context.Background(), testTicket())
	require.ErrorIs(t, err, apperrors.ErrToolFailed)
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, apperrors.CodeUnparsableOutput, te.Code)
	assert.Equal(t, ToolClassify, te.Tool)
}

func TestServerListsTools(t *testing.T) {
	tr := startServer(t, offlineStages())
	client, err := NewClient(context.Background(), tr, ClientOptions{CallTimeout: 10 * time.Second})
	require.NoError(t, err)

	tools, err := client.ListTools(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description, tool.Name)
	}
	assert.ElementsMatch(t, RequiredTools, names)

	status, err := StatusOf(context.Background(), client)
	require.NoError(t, err)
	assert.True(t, status.OK())
	assert.Equal(t, ServerName, status.Server.Name)

	// Listing leaves the session usable for calls.
	ticket, err := domain.AsMap(testTicket())
	require.NoError(t, err)
	out, err := client.CallTool(context.Background(), ToolClassify, map[string]any{"ticket": ticket})
	require.NoError(t, err)
	assert.Equal(t, "VPN", out["category"])
}

func TestStatusOfReportsMissingTools(t *testing.T) {
	tr := startPeer(t, func(msg map[string]any) []string {
		switch msg["method"] {
		case "initialize":
			return []string{result(msg, initializeResult)}
		case "tools/list":
			params, _ := msg["params"].(map[string]any)
			if params["cursor"] == "page-2" {
				return []string{result(msg, `{"tools":[{"name":"echo","inputSchema":{"type":"object"}}]}`)}
			}
			return []string{result(msg, `{"tools":[{"name":"classify_ticket_tool","inputSchema":{"type":"object"}}],"nextCursor":"page-2"}`)}
		}
		return nil
	})
	client, err := NewClient(context.Background(), tr, ClientOptions{})
	require.NoError(t, err)

	status, err := StatusOf(context.Background(), client)
	require.ErrorIs(t, err, ErrToolsMissing)
	assert.Equal(t, []string{ToolClassify, "echo"}, status.Tools)
	assert.Equal(t, []string{ToolTroubleshoot, ToolCompose}, status.Missing)
	assert.False(t, status.OK())
}

func TestListToolsOnClosedSession(t *testing.T) {
	tr := startServer(t, offlineStages())
	client, err := NewClient(context.Background(), tr, ClientOptions{})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = client.ListTools(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrTransport)
	assert.ErrorContains(t, err, "session closed")
}

func helperConfig(t *testing.T, mode string) config.BridgeConfig {
	t.Helper()
	if testing.Short() {
		t.Skip("spawns a child process")
	}
	exe, err := os.Executable()
	require.NoError(t, err)
	t.Setenv(helperEnv, mode)
	return config.BridgeConfig{
		Command:                 exe,
		Args:                    "-test.run=^$",
		HandshakeTimeoutSeconds: 1,
		CallTimeoutSeconds:      20,
		ShutdownGraceSeconds:    5,
	}
}

func TestDialSubprocessEndToEnd(t *testing.T) {
	cfg := helperConfig(t, "serve")

	var res pipeline.Result
	err := WithSession(context.Background(), cfg, nil, func(c *Client) error {
		runner := pipeline.NewRunner(pipeline.Dependencies{
			OpenSession: func(context.Context) (pipeline.Session, error) { return noClose{c}, nil },
		})
		var err error
		res, err = runner.RunMCP(context.Background(), testTicket())
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.RunnerMCP, res.Runner)
	assert.Equal(t, domain.CategoryVPN, res.Classification.Category)
	assert.NotEmpty(t, res.Troubleshooting.Steps)
	assert.NotEmpty(t, res.Communication.UserMessage)
}

func TestCheckStatusSubprocess(t *testing.T) {
	status, err := CheckStatus(context.Background(), helperConfig(t, "serve"), nil)
	require.NoError(t, err)
	assert.True(t, status.OK())
	assert.Equal(t, ServerName, status.Server.Name)
	assert.ElementsMatch(t, RequiredTools, status.Tools)
	assert.Positive(t, status.Elapsed)
}

func TestCheckStatusMissingCommand(t *testing.T) {
	_, err := CheckStatus(context.Background(), config.BridgeConfig{Command: "no-such-triage-server", SearchPath: t.TempDir()}, nil)
	require.ErrorIs(t, err, apperrors.ErrTransport)
}

func TestDialHandshakeTimeoutKillsChild(t *testing.T) {
	cfg := helperConfig(t, "hang")

	start := time.Now()
	_, err := Dial(context.Background(), cfg, nil)
	require.ErrorIs(t, err, apperrors.ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestDialMissingCommand(t *testing.T) {
	_, err := Dial(context.Background(), config.BridgeConfig{Command: "no-such-triage-server", SearchPath: t.TempDir()}, nil)
	require.ErrorIs(t, err, apperrors.ErrTransport)
	de := apperrors.ToDomainError(err)
	assert.Equal(t, "spawn", de.Details["op"])
}

func TestWithSessionReleasesOnPanic(t *testing.T) {
	cfg := helperConfig(t, "serve")

	var client *Client
	assert.Panics(t, func() {
		_ = WithSession(context.Background(), cfg, nil, func(c *Client) error {
			client = c
			panic("boom")
		})
	})
	require.NotNil(t, client)
	_, err := client.CallTool(context.Background(), ToolClassify, nil)
	assert.ErrorContains(t, err, "session closed")
}

// noClose hands a session to the runner without letting it close it, so
// WithSession stays the owner.
type noClose struct{ *Client }

func (noClose) Close() error { return nil }
