package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/itsm-triage/internal/auth"
	"github.com/spec-kit/itsm-triage/internal/pipeline"
	apperrors "github.com/spec-kit/itsm-triage/pkg/util"
)

const serveEnv = "TRIAGE_TEST_SERVE_MCP"

// TestMain lets the test binary stand in for the tool server that
// mcp-status spawns.
func TestMain(m *testing.M) {
	if os.Getenv(serveEnv) == "1" {
		if err := run(context.Background(), []string{"mcp-server"}, os.Stdin, os.Stdout, os.Stderr); err != nil {
			os.Exit(2)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func offlineEnv(t *testing.T) {
	t.Setenv("COMPLETION_PROVIDER", "offline")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_OUTPUT", "stderr")
	t.Setenv("REDIS_ADDR", "")
}

func writeTicket(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ticket.json")
	body := `{"ticket_id":"INC-DEMO-001","short_description":"VPN not connecting","description":"User cannot connect to VPN. Error 809.","caller":"Demo User","impact":"Single User","urgency":"Medium"}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunDirectPrintsResult(t *testing.T) {
	offlineEnv(t)
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{"run", "--ticket", writeTicket(t)}, nil, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	assert.Equal(t, pipeline.RunnerDirect, res.Runner)
	assert.Equal(t, "INC-DEMO-001", res.Ticket.TicketID)
	assert.NotEmpty(t, res.Communication.TicketUpdate)
}

func TestRunWritesOutputFile(t *testing.T) {
	offlineEnv(t)
	out := filepath.Join(t.TempDir(), "result.json")
	var stdout bytes.Buffer

	require.NoError(t, run(context.Background(), []string{"run", "-t", writeTicket(t), "-o", out}, nil, &stdout, &bytes.Buffer{}))
	assert.Empty(t, stdout.String())
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"runner": "direct"`)
}

func TestRunUsageErrors(t *testing.T) {
	offlineEnv(t)
	cases := [][]string{
		nil,
		{"frobnicate"},
		{"run"},
		{"run", "--nope"},
		{"run", "--ticket", writeTicket(t), "extra"},
		{"run", "--ticket", writeTicket(t), "--runner", "carrier-pigeon"},
	}
	for _, args := range cases {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			err := run(context.Background(), args, nil, &bytes.Buffer{}, &bytes.Buffer{})
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeValidation, apperrors.ToDomainError(err).Code)
		})
	}
}

func TestHelpIsNotAnError(t *testing.T) {
	var stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--help"}, nil, &bytes.Buffer{}, &stderr))
	assert.Contains(t, stderr.String(), "mcp-server")

	stderr.Reset()
	require.NoError(t, run(context.Background(), []string{"run", "--help"}, nil, &bytes.Buffer{}, &stderr))
	assert.Contains(t, stderr.String(), "--runner")
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	var stdout bytes.Buffer

	require.NoError(t, run(context.Background(), []string{"token", "--role", "auditor", "--subject", "dash"}, nil, &stdout, &bytes.Buffer{}))
	claims, err := auth.NewTokenManager("s3cret", 1).ParseToken(strings.TrimSpace(stdout.String()))
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAuditor, claims.Role)
	assert.Equal(t, "dash", claims.Subject)

	err = run(context.Background(), []string{"token", "--role", "root"}, nil, &bytes.Buffer{}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "unknown role")

	t.Setenv("AUTH_JWT_SECRET", "")
	err = run(context.Background(), []string{"token"}, nil, &bytes.Buffer{}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "AUTH_JWT_SECRET")
}

func TestMCPServerAnswersHandshake(t *testing.T) {
	offlineEnv(t)
	stdin := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"t","version":"0"},"capabilities":{}}}` + "\n")
	var stdout bytes.Buffer

	require.NoError(t, run(context.Background(), []string{"mcp-server"}, stdin, &stdout, &bytes.Buffer{}))

	var reply struct {
		ID     int `json:"id"`
		Result struct {
			ServerInfo struct {
				Name string `json:"name"`
			} `json:"serverInfo"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &reply), stdout.String())
	assert.Equal(t, 1, reply.ID)
	assert.Equal(t, "itsm-triage", reply.Result.ServerInfo.Name)
}

// selfServerEnv points the bridge at this test binary in server mode.
func selfServerEnv(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("spawns a child process")
	}
	exe, err := os.Executable()
	require.NoError(t, err)
	offlineEnv(t)
	t.Setenv(serveEnv, "1")
	t.Setenv("MCP_SERVER_COMMAND", exe)
	t.Setenv("MCP_SERVER_ARGS", "-test.run=^$")
	t.Setenv("MCP_HANDSHAKE_TIMEOUT_SECONDS", "10")
}

func TestMCPStatusListsTools(t *testing.T) {
	selfServerEnv(t)
	var stdout, stderr bytes.Buffer

	require.NoError(t, run(context.Background(), []string{"mcp-status"}, nil, &stdout, &stderr), stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "server:  itsm-triage")
	assert.Contains(t, out, "tools:   classify_ticket_tool, compose_response_tool, troubleshoot_ticket_tool")
	assert.Contains(t, out, "status:  ok")
	assert.NotContains(t, out, "missing:")
}

func TestMCPStatusJSON(t *testing.T) {
	selfServerEnv(t)
	var stdout bytes.Buffer

	require.NoError(t, run(context.Background(), []string{"mcp-status", "--json"}, nil, &stdout, &bytes.Buffer{}))
	var got struct {
		OK     bool     `json:"ok"`
		Tools  []string `json:"tools"`
		Server struct {
			Name string `json:"name"`
		} `json:"server"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got), stdout.String())
	assert.True(t, got.OK)
	assert.Equal(t, "itsm-triage", got.Server.Name)
	assert.Len(t, got.Tools, 3)
}

func TestMCPStatusReportsMissingServer(t *testing.T) {
	offlineEnv(t)
	t.Setenv("MCP_SERVER_COMMAND", "no-such-triage-server")
	t.Setenv("MCP_SERVER_PATH", t.TempDir())
	var stdout bytes.Buffer

	err := run(context.Background(), []string{"mcp-status"}, nil, &stdout, &bytes.Buffer{})
	require.ErrorIs(t, err, apperrors.ErrTransport)
	assert.Empty(t, stdout.String())
	assert.True(t, strings.HasPrefix(formatError(err), "error [TRANSPORT_FAILURE]"))
}

func TestFormatError(t *testing.T) {
	err := &pipeline.StageError{
		Stage:  pipeline.StageTroubleshoot,
		Runner: pipeline.RunnerMCP,
		Err:    fmt.Errorf("%w: pipe closed", apperrors.ErrTransport),
	}
	assert.Equal(t,
		"error [TRANSPORT_FAILURE] stage=troubleshoot runner=mcp: troubleshoot stage (mcp runner): transport failure: pipe closed",
		formatError(err))

	assert.Equal(t, "error [VALIDATION_FAILED]: --ticket is required",
		formatError(apperrors.NewValidationError("--ticket is required", nil)))
}
