// Package bridge exposes the pipeline stages as MCP tools and calls them
// across a process boundary.
//
// The server half registers three tools on an mcp-go server and serves them
// over stdio. The client half spawns that server, performs the initialize
// handshake, and issues one tools/call at a time, decoding replies
// defensively. Every mapping that crosses the boundary is validated again
// on the receiving side.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

var errSessionClosed = errors.New("session closed")

// ClientOptions tune a Client.
type ClientOptions struct {
	// HandshakeTimeout bounds initialize; zero leaves it unbounded.
	HandshakeTimeout time.Duration
	// CallTimeout bounds each tool call; zero leaves it unbounded.
	CallTimeout time.Duration
	Logger      *zap.Logger
	ClientInfo  mcp.Implementation
	// Command names the server in error details.
	Command string
	// OnAbort runs when the session fails; Dial uses it to kill the child.
	OnAbort func()
}

// Client is one session with a tool server. Calls are strictly sequential.
type Client struct {
	transport Transport
	opts      ClientOptions
	logger    *zap.Logger

	mu     sync.Mutex
	nextID int64
	failed error
	closed bool

	server     mcp.Implementation
	closeHooks []func() error
}

// NewClient performs the handshake over transport. On failure the transport
// is closed and OnAbort runs.
func NewClient(ctx context.Context, transport Transport, opts ClientOptions) (*Client, error) {
	if transport == nil {
		return nil, errors.New("bridge: transport is nil")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ClientInfo.Name == "" {
		opts.ClientInfo = mcp.Implementation{Name: "itsm-triage", Version: "dev"}
	}
	c := &Client{transport: transport, opts: opts, logger: opts.Logger}

	if err := c.initialize(ctx); err != nil {
		c.abort(err)
		return nil, err
	}
	return c, nil
}

// Server reports what the server announced during the handshake.
func (c *Client) Server() mcp.Implementation { return c.server }

func (c *Client) initialize(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, c.opts.HandshakeTimeout)
	defer cancel()

	params := map[string]any{
		"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
		"clientInfo":      c.opts.ClientInfo,
		"capabilities":    mcp.ClientCapabilities{},
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := c.roundTrip(ctx, string(mcp.MethodInitialize), params)
	if err != nil {
		return c.transportError("handshake", "", err)
	}
	var res mcp.InitializeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return c.transportError("handshake", "", fmt.Errorf("decode initialize result: %w", err))
	}
	c.server = res.ServerInfo

	note, err := json.Marshal(request{JSONRPC: mcp.JSONRPC_VERSION, Method: methodInitialized})
	if err != nil {
		return err
	}
	if err := c.transport.Send(ctx, note); err != nil {
		return c.transportError("handshake", "", err)
	}
	c.logger.Debug("bridge handshake complete",
		zap.String("server", res.ServerInfo.Name),
		zap.String("server_version", res.ServerInfo.Version),
		zap.String("protocol", res.ProtocolVersion))
	return nil
}

// CallTool invokes name with args and decodes the reply with DecodeReply.
// A reply flagged isError becomes a *ToolError. Transport problems and
// timeouts fail the whole session.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, c.transportError("call", name, errSessionClosed)
	}
	if c.failed != nil {
		return nil, c.transportError("call", name, fmt.Errorf("session failed earlier: %w", c.failed))
	}

	ctx, cancel := withTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	start := time.Now()
	raw, err := c.roundTrip(ctx, string(mcp.MethodToolsCall), toolCallParams{Name: name, Arguments: args})
	if err != nil {
		terr := c.transportError("call", name, err)
		c.failLocked(terr)
		return nil, terr
	}

	var flag struct {
		IsError bool `json:"isError"`
	}
	if json.Unmarshal(raw, &flag) == nil && flag.IsError {
		return nil, toolError(name, raw)
	}

	out := DecodeReply(raw)
	c.logger.Debug("tool call",
		zap.String("tool", name),
		zap.Int("reply_bytes", len(raw)),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

// maxToolPages bounds tools/list pagination against a server that keeps
// returning a cursor.
const maxToolPages = 50

// ListTools asks the server for its tool catalogue, following pagination
// cursors. It shares the call timeout and, like CallTool, a transport
// failure ends the session.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, c.transportError("list tools", "", errSessionClosed)
	}
	if c.failed != nil {
		return nil, c.transportError("list tools", "", fmt.Errorf("session failed earlier: %w", c.failed))
	}

	ctx, cancel := withTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	var (
		tools  []mcp.Tool
		cursor mcp.Cursor
	)
	for page := 0; page < maxToolPages; page++ {
		raw, err := c.roundTrip(ctx, string(mcp.MethodToolsList), mcp.PaginatedParams{Cursor: cursor})
		if err != nil {
			terr := c.transportError("list tools", "", err)
			c.failLocked(terr)
			return nil, terr
		}
		var res mcp.ListToolsResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, c.transportError("list tools", "", fmt.Errorf("decode tools/list result: %w", err))
		}
		tools = append(tools, res.Tools...)
		if res.NextCursor == "" || res.NextCursor == cursor {
			break
		}
		cursor = res.NextCursor
	}
	c.logger.Debug("listed tools", zap.Int("count", len(tools)))
	return tools, nil
}

// roundTrip sends one request and waits for the reply with the same ID.
// Callers hold c.mu.
func (c *Client) roundTrip(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.nextID++
	id := c.nextID
	payload, err := json.Marshal(request{JSONRPC: mcp.JSONRPC_VERSION, ID: &id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", method, err)
	}
	if err := c.transport.Send(ctx, payload); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	want := strconv.FormatInt(id, 10)
	for {
		msg, err := c.transport.Receive(ctx)
		if err != nil {
			return nil, fmt.Errorf("await %s reply: %w", method, err)
		}

		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			c.logger.Debug("skipping non-JSON line from server", zap.ByteString("line", truncate(msg, 200)))
			continue
		}
		if env.Method != "" {
			if env.hasID() {
				c.answerServerRequest(ctx, &env)
			}
			continue
		}
		if !env.hasID() || env.idString() != want {
			continue
		}
		if env.Error != nil {
			return nil, rpcFailure{env.Error}
		}
		return env.Result, nil
	}
}

// answerServerRequest replies to requests the server sends mid-call so it
// is never left waiting. Only ping is supported.
func (c *Client) answerServerRequest(ctx context.Context, env *envelope) {
	resp := response{JSONRPC: mcp.JSONRPC_VERSION, ID: env.ID}
	if env.Method == string(mcp.MethodPing) {
		resp.Result = json.RawMessage(`{}`)
	} else {
		resp.Error = &rpcError{Code: codeMethodNotFound, Message: "method not supported by client: " + env.Method}
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.transport.Send(ctx, payload); err != nil {
		c.logger.Debug("answer server request", zap.String("method", env.Method), zap.Error(err))
	}
}

// Close ends the session and runs any release hooks. It is safe to call
// more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	hooks := c.closeHooks
	c.mu.Unlock()

	errs := []error{c.transport.Close()}
	for _, hook := range hooks {
		errs = append(errs, hook())
	}
	return errors.Join(errs...)
}

func (c *Client) failLocked(err error) {
	if c.failed != nil {
		return
	}
	c.failed = err
	c.logger.Warn("bridge session failed", zap.Error(err))
	_ = c.transport.Close()
	if c.opts.OnAbort != nil {
		c.opts.OnAbort()
	}
}

func (c *Client) abort(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failLocked(err)
}

func (c *Client) transportError(op, tool string, err error) error {
	return &TransportError{Op: op, Tool: tool, Command: c.opts.Command, Err: err}
}

func toolError(name string, raw json.RawMessage) error {
	text := replyText(raw)
	te := &ToolError{Tool: name, Message: text}
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(text), &body); err == nil && body.Message != "" {
		te.Code, te.Message = body.Code, body.Message
	}
	if te.Message == "" {
		te.Message = "tool reported an error"
	}
	return te
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
