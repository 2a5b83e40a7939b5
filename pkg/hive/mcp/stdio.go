package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/sourcegraph/jsonrpc2"
)

// stdioReadWriteCloser pairs a child process's stdout/stdin into a single
// io.ReadWriteCloser for jsonrpc2's framed stream.
type stdioReadWriteCloser struct {
	io.ReadCloser
	io.WriteCloser
}

func (s *stdioReadWriteCloser) Close() error {
	werr := s.WriteCloser.Close()
	rerr := s.ReadCloser.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// StdioClient launches a child process and communicates with it via
// length-prefixed (Content-Length framed) JSON-RPC 2.0 over its stdin and
// stdout, as used by LSP-style tool servers. It is a per-server singleton:
// only one request is in flight at a time, enforced by callMu.
type StdioClient struct {
	argv   []string
	logger *slog.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	conn      *jsonrpc2.Conn
	closed    bool
	failed    bool
	failCause error
	tools     []ToolDescriptor
	haveTools bool

	callMu sync.Mutex
}

// NewStdioClient creates a client that will spawn argv[0] with the
// remaining elements as arguments when Connect is called.
func NewStdioClient(argv []string, opts ...StdioOption) *StdioClient {
	c := &StdioClient{argv: argv, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StdioOption configures a StdioClient.
type StdioOption func(*StdioClient)

// WithStdioLogger sets the logger used for lifecycle events.
func WithStdioLogger(logger *slog.Logger) StdioOption {
	return func(c *StdioClient) { c.logger = logger }
}

// Connect implements Client.
func (c *StdioClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.argv) == 0 {
		return fmt.Errorf("%w: empty argv", ErrHandshakeFailed)
	}

	cmd := exec.CommandContext(context.Background(), c.argv[0], c.argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	stream := jsonrpc2.NewBufferedStream(&stdioReadWriteCloser{ReadCloser: stdout, WriteCloser: stdin}, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(context.Background(), stream, jsonrpc2.HandlerWithError(c.handleServerRequest))

	var initResult map[string]any
	if err := conn.Call(ctx, "initialize", map[string]any{"protocolVersion": "2024-11-05"}, &initResult); err != nil {
		conn.Close()
		cmd.Process.Kill()
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	c.cmd = cmd
	c.conn = conn
	c.closed = false
	c.failed = false
	c.failCause = nil

	// A server that dies takes the connection down with it; every later
	// call must fail immediately until Connect is re-invoked.
	go func() {
		<-conn.DisconnectNotify()
		c.mu.Lock()
		if !c.closed {
			c.failed = true
			if c.failCause == nil {
				c.failCause = fmt.Errorf("%w: server disconnected", ErrTransportClosed)
			}
		}
		c.mu.Unlock()
	}()
	return nil
}

func (c *StdioClient) handleServerRequest(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	// Tool servers only send requests/notifications we don't act on
	// (progress, logging); acknowledge to keep the stream well-formed.
	return nil, nil
}

// ListTools implements Client.
func (c *StdioClient) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	c.mu.Lock()
	if c.haveTools {
		tools := c.tools
		c.mu.Unlock()
		return tools, nil
	}
	conn, err := c.liveConnLocked()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	c.callMu.Lock()
	defer c.callMu.Unlock()

	var result struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := conn.Call(ctx, "tools/list", nil, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	c.mu.Lock()
	c.tools = result.Tools
	c.haveTools = true
	c.mu.Unlock()
	return result.Tools, nil
}

// Invalidate implements Client.
func (c *StdioClient) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.haveTools = false
	c.tools = nil
}

// CallTool implements Client.
func (c *StdioClient) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	c.mu.Lock()
	conn, err := c.liveConnLocked()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	c.callMu.Lock()
	defer c.callMu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, DefaultCallTimeout)
	defer cancel()

	resultCh := make(chan callOutcome, 1)
	go func() {
		var result map[string]any
		err := conn.Call(callCtx, "tools/call", map[string]any{"name": name, "arguments": args}, &result)
		resultCh <- callOutcome{result: result, err: err}
	}()

	select {
	case outcome := <-resultCh:
		if outcome.err != nil {
			if rpcErr, ok := outcome.err.(*jsonrpc2.Error); ok {
				return nil, &ToolError{Code: int(rpcErr.Code), Message: rpcErr.Message}
			}
			if errors.Is(outcome.err, jsonrpc2.ErrClosed) {
				return nil, fmt.Errorf("%w: %v", ErrTransportClosed, outcome.err)
			}
			return nil, fmt.Errorf("%w: %v", ErrTransport, outcome.err)
		}
		return &ToolResult{Content: outcome.result}, nil
	case <-callCtx.Done():
		_ = conn.Notify(context.Background(), "$/cancelRequest", map[string]any{"name": name})
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrToolTimeout
	}
}

type callOutcome struct {
	result map[string]any
	err    error
}

// liveConnLocked returns the connection if the client is usable; callers
// hold c.mu. A failed client keeps rejecting with its original cause.
func (c *StdioClient) liveConnLocked() (*jsonrpc2.Conn, error) {
	if c.failed {
		if c.failCause != nil {
			return nil, c.failCause
		}
		return nil, ErrTransportClosed
	}
	if c.closed || c.conn == nil {
		return nil, ErrTransportClosed
	}
	return c.conn, nil
}

// Close implements Client.
func (c *StdioClient) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	cmd := c.cmd
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-done:
		return nil
	case <-time.After(DefaultCloseGrace):
		if err := cmd.Process.Kill(); err != nil {
			c.logger.Warn("failed to kill mcp stdio child", slog.String("error", err.Error()))
		}
		<-done
		return nil
	}
}
