package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
)

// HTTPClient posts one JSON-RPC 2.0 request per call to a tool server URL.
// Unlike the stdio transport, HTTP clients may issue concurrent requests.
type HTTPClient struct {
	url        string
	httpClient *http.Client
	nextID     atomic.Int64

	mu      sync.Mutex
	closed  bool
	tools   []ToolDescriptor
	haveToo bool
}

// NewHTTPClient creates a client that posts JSON-RPC requests to url.
func NewHTTPClient(url string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{url: url, httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient overrides the underlying *http.Client (timeouts, transport).
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.httpClient = hc }
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *HTTPClient) post(ctx context.Context, method string, params any, out any) error {
	req := rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: marshal request: %v", ErrTransport, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrTransport, err)
	}
	if rpcResp.Error != nil {
		return &ToolError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("%w: unmarshal result: %v", ErrTransport, err)
		}
	}
	return nil
}

// Connect implements Client.
func (c *HTTPClient) Connect(ctx context.Context) error {
	var result map[string]any
	if err := c.post(ctx, "initialize", map[string]any{"protocolVersion": "2024-11-05"}, &result); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	return nil
}

// ListTools implements Client.
func (c *HTTPClient) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	c.mu.Lock()
	if c.haveToo {
		tools := c.tools
		c.mu.Unlock()
		return tools, nil
	}
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrTransportClosed
	}

	var result struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := c.post(ctx, "tools/list", nil, &result); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.tools = result.Tools
	c.haveToo = true
	c.mu.Unlock()
	return result.Tools, nil
}

// Invalidate implements Client.
func (c *HTTPClient) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.haveToo = false
	c.tools = nil
}

// CallTool implements Client.
func (c *HTTPClient) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrTransportClosed
	}

	callCtx, cancel := context.WithTimeout(ctx, DefaultCallTimeout)
	defer cancel()

	var result map[string]any
	err := c.post(callCtx, "tools/call", map[string]any{"name": name, "arguments": args}, &result)
	if err != nil {
		if callCtx.Err() != nil && ctx.Err() == nil {
			return nil, ErrToolTimeout
		}
		return nil, err
	}
	return &ToolResult{Content: result}, nil
}

// Close implements Client.
func (c *HTTPClient) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.httpClient.CloseIdleConnections()
	return nil
}
