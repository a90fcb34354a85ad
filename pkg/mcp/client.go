// Package mcp implements a minimal client for Model Context Protocol
// servers speaking newline-delimited JSON-RPC over stdio.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultTimeout  = 60 * time.Second
	protocolVersion = "2024-11-05"
	maxFrameBytes   = 8 << 20
)

// Client talks to a running MCP server.
type Client interface {
	Initialize(ctx context.Context) error
	ListTools(ctx context.Context) ([]Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (ToolResult, error)
	Close() error
}

// Tool describes a tool exported by the server.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolResult is the outcome of a tool call. IsError marks failures the
// server reports as tool output rather than protocol errors, so the
// caller can feed them back to the model instead of aborting.
type ToolResult struct {
	Text    string
	IsError bool
}

// Option configures the client.
type Option func(*stdioClient)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *stdioClient) {
		c.timeout = d
	}
}

type stdioClient struct {
	cmd     *exec.Cmd
	in      io.WriteCloser
	out     *bufio.Reader
	timeout time.Duration

	mu  sync.Mutex
	seq int64
}

// Start launches the server command and attaches to its stdio. The
// process is killed when ctx is cancelled; callers should still Close
// to reap it.
func Start(ctx context.Context, command string, args []string, opts ...Option) (Client, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, eris.Wrap(err, "mcp: stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, eris.Wrap(err, "mcp: stdout pipe")
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, eris.Wrapf(err, "mcp: start %s", command)
	}
	client := &stdioClient{cmd: cmd, in: stdin, out: bufio.NewReader(stdout), timeout: defaultTimeout}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func newPipeClient(in io.WriteCloser, out io.Reader) *stdioClient {
	return &stdioClient{in: in, out: bufio.NewReader(out), timeout: defaultTimeout}
}

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      *int64         `json:"id,omitempty"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      *int64         `json:"id"`
	Result  map[string]any `json:"result"`
	Error   *rpcError      `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Initialize performs the MCP handshake. Must be called once before
// ListTools or CallTool.
func (c *stdioClient) Initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo":      map[string]any{"name": "dealhound", "version": "1.0"},
		"capabilities":    map[string]any{},
	}
	if _, err := c.send(ctx, "initialize", params); err != nil {
		return err
	}
	return c.notify("notifications/initialized")
}

// ListTools returns the tools the server exports.
func (c *stdioClient) ListTools(ctx context.Context) ([]Tool, error) {
	res, err := c.send(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	raw, ok := res["tools"].([]any)
	if !ok {
		return nil, eris.New("mcp: malformed tools/list reply")
	}
	tools := make([]Tool, 0, len(raw))
	for _, v := range raw {
		b, err := json.Marshal(v)
		if err != nil {
			continue
		}
		var t Tool
		if err := json.Unmarshal(b, &t); err != nil {
			continue
		}
		tools = append(tools, t)
	}
	return tools, nil
}

// CallTool invokes a named tool and flattens the reply content into text.
func (c *stdioClient) CallTool(ctx context.Context, name string, args map[string]any) (ToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	res, err := c.send(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return ToolResult{}, err
	}
	result := ToolResult{Text: flattenContent(res["content"])}
	if isErr, ok := res["isError"].(bool); ok {
		result.IsError = isErr
	}
	return result, nil
}

// Close shuts down stdin and reaps the server process.
func (c *stdioClient) Close() error {
	_ = c.in.Close()
	if c.cmd == nil {
		return nil
	}
	return c.cmd.Wait()
}

func (c *stdioClient) send(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	id := c.seq
	req := rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}
	if err := c.write(req); err != nil {
		return nil, eris.Wrapf(err, "mcp: write %s request", method)
	}

	deadline := time.Now().Add(c.timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrapf(err, "mcp: %s cancelled", method)
		}
		if time.Now().After(deadline) {
			return nil, eris.Errorf("mcp: timeout waiting for %s reply", method)
		}

		line, err := c.readFrame()
		if err != nil {
			return nil, eris.Wrapf(err, "mcp: read %s reply", method)
		}
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		// Skip server notifications and stale replies.
		if resp.ID == nil || *resp.ID != id {
			continue
		}
		if resp.Error != nil {
			return nil, eris.Errorf("mcp: rpc %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	}
}

func (c *stdioClient) notify(method string) error {
	if err := c.write(rpcRequest{JSONRPC: "2.0", Method: method}); err != nil {
		return eris.Wrapf(err, "mcp: write %s notification", method)
	}
	return nil
}

func (c *stdioClient) write(req rpcRequest) error {
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = c.in.Write(b)
	return err
}

func (c *stdioClient) readFrame() ([]byte, error) {
	var buf bytes.Buffer
	for {
		frag, err := c.out.ReadSlice('\n')
		buf.Write(frag)
		if buf.Len() > maxFrameBytes {
			return nil, eris.New("frame too large")
		}
		if err == nil {
			return bytes.TrimSpace(buf.Bytes()), nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return nil, err
		}
	}
}

func flattenContent(v any) string {
	blocks, ok := v.([]any)
	if !ok {
		return ""
	}
	var parts []string
	for _, b := range blocks {
		block, ok := b.(map[string]any)
		if !ok {
			continue
		}
		if t, ok := block["type"].(string); ok && t != "text" {
			continue
		}
		if text, ok := block["text"].(string); ok {
			parts = append(parts, text)
		}
	}
	return joinLines(parts)
}

func joinLines(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	var buf bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(p)
	}
	return buf.String()
}
