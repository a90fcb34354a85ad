package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startFakeServer wires a client to an in-process server over pipes. The
// handler receives each decoded request and returns raw lines to write
// back, one frame per line.
func startFakeServer(t *testing.T, handler func(req rpcRequest) [][]byte) (*stdioClient, chan rpcRequest) {
	t.Helper()

	toServerR, toServerW := io.Pipe()
	fromServerR, fromServerW := io.Pipe()
	requests := make(chan rpcRequest, 16)

	go func() {
		scanner := bufio.NewScanner(toServerR)
		for scanner.Scan() {
			var req rpcRequest
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				continue
			}
			requests <- req
			for _, line := range handler(req) {
				if _, err := fromServerW.Write(append(line, '\n')); err != nil {
					return
				}
			}
		}
	}()

	client := newPipeClient(toServerW, fromServerR)
	t.Cleanup(func() { _ = client.Close() })
	return client, requests
}

func respond(req rpcRequest, result map[string]any) []byte {
	b, err := json.Marshal(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
	if err != nil {
		panic(err)
	}
	return b
}

func nextRequest(t *testing.T, requests chan rpcRequest) rpcRequest {
	t.Helper()
	select {
	case req := <-requests:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("no request received")
		return rpcRequest{}
	}
}

func TestInitialize(t *testing.T) {
	t.Parallel()

	client, requests := startFakeServer(t, func(req rpcRequest) [][]byte {
		if req.Method != "initialize" {
			return nil
		}
		return [][]byte{respond(req, map[string]any{
			"protocolVersion": protocolVersion,
			"serverInfo":      map[string]any{"name": "filesystem", "version": "2025.1.14"},
		})}
	})

	err := client.Initialize(context.Background())
	require.NoError(t, err)

	first := nextRequest(t, requests)
	assert.Equal(t, "initialize", first.Method)
	assert.Equal(t, protocolVersion, first.Params["protocolVersion"])

	second := nextRequest(t, requests)
	assert.Equal(t, "notifications/initialized", second.Method)
	assert.Nil(t, second.ID)
}

func TestListTools(t *testing.T) {
	t.Parallel()

	client, _ := startFakeServer(t, func(req rpcRequest) [][]byte {
		return [][]byte{respond(req, map[string]any{
			"tools": []any{
				map[string]any{
					"name":        "write_file",
					"description": "Create or overwrite a file",
					"inputSchema": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"path":    map[string]any{"type": "string"},
							"content": map[string]any{"type": "string"},
						},
						"required": []any{"path", "content"},
					},
				},
				map[string]any{"name": "read_file", "description": "Read a file"},
			},
		})}
	})

	tools, err := client.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)

	assert.Equal(t, "write_file", tools[0].Name)
	assert.Equal(t, "Create or overwrite a file", tools[0].Description)
	assert.Equal(t, "object", tools[0].InputSchema["type"])
	assert.Equal(t, "read_file", tools[1].Name)
	assert.Nil(t, tools[1].InputSchema)
}

func TestListTools_MalformedReply(t *testing.T) {
	t.Parallel()

	client, _ := startFakeServer(t, func(req rpcRequest) [][]byte {
		return [][]byte{respond(req, map[string]any{"tools": "nope"})}
	})

	_, err := client.ListTools(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed tools/list reply")
}

func TestCallTool(t *testing.T) {
	t.Parallel()

	client, requests := startFakeServer(t, func(req rpcRequest) [][]byte {
		return [][]byte{respond(req, map[string]any{
			"content": []any{
				map[string]any{"type": "text", "text": "wrote 120 bytes"},
			},
		})}
	})

	result, err := client.CallTool(context.Background(), "write_file", map[string]any{
		"path":    "deals.md",
		"content": "# Deals",
	})
	require.NoError(t, err)
	assert.Equal(t, "wrote 120 bytes", result.Text)
	assert.False(t, result.IsError)

	req := nextRequest(t, requests)
	assert.Equal(t, "tools/call", req.Method)
	assert.Equal(t, "write_file", req.Params["name"])
	args, ok := req.Params["arguments"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "deals.md", args["path"])
}

func TestCallTool_ToolReportedError(t *testing.T) {
	t.Parallel()

	client, _ := startFakeServer(t, func(req rpcRequest) [][]byte {
		return [][]byte{respond(req, map[string]any{
			"isError": true,
			"content": []any{
				map[string]any{"type": "text", "text": "access denied: /etc/passwd is outside allowed directories"},
			},
		})}
	})

	result, err := client.CallTool(context.Background(), "read_file", map[string]any{"path": "/etc/passwd"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Text, "outside allowed directories")
}

func TestCallTool_RPCError(t *testing.T) {
	t.Parallel()

	client, _ := startFakeServer(t, func(req rpcRequest) [][]byte {
		b, err := json.Marshal(rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &rpcError{Code: -32601, Message: "method not found"},
		})
		require.NoError(t, err)
		return [][]byte{b}
	})

	_, err := client.CallTool(context.Background(), "bogus", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mcp: rpc -32601: method not found")
}

func TestSend_SkipsNoiseAndNotifications(t *testing.T) {
	t.Parallel()

	client, _ := startFakeServer(t, func(req rpcRequest) [][]byte {
		return [][]byte{
			[]byte("Secure MCP Filesystem Server running on stdio"),
			[]byte(`{"jsonrpc":"2.0","method":"notifications/progress","params":{}}`),
			respond(req, map[string]any{
				"content": []any{map[string]any{"type": "text", "text": "ok"}},
			}),
		}
	})

	result, err := client.CallTool(context.Background(), "list_directory", map[string]any{"path": "."})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Text)
}

func TestSend_Timeout(t *testing.T) {
	t.Parallel()

	client, _ := startFakeServer(t, func(req rpcRequest) [][]byte {
		time.Sleep(50 * time.Millisecond)
		return [][]byte{[]byte("still starting up")}
	})
	client.timeout = 10 * time.Millisecond

	_, err := client.CallTool(context.Background(), "read_file", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mcp: timeout waiting for tools/call reply")
}

func TestSend_ContextCancelled(t *testing.T) {
	t.Parallel()

	client, _ := startFakeServer(t, func(req rpcRequest) [][]byte {
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ListTools(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tools/list cancelled")
}

func TestFlattenContent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content any
		want    string
	}{
		{
			name: "joins text blocks",
			content: []any{
				map[string]any{"type": "text", "text": "line one"},
				map[string]any{"type": "text", "text": "line two"},
			},
			want: "line one\nline two",
		},
		{
			name: "skips non-text blocks",
			content: []any{
				map[string]any{"type": "image", "data": "aGk="},
				map[string]any{"type": "text", "text": "caption"},
			},
			want: "caption",
		},
		{name: "nil content", content: nil, want: ""},
		{name: "not a list", content: "text", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, flattenContent(tt.content))
		})
	}
}
