package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
	"github.com/tansive/minima-mcp/internal/events"
	"github.com/tansive/minima-mcp/internal/mds"
	"github.com/tansive/minima-mcp/internal/mds/mdstest"
	"github.com/tansive/minima-mcp/internal/store"
	"github.com/tidwall/gjson"
)

const testPassword = "s3cret"

type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type harness struct {
	node   *mdstest.Node
	client *mds.Client
	events *events.Manager
	store  store.Store
	srv    *server.MCPServer
	nextID int
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, func(*Deps) {})
}

func newHarnessWith(t *testing.T, configure func(*Deps)) *harness {
	t.Helper()
	node := mdstest.NewNode(testPassword)
	t.Cleanup(node.Close)

	client, err := mds.New(context.Background(), mds.Options{
		Host:     node.Host(),
		Port:     node.Port(),
		Password: testPassword,
		UseHTTP:  true,
		Timeout:  5 * time.Second,
		Retry:    mds.RetryPolicy{MaxRetries: -1},
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	st := store.NewMemoryStore()
	mgr := events.NewManager(events.ManagerOptions{HistorySize: 100, Store: st})

	d := Deps{
		Node:            client,
		Events:          mgr,
		Store:           st,
		DefaultCategory: "Utility",
	}
	configure(&d)

	srv := server.NewMCPServer("minima-mcp-test", "0.0.0", server.WithToolCapabilities(true))
	srv.AddTools(All(d)...)
	return &harness{node: node, client: client, events: mgr, store: st, srv: srv}
}

func (h *harness) rpc(t *testing.T, method string, params any) gjson.Result {
	t.Helper()
	h.nextID++
	raw, err := json.Marshal(jsonrpcRequest{JSONRPC: "2.0", ID: h.nextID, Method: method, Params: params})
	require.NoError(t, err)
	resp := h.srv.HandleMessage(context.Background(), raw)
	out, err := json.Marshal(resp)
	require.NoError(t, err)
	r := gjson.ParseBytes(out)
	require.False(t, r.Get("error").Exists(), "JSON-RPC error: %s", out)
	return r.Get("result")
}

// call invokes a tool and returns the decoded envelope and the isError flag.
func (h *harness) call(t *testing.T, name string, args map[string]any) (gjson.Result, bool) {
	t.Helper()
	result := h.rpc(t, "tools/call", mcp.CallToolParams{Name: name, Arguments: args})
	text := result.Get("content.0.text").String()
	require.True(t, gjson.Valid(text), "tool %s returned non-JSON text: %s", name, text)
	return gjson.Parse(text), result.Get("isError").Bool()
}

// ok calls a tool that must succeed.
func (h *harness) ok(t *testing.T, name string, args map[string]any) gjson.Result {
	t.Helper()
	env, isError := h.call(t, name, args)
	require.False(t, isError, "tool %s failed: %s", name, env.Raw)
	require.True(t, env.Get("success").Bool(), env.Raw)
	return env
}

// fail calls a tool that must fail and returns its error text.
func (h *harness) fail(t *testing.T, name string, args map[string]any) string {
	t.Helper()
	env, isError := h.call(t, name, args)
	require.True(t, isError, "tool %s succeeded: %s", name, env.Raw)
	require.False(t, env.Get("success").Bool(), env.Raw)
	return env.Get("error").String()
}

// lastCommand is the most recent command the fake node received.
func (h *harness) lastCommand(t *testing.T) string {
	t.Helper()
	cmds := h.node.Commands()
	require.NotEmpty(t, cmds)
	return cmds[len(cmds)-1]
}
