// Package tools defines the MCP tools of the server. Tools are grouped by domain; every
// tool answers with a JSON envelope {"success":true,"data":...} or
// {"success":false,"error":"..."}, the latter flagged as a tool error.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
	"github.com/tansive/minima-mcp/internal/common/apperrors"
	"github.com/tansive/minima-mcp/internal/events"
	"github.com/tansive/minima-mcp/internal/mds"
	"github.com/tansive/minima-mcp/internal/store"
	"github.com/tidwall/sjson"
)

// Node is the part of the MDS client the tools use.
type Node interface {
	BaseURL() string
	Healthy(ctx context.Context) bool
	Execute(ctx context.Context, name string, params ...mds.Param) (json.RawMessage, error)
	ExecuteRaw(ctx context.Context, line string) (json.RawMessage, error)
	Balance(ctx context.Context, q mds.BalanceQuery) (json.RawMessage, error)
	Status(ctx context.Context) (json.RawMessage, error)
	Send(ctx context.Context, r mds.SendRequest) (json.RawMessage, error)
	CreateToken(ctx context.Context, r mds.TokenRequest) (json.RawMessage, error)
	Tokens(ctx context.Context, tokenID string) (json.RawMessage, error)
	NewAddress(ctx context.Context) (json.RawMessage, error)
	Coins(ctx context.Context, q mds.CoinQuery) (json.RawMessage, error)
	MiniDapps(ctx context.Context) (json.RawMessage, error)
	InstallMiniDapp(ctx context.Context, path string) (json.RawMessage, error)
	InstallMiniDappText(ctx context.Context, path string) (string, error)
	MiniDappInfo(ctx context.Context, uid string) (json.RawMessage, error)
	Network(ctx context.Context) (json.RawMessage, error)
	Peers(ctx context.Context) (json.RawMessage, error)
	TxPoW(ctx context.Context, txpowID string) (json.RawMessage, error)
	Search(ctx context.Context, q mds.SearchQuery) (json.RawMessage, error)
}

// Deps carries what the tool groups need.
type Deps struct {
	Node   Node
	Events *events.Manager
	Store  store.Store

	// MaxPackageSize caps packaged MiniDapps; zero means the package default.
	MaxPackageSize int64
	// DefaultCategory is used for new MiniDapp projects without one.
	DefaultCategory string
	// StorePublicBase is the URL prefix store manifests are served under.
	StorePublicBase string
}

// Group is a set of related tools.
type Group interface {
	Name() string
	Tools() []server.ServerTool
}

// Groups returns every tool group wired to d.
func Groups(d Deps) []Group {
	return []Group{
		&nodeTools{d},
		&contractTools{d},
		&transactionTools{Deps: d},
		&eventTools{d},
		&maximaTools{d},
		&tokenTools{d},
		&developerTools{d},
		&minidappTools{d},
		&primerTools{},
	}
}

// All returns the tools of every group.
func All(d Deps) []server.ServerTool {
	var all []server.ServerTool
	for _, g := range Groups(d) {
		all = append(all, g.Tools()...)
	}
	return all
}

// Reply is a successful tool result. Extra members are placed beside data, e.g. warnings.
type Reply struct {
	Data    any
	Message string
	Extra   map[string]any
}

func reply(data any) *Reply { return &Reply{Data: data} }

func (r *Reply) msg(m string) *Reply {
	r.Message = m
	return r
}

func (r *Reply) with(key string, v any) *Reply {
	if r.Extra == nil {
		r.Extra = make(map[string]any)
	}
	r.Extra[key] = v
	return r
}

type toolFunc func(ctx context.Context, req mcp.CallToolRequest) (*Reply, error)

// handle adapts fn to the mcp-go handler signature. Errors become failure envelopes,
// never protocol errors.
func handle(fn toolFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		r, err := fn(ctx, req)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("tool", req.Params.Name).Msg("tool failed")
			return failure(err), nil
		}
		doc, err := encode(r)
		if err != nil {
			return failure(ErrTool.MsgErr("unable to encode result", err)), nil
		}
		return mcp.NewToolResultText(string(doc)), nil
	}
}

func encode(r *Reply) ([]byte, error) {
	doc := []byte(`{"success":true}`)
	var err error
	if raw, ok := r.Data.(json.RawMessage); ok {
		if len(raw) == 0 {
			raw = json.RawMessage("null")
		}
		doc, err = sjson.SetRawBytes(doc, "data", raw)
	} else {
		doc, err = sjson.SetBytes(doc, "data", r.Data)
	}
	if err != nil {
		return nil, err
	}
	if r.Message != "" {
		if doc, err = sjson.SetBytes(doc, "message", r.Message); err != nil {
			return nil, err
		}
	}
	for k, v := range r.Extra {
		if doc, err = sjson.SetBytes(doc, k, v); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// failure renders err as {"success":false,"error":...}.
func failure(err error) *mcp.CallToolResult {
	doc, _ := sjson.SetBytes([]byte(`{"success":false}`), "error", errorText(err))
	return mcp.NewToolResultError(string(doc))
}

// errorText is the error message followed by any plain Go errors it wraps, such as the
// transport failure behind a connection error. Sentinel parents are left out.
func errorText(err error) string {
	var ae apperrors.Error
	if !errors.As(err, &ae) {
		return err.Error()
	}
	msg := ae.Error()
	for _, cause := range ae.UnwrapAll() {
		if cause == nil {
			continue
		}
		if _, ok := cause.(apperrors.Error); ok {
			continue
		}
		if text := cause.Error(); !strings.Contains(msg, text) {
			msg += ": " + text
		}
	}
	return msg
}

// tool builds a ServerTool.
func tool(t mcp.Tool, fn toolFunc) server.ServerTool {
	return server.ServerTool{Tool: t, Handler: handle(fn)}
}
