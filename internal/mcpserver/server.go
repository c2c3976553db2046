// Package mcpserver exposes the tools over MCP. The stdio transport serves one client on
// the process streams; the HTTP transport mounts the streamable MCP endpoint on a chi
// router next to health, metrics and event ingest routes.
package mcpserver

import (
	"context"
	"io"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
	"github.com/tansive/minima-mcp/internal/common/uuid"
	"github.com/tansive/minima-mcp/internal/eventbus"
	"github.com/tansive/minima-mcp/internal/events"
	"github.com/tansive/minima-mcp/internal/metrics"
	"github.com/tansive/minima-mcp/internal/tools"
	"github.com/tidwall/gjson"
)

const (
	ServerName = "minima-mcp"

	instructions = "Tools for a Minima blockchain node reached through its MDS interface. " +
		"Read the primer (get_minima_primer or the " + tools.PrimerURI + " resource) before writing KISSVM " +
		"contracts or MiniDapps. Every tool answers with a JSON object holding success and either data or error."
)

// Options configures a Server.
type Options struct {
	Version string
	Tools   tools.Deps

	// HTTP transport settings.
	HandleCORS     bool
	AllowedOrigins []string
	Stateless      bool
	// RequestTimeout bounds the non-streaming HTTP routes. Zero means 30s.
	RequestTimeout time.Duration
}

// Server owns the MCP server and the HTTP routes around it.
type Server struct {
	mcp  *server.MCPServer
	opts Options
	stop func()
}

// New registers every tool and the primer resource. The event bus of opts.Tools.Events
// feeds the event metrics until Close.
func New(opts Options) (*Server, error) {
	if opts.Tools.Node == nil {
		return nil, ErrInvalidOptions.Msg("node client is required")
	}
	if opts.Tools.Events == nil {
		return nil, ErrInvalidOptions.Msg("event manager is required")
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	srv := server.NewMCPServer(ServerName, opts.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions(instructions),
		server.WithToolHandlerMiddleware(observeTools),
		server.WithRecovery(),
	)
	all := tools.All(opts.Tools)
	srv.AddTools(all...)
	srv.AddResource(
		mcp.NewResource(tools.PrimerURI, "Minima primer",
			mcp.WithResourceDescription("Minima concepts, KISSVM scripting and MiniDapp development notes"),
			mcp.WithMIMEType("text/markdown"),
		),
		readPrimer,
	)
	log.Info().Int("tools", len(all)).Str("version", opts.Version).Msg("registered MCP tools")

	s := &Server{mcp: srv, opts: opts}
	s.stop = opts.Tools.Events.Bus().SubscribeFunc(events.TopicPrefix+"*", 64, observeEvent)
	return s, nil
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// Close detaches the server from the event bus.
func (s *Server) Close() {
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
}

// ServeStdio serves one client on in and out until ctx ends or in is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	log.Info().Msg("serving MCP on stdio")
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return ErrTransport.MsgErr("stdio transport stopped", err)
	}
	return nil
}

func readPrimer(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: tools.PrimerURI, MIMEType: "text/markdown", Text: tools.Primer()},
	}, nil
}

// observeTools logs every tool call under a call id and records its outcome. A tool
// error result counts as a failure even though the handler returned no Go error.
func observeTools(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := req.Params.Name
		logger := log.Ctx(ctx).With().Str("tool", name).Str("call_id", uuid.NewID("call")).Logger()
		ctx = logger.WithContext(ctx)

		start := time.Now()
		logger.Debug().Msg("tool call")
		res, err := next(ctx, req)
		elapsed := time.Since(start)

		failed := err != nil || (res != nil && res.IsError)
		metrics.ObserveTool(name, elapsed, failed)
		ev := logger.Info()
		if failed {
			ev = logger.Warn()
		}
		ev.Dur("duration", elapsed).Bool("failed", failed).Msg("tool call completed")
		return res, err
	}
}

func observeEvent(be eventbus.Event) {
	e, ok := be.Data.(events.Event)
	if !ok {
		return
	}
	metrics.ObserveEvent(string(e.Type))
	if e.Type == events.NewBlock {
		if block := gjson.GetBytes(e.Data, "block"); block.Exists() {
			metrics.SetBlockHeight(block.Int())
		}
	}
}
