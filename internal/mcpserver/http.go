package mcpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
	"github.com/tansive/minima-mcp/internal/common/httpx"
	"github.com/tansive/minima-mcp/internal/common/middleware"
	"github.com/tansive/minima-mcp/internal/metrics"
)

const (
	MCPPath = "/mcp"
	// maxIngestBody caps one pushed event.
	maxIngestBody = 1 << 20
	shutdownGrace = 10 * time.Second
)

// Router builds the HTTP routes: the MCP endpoint, /healthz, /metrics and
// POST /events/{type} for events pushed by MiniDapps.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger)
	r.Use(middleware.PanicHandler)
	if s.opts.HandleCORS {
		r.Use(s.handleCORS)
	}

	streamable := server.NewStreamableHTTPServer(s.mcp,
		server.WithEndpointPath(MCPPath),
		server.WithStateLess(s.opts.Stateless),
	)
	r.Handle(MCPPath, streamable)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SetTimeout(s.opts.RequestTimeout))
		r.Get("/healthz", httpx.WrapHttpRsp(s.health))
		r.Post("/events/{eventType}", httpx.WrapHttpRsp(s.ingest))
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}

func (s *Server) handleCORS(next http.Handler) http.Handler {
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Mcp-Session-Id", middleware.RequestIDHeader},
		ExposedHeaders:   []string{"Mcp-Session-Id", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})(next)
}

type healthRsp struct {
	Healthy bool   `json:"healthy"`
	Node    string `json:"node"`
	Version string `json:"version"`
}

func (s *Server) health(r *http.Request) (*httpx.Response, error) {
	node := s.opts.Tools.Node
	rsp := &healthRsp{Healthy: node.Healthy(r.Context()), Node: node.BaseURL(), Version: s.opts.Version}
	code := http.StatusOK
	if !rsp.Healthy {
		code = http.StatusServiceUnavailable
	}
	return &httpx.Response{StatusCode: code, Response: rsp}, nil
}

// ingest records the request body as one event of the type named in the path.
func (s *Server) ingest(r *http.Request) (*httpx.Response, error) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxIngestBody))
	if err != nil {
		return nil, ErrInvalidRequest.MsgErr("unable to read event body", err)
	}
	e, err := s.opts.Tools.Events.Ingest(chi.URLParam(r, "eventType"), body)
	if err != nil {
		return nil, err
	}
	log.Ctx(r.Context()).Debug().Str("type", string(e.Type)).Uint64("seq", e.Seq).Msg("event ingested")
	return &httpx.Response{StatusCode: http.StatusAccepted, Response: e}, nil
}

// ListenAndServe listens on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("endpoint", MCPPath).Msg("serving MCP over HTTP")
		errc <- hs.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return ErrTransport.MsgErr("http transport stopped", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return ErrTransport.MsgErr("http shutdown failed", err)
	}
	log.Info().Msg("http transport stopped")
	return nil
}
