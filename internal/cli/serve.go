package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tansive/minima-mcp/internal/config"
)

func newServeCmd() *cobra.Command {
	var transport string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Run the MCP server. The stdio transport serves one client on stdin and stdout and is
what desktop MCP clients expect. The http transport serves the streamable MCP endpoint
at /mcp together with /healthz, /metrics and POST /events/{type}.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := config.Config()
			if transport != "" {
				c.MCP.Transport = transport
			}
			if port != 0 {
				c.MCP.Port = port
			}
			if err := config.ValidateConfig(c); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, c)
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", "Transport: stdio or http")
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port")
	return cmd
}

func serve(ctx context.Context, c *config.ConfigParam) error {
	initLog := log.With().Str("state", "init").Logger()
	a, err := newApp(ctx, c)
	if err != nil {
		return err
	}
	defer a.close()

	initLog.Info().
		Str("node", a.client.BaseURL()).
		Str("store", c.Store.Backend).
		Str("transport", c.MCP.Transport).
		Msg("starting minima-mcp")
	a.start(ctx)

	if c.MCP.Transport == "http" {
		err = a.server.ListenAndServe(ctx, c.MCP.ListenAddr())
	} else {
		err = a.server.ServeStdio(ctx, os.Stdin, os.Stdout)
	}
	log.Info().Msg("server stopped")
	return err
}
