package tools

import (
	"context"
	_ "embed"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// PrimerURI is the resource the primer is also published under.
const PrimerURI = "minima://primer"

//go:embed primer.md
var primer string

// Primer returns the Minima concepts primer as markdown.
func Primer() string { return primer }

type primerTools struct{}

func (primerTools) Name() string { return "primer" }

func (primerTools) Tools() []server.ServerTool {
	return []server.ServerTool{{
		Tool: mcp.NewTool("get_minima_primer",
			mcp.WithDescription("Get a primer on Minima: coins, KISSVM, MiniDapps, stores, Maxima and events. "+
				"Call this first when starting a Minima task."),
		),
		Handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(primer), nil
		},
	}}
}
