package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tansive/minima-mcp/internal/tools"
)

type toolInfo struct {
	Group       string `json:"group"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func listTools() []toolInfo {
	var out []toolInfo
	for _, g := range tools.Groups(tools.Deps{}) {
		for _, t := range g.Tools() {
			desc, _, _ := strings.Cut(t.Tool.Description, "\n")
			out = append(out, toolInfo{Group: g.Name(), Name: t.Tool.Name, Description: desc})
		}
	}
	return out
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the MCP tools the server exposes",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			list := listTools()
			if jsonOutput {
				printJSON(cmd.OutOrStdout(), list)
				return
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-14s %-34s %s\n", "GROUP", "TOOL", "DESCRIPTION")
			fmt.Fprintln(w, strings.Repeat("-", 100))
			for _, t := range list {
				fmt.Fprintf(w, "%-14s %-34s %s\n", t.Group, t.Name, t.Description)
			}
		},
	}
}
