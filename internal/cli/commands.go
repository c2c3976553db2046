// Package cli implements the minima-mcp command line: the MCP server itself plus a few
// commands for talking to the node directly.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tansive/minima-mcp/internal/common/logtrace"
	"github.com/tansive/minima-mcp/internal/config"
	"sigs.k8s.io/yaml"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "0.1.0-dev"

var (
	// Global flags
	configFile string
	envFile    string
	logLevel   string
	jsonOutput bool
)

var ErrAlreadyHandled = errors.New("already handled")

var okLabel = color.New(color.FgGreen)
var errorLabel = color.New(color.FgRed)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "minima-mcp [command] [flags]",
		Short: "MCP server for a Minima node",
		Long: `minima-mcp exposes a Minima node's MDS interface as Model Context Protocol tools:
wallet and chain queries, KISSVM contracts, custom transactions, events, Maxima,
tokens and MiniDapp packaging.

Examples:
  # Serve MCP on stdio, the way desktop MCP clients launch servers
  minima-mcp serve

  # Serve MCP over HTTP on port 8628
  minima-mcp serve --transport http --port 8628

  # Run a node command
  minima-mcp exec balance tokenid:0x00

  # Check the node connection
  minima-mcp health`,
		PersistentPreRunE: preRunHandlePersistents,
		SilenceErrors:     true,
		SilenceUsage:      true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to a TOML configuration file (default ./"+config.DefaultConfigFile+" when present)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file with MINIMA_* variables")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level, overriding the configuration")
	root.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")

	root.AddCommand(newServeCmd())
	root.AddCommand(newExecCmd())
	root.AddCommand(newHealthCmd())
	root.AddCommand(newToolsCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		if errors.Is(err, ErrAlreadyHandled) {
			os.Exit(1)
		}
		if jsonOutput {
			printJSON(os.Stdout, map[string]string{"error": err.Error()})
		} else {
			errorLabel.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// preRunHandlePersistents loads the configuration and sets up logging. The version and
// tools commands need neither.
func preRunHandlePersistents(cmd *cobra.Command, args []string) error {
	switch cmd.Name() {
	case "version", "tools", "help":
		return nil
	}
	c, err := config.LoadConfig(configFile, envFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	return logtrace.InitLogger(c.Log.Level, c.Log.Console)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of minima-mcp",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(cmd.OutOrStdout(), map[string]string{"version": Version})
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "minima-mcp %s\n", Version)
		},
	}
}

// printJSON prints data as indented JSON. Raw JSON is re-indented as is.
func printJSON(w io.Writer, data any) {
	var out []byte
	var err error
	if raw, ok := data.(json.RawMessage); ok {
		var v any
		if err = json.Unmarshal(raw, &v); err == nil {
			out, err = json.MarshalIndent(v, "", "  ")
		}
	} else {
		out, err = json.MarshalIndent(data, "", "  ")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(out))
}

// printYAML converts a JSON document to YAML.
func printYAML(w io.Writer, raw json.RawMessage) error {
	out, err := yaml.JSONToYAML(raw)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
