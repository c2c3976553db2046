package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tansive/minima-mcp/internal/config"
)

func newExecCmd() *cobra.Command {
	var text bool
	var output string
	cmd := &cobra.Command{
		Use:   "exec COMMAND [PARAM...]",
		Short: "Run a command on the node",
		Long: `Run a raw MDS command on the node and print the response. Parameters are passed as
written, e.g.

  minima-mcp exec coins relevant:true tokenid:0x00
  minima-mcp exec --text help`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "json" && output != "yaml" {
				return fmt.Errorf("unsupported output format %q", output)
			}
			ctx := cmd.Context()
			client, err := newClient(ctx, config.Config())
			if err != nil {
				return err
			}
			defer client.Close()

			w := cmd.OutOrStdout()
			if text {
				out, err := client.ExecuteText(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintln(w, out)
				return nil
			}
			raw, err := client.ExecuteRaw(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if output == "yaml" && !jsonOutput {
				return printYAML(w, raw)
			}
			printJSON(w, raw)
			return nil
		},
	}
	cmd.Flags().BoolVar(&text, "text", false, "Print the node's plain text reply, for commands such as help")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "Output format: json or yaml")
	return cmd
}
