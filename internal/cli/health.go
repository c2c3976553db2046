package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tansive/minima-mcp/internal/config"
	"github.com/tansive/minima-mcp/internal/mds"
)

type healthReport struct {
	Node    string          `json:"node"`
	Healthy bool            `json:"healthy"`
	Status  *mds.NodeStatus `json:"status,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the connection to the node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := config.Config()
			report := healthReport{Node: fmt.Sprintf("%s:%d", c.Node.Host, c.Node.Port)}

			client, err := newClient(ctx, c)
			if err == nil {
				defer client.Close()
				report.Node = client.BaseURL()
				var raw []byte
				if raw, err = client.Status(ctx); err == nil {
					report.Status, err = mds.DecodeStatus(raw)
				}
			}
			if err != nil {
				report.Error = err.Error()
			} else {
				report.Healthy = true
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				printJSON(w, report)
			} else if report.Healthy {
				okLabel.Fprint(w, "OK")
				fmt.Fprintf(w, "   %s", report.Node)
				if s := report.Status; s != nil {
					fmt.Fprintf(w, " (version %s, block %d)", s.Version, s.Chain.Block)
				}
				fmt.Fprintln(w)
			} else {
				errorLabel.Fprint(w, "FAIL")
				fmt.Fprintf(w, " %s: %s\n", report.Node, report.Error)
			}
			if !report.Healthy {
				return ErrAlreadyHandled
			}
			return nil
		},
	}
}
