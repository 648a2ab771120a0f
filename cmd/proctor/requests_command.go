package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"proctor/internal/ipc"
)

func newRequestsCommand(ctx *commandContext) *cobra.Command {
	var drain bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "List actions the host bridge should perform",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Requests(drain)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Requests)
				}
				if len(resp.Requests) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No pending requests")
					return nil
				}
				rows := make([][]string, 0, len(resp.Requests))
				for _, req := range resp.Requests {
					rows = append(rows, []string{
						shortID(req.ID),
						string(req.Action),
						req.Signal,
						req.At.Local().Format("15:04:05"),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Action", "Signal", "Queued"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&drain, "drain", false, "Remove the listed requests from the queue")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
