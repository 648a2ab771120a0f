package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"proctor/internal/ipc"
)

func newAckCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var seq int64
	cmd := &cobra.Command{
		Use:   "ack [kind]",
		Short: "Acknowledge the prompt of the active violation",
		Long: "Acknowledge a violation prompt, as if its button was clicked. Without a\n" +
			"kind the active violation is acknowledged. A kind that is no longer\n" +
			"active is reported as stale and triggers nothing. --seq pins the\n" +
			"acknowledgement to one prompt (the seq shown by status), so a repeated\n" +
			"click never answers the prompt that replaced it.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := ""
			if len(args) == 1 {
				kind = args[0]
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Acknowledge(kind, seq)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				switch {
				case resp.Stale && resp.Kind == "none":
					fmt.Fprintln(out, "No active violation")
				case resp.Stale && seq != 0:
					fmt.Fprintf(out, "Prompt #%d is no longer open; nothing to do\n", seq)
				case resp.Stale:
					fmt.Fprintf(out, "%s is not the active violation; nothing to do\n", humanize(resp.Kind))
				case resp.Deduplicated:
					fmt.Fprintf(out, "%s already in progress\n", resp.Action)
				default:
					fmt.Fprintf(out, "Acknowledged %s: %s\n", humanize(resp.Kind), resp.Action)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().Int64Var(&seq, "seq", 0, "Only acknowledge the prompt with this sequence number")
	return cmd
}
