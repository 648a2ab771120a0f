package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"proctor/internal/ipc"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start monitoring in the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Start()
				if err != nil {
					return err
				}
				if resp.Message != "" {
					fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
					return nil
				}
				if resp.Started {
					fmt.Fprintln(cmd.OutOrStdout(), "Monitoring started")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Monitoring already running")
				}
				return nil
			})
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop monitoring without terminating the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Stop()
				if err != nil {
					return err
				}
				if resp.Stopped {
					fmt.Fprintln(cmd.OutOrStdout(), "Monitoring stopped")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Monitoring was not running")
				}
				return nil
			})
		},
	}

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show monitoring state, the active violation, and every signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				if statusJSON {
					return writeJSON(cmd, resp)
				}
				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				sections := []struct {
					title string
					lines []string
				}{
					{"Daemon", daemonLines(resp, colorize)},
					{"Active Violation", activeLines(resp.Active, colorize)},
					{"Signals", signalLines(resp.Signals, resp.Noise, colorize)},
				}
				for i, section := range sections {
					if i > 0 {
						fmt.Fprintln(stdout)
					}
					for _, line := range renderSectionHeader(section.title, colorize) {
						fmt.Fprintln(stdout, line)
					}
					for _, line := range section.lines {
						fmt.Fprintln(stdout, line)
					}
				}
				if resp.PendingRequests > 0 {
					fmt.Fprintf(stdout, "\n%d host request(s) pending; run `proctor requests`\n", resp.PendingRequests)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}
