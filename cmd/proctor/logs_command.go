package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"proctor/internal/logging"
	"proctor/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var events bool
	var eventTypes []string
	var kinds []string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log of the current run",
		Long: "Show the daemon log of the current run. With --events the JSON event\n" +
			"log is read instead and can be filtered by --event-type and --kind.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			name := logging.DaemonLogName
			opts := logs.Options{Lines: lines, Follow: follow}
			if events || len(eventTypes) > 0 || len(kinds) > 0 {
				name = logging.DaemonEventsName
				opts.Filter = logs.EventFilter(eventTypes, kinds)
			}
			path := filepath.Join(cfg.Paths.LogDir, name)
			out := cmd.OutOrStdout()
			return logs.Tail(cmd.Context(), path, opts, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().BoolVar(&events, "events", false, "Read the JSON event log")
	cmd.Flags().StringSliceVar(&eventTypes, "event-type", nil, "Only events of this type (repeatable)")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Only events for this violation kind (repeatable)")
	return cmd
}
