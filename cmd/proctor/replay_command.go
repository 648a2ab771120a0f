package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"proctor/internal/logging"
	"proctor/internal/scenario"
)

func newReplayCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:         "replay <script.yaml>",
		Short:       "Replay a signal script against a local monitor",
		Long:        "Replay a YAML scenario through an in-process monitor and check its expectations. No daemon is needed.",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := scenario.Load(args[0])
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{
				Level:       ctx.resolvedLogLevel(nil),
				Format:      "console",
				OutputPaths: []string{"stderr"},
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			report, err := scenario.Run(cmd.Context(), script, scenario.Options{Logger: logger})
			if err != nil {
				return err
			}
			if asJSON {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				renderReport(cmd, report)
			}
			if !report.Passed() {
				return fmt.Errorf("scenario %q failed %d expectation(s)", report.Name, len(report.Failures))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the report as JSON")
	return cmd
}

func renderReport(cmd *cobra.Command, report *scenario.Report) {
	out := cmd.OutOrStdout()
	name := strings.TrimSpace(report.Name)
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(out, "Scenario: %s\n", name)
	fmt.Fprintf(out, "Active:   %s\n", humanize(report.Active.String()))
	if len(report.Entries) > 0 {
		fmt.Fprint(out, renderEntries(report.Entries, false))
	}
	if len(report.Actions) > 0 {
		actions := make([]string, len(report.Actions))
		for i, a := range report.Actions {
			actions[i] = string(a)
		}
		fmt.Fprintf(out, "Actions:  %s\n", strings.Join(actions, ", "))
	}
	if report.Passed() {
		fmt.Fprintln(out, "PASS")
		return
	}
	for _, failure := range report.Failures {
		fmt.Fprintf(out, "FAIL %s\n", failure)
	}
}
