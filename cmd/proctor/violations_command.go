package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"proctor/internal/ipc"
	"proctor/internal/violationlog"
)

func newViolationsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var history bool
	var session string

	cmd := &cobra.Command{
		Use:   "violations",
		Short: "Show the violation audit log",
		Long: "Show the violation audit log of the running session. With --history the\n" +
			"persisted log is read instead, optionally filtered by --session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if session != "" {
				history = true
			}
			return ctx.withClient(func(client *ipc.Client) error {
				var entries []violationlog.Entry
				if history {
					resp, err := client.History(session)
					if err != nil {
						return err
					}
					entries = resp.Entries
				} else {
					resp, err := client.Violations()
					if err != nil {
						return err
					}
					entries = resp.Entries
				}
				if entries == nil {
					entries = []violationlog.Entry{}
				}
				if asJSON {
					return writeJSON(cmd, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No violations logged")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderEntries(entries, history))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&history, "history", false, "Read the persisted log across sessions")
	cmd.Flags().StringVar(&session, "session", "", "Limit history to one session ID")
	return cmd
}

func renderEntries(entries []violationlog.Entry, withSession bool) string {
	headers := []string{"#", "Time", "Kind", "Message"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}
	if withSession {
		headers = append(headers, "Session")
		aligns = append(aligns, alignLeft)
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		row := []string{
			strconv.FormatInt(e.Seq, 10),
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			humanize(e.Kind.String()),
			e.Message,
		}
		if withSession {
			row = append(row, shortID(e.SessionID))
		}
		rows = append(rows, row)
	}
	return renderTable(headers, rows, aligns)
}

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions recorded in the persisted log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Sessions()
				if err != nil {
					return err
				}
				if asJSON {
					sessions := resp.Sessions
					if sessions == nil {
						sessions = []ipc.SessionSummary{}
					}
					return writeJSON(cmd, sessions)
				}
				if len(resp.Sessions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded")
					return nil
				}
				rows := make([][]string, 0, len(resp.Sessions))
				for _, s := range resp.Sessions {
					rows = append(rows, []string{
						s.SessionID,
						strconv.Itoa(s.Entries),
						s.First.Local().Format("2006-01-02 15:04:05"),
						s.Last.Local().Format("2006-01-02 15:04:05"),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Session", "Entries", "First", "Last"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
