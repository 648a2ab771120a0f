package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"proctor/internal/ipc"
)

func newSignalCommand(ctx *commandContext) *cobra.Command {
	signalCmd := &cobra.Command{
		Use:   "signal",
		Short: "Report host-observed signals",
	}
	signalCmd.AddCommand(&cobra.Command{
		Use:   "set <signal> <value>",
		Short: "Report a signal value (ok, violated, unset)",
		Long: "Report a value for a host-owned signal: tab_focus, camera_permission,\n" +
			"microphone_permission, fullscreen, or multi_display when display\n" +
			"detection is delegated to the host.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.ReportSignal(args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reported %s=%s\n", args[0], strings.ToLower(args[1]))
				return nil
			})
		},
	})
	return signalCmd
}

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	captureCmd := &cobra.Command{
		Use:   "capture",
		Short: "Report screen capture results",
	}

	var denied bool
	var surface string
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Report the outcome of a screen capture request",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !denied && strings.TrimSpace(surface) == "" {
				return errors.New("--surface is required unless --denied is set")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.ReportCapture(!denied, surface); err != nil {
					return err
				}
				if denied {
					fmt.Fprintln(cmd.OutOrStdout(), "Reported capture denied")
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Reported capture of %s\n", surface)
				}
				return nil
			})
		},
	}
	reportCmd.Flags().BoolVar(&denied, "denied", false, "The user declined to share")
	reportCmd.Flags().StringVar(&surface, "surface", "", "Shared surface: monitor, window, or browser")

	endedCmd := &cobra.Command{
		Use:   "ended",
		Short: "Report that the capture track ended",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.ReportCaptureEnded(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Reported capture ended")
				return nil
			})
		},
	}

	captureCmd.AddCommand(reportCmd, endedCmd)
	return captureCmd
}

func newAudioCommand(ctx *commandContext) *cobra.Command {
	audioCmd := &cobra.Command{
		Use:   "audio",
		Short: "Report microphone levels",
	}
	audioCmd.AddCommand(&cobra.Command{
		Use:   "frame <level>...",
		Short: "Report one frame of frequency-bin levels (0-255)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bins, err := parseBins(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.ReportAudioFrame(bins); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reported %d bins\n", len(bins))
				return nil
			})
		},
	})
	return audioCmd
}

func parseBins(args []string) ([]float64, error) {
	bins := make([]float64, 0, len(args))
	for _, arg := range args {
		for _, field := range strings.Split(arg, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid level %q: %w", field, err)
			}
			bins = append(bins, v)
		}
	}
	if len(bins) == 0 {
		return nil, errors.New("at least one level is required")
	}
	return bins, nil
}
