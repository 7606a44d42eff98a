package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"grainbridge/internal/ipc"
)

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	var window time.Duration
	var minSamples int
	var timeout time.Duration
	var save bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a window of engine telemetry and report statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ipc.CaptureRequest{
				WindowMillis:  int(window.Milliseconds()),
				MinSamples:    minSamples,
				TimeoutMillis: int(timeout.Milliseconds()),
				Save:          save,
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Capture(req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}

				stdout := cmd.OutOrStdout()
				stats := resp.Capture.Stats
				rows := [][]string{
					{"Samples", strconv.Itoa(stats.Count)},
					{"Elapsed", fmt.Sprintf("%.2fs", stats.ElapsedSeconds)},
					{"Cadence", fmt.Sprintf("%.1f Hz", stats.RateHz)},
					{"Playhead span", fmt.Sprintf("%.3f - %.3f", stats.Playhead.Min, stats.Playhead.Max)},
					{"Scan head span", fmt.Sprintf("%.3f - %.3f", stats.ScanHead.Min, stats.ScanHead.Max)},
					{"Scan range span", fmt.Sprintf("%.3f - %.3f", stats.ScanRange.Min, stats.ScanRange.Max)},
					{"Max active grains", strconv.Itoa(stats.MaxGrains)},
				}
				fmt.Fprintln(stdout, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
				if resp.Path != "" {
					fmt.Fprintf(stdout, "Capture saved to %s\n", resp.Path)
				}
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&window, "window", 2*time.Second, "Capture window duration")
	cmd.Flags().IntVar(&minSamples, "min-samples", 1, "Minimum samples before the capture completes")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Give up after this long")
	cmd.Flags().BoolVar(&save, "save", false, "Write the capture as JSON under paths.capture_dir")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the full capture as JSON")
	return cmd
}
