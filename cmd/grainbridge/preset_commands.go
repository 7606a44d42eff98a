package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"grainbridge/internal/ipc"
)

func newPresetCommand(ctx *commandContext) *cobra.Command {
	presetCmd := &cobra.Command{
		Use:   "preset",
		Short: "Manage saved channel snapshots",
	}

	presetCmd.AddCommand(&cobra.Command{
		Use:   "save <name> <channel=value...>",
		Short: "Store a named snapshot of channel values",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			channels := make(map[int]float64, len(args)-1)
			for _, spec := range args[1:] {
				ch, val, err := parseChannelAssignment(spec)
				if err != nil {
					return err
				}
				channels[ch] = val
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.PresetSave(args[0], channels)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved preset %q with %d channels\n",
					resp.Preset.Name, len(resp.Preset.Channels))
				return nil
			})
		},
	})

	presetCmd.AddCommand(&cobra.Command{
		Use:   "apply <name>",
		Short: "Replay a stored preset through the command relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.PresetApply(args[0])
				if err != nil {
					return err
				}
				out := resp.Outcome
				fmt.Fprintf(cmd.OutOrStdout(), "Applied preset %q: %d sent, %d dropped, %d failed\n",
					out.Preset.Name, out.Sent, out.Dropped, out.Failed)
				return nil
			})
		},
	})

	presetCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.PresetList()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Presets) == 0 {
					fmt.Fprintln(stdout, "No presets stored")
					return nil
				}
				rows := make([][]string, 0, len(resp.Presets))
				for _, p := range resp.Presets {
					rows = append(rows, []string{
						p.Name,
						strconv.Itoa(len(p.Channels)),
						summarizeChannels(p.Channels),
						p.UpdatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"Name", "Channels", "Values", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	})

	presetCmd.AddCommand(&cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"delete"},
		Short:   "Remove a stored preset",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.PresetDelete(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed preset %q\n", args[0])
				return nil
			})
		},
	})

	return presetCmd
}

// summarizeChannels renders up to four channel=value pairs in channel order.
func summarizeChannels(channels map[int]float64) string {
	order := make([]int, 0, len(channels))
	for ch := range channels {
		order = append(order, ch)
	}
	sort.Ints(order)

	parts := make([]string, 0, 5)
	for i, ch := range order {
		if i == 4 {
			parts = append(parts, fmt.Sprintf("+%d more", len(order)-i))
			break
		}
		parts = append(parts, fmt.Sprintf("%d=%.2f", ch, channels[ch]))
	}
	return strings.Join(parts, " ")
}
