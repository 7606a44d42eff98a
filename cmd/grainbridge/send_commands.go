package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"grainbridge/internal/ipc"
	"grainbridge/internal/oscmsg"
)

func newSendCommand(ctx *commandContext) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "send <address> [arg...]",
		Short: "Send a raw OSC command to the engine",
		Long: `Send a raw OSC command to the engine through the daemon.

Arguments are type:value specs using OSC type tags: f (float), i (integer),
d (double), s (string). Bare numeric arguments are sent as floats, other
bare arguments as strings.

  grainbridge send /grain/density f:0.75
  grainbridge send /sample/load s:pad.wav i:2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			oscArgs := make([]oscmsg.Arg, 0, len(args)-1)
			for _, spec := range args[1:] {
				arg, err := parseArgSpec(spec)
				if err != nil {
					return err
				}
				oscArgs = append(oscArgs, arg)
			}

			req := oscmsg.CommandRequest{Address: args[0], Args: oscArgs, Key: key}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Send(req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], describeResult(resp.Result))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Rate-limit key (defaults to the address)")
	return cmd
}

func newChannelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "channel <number> <value>",
		Short: "Set a control channel to a normalized value",
		Long: `Set one engine control channel to a value in [0,1].

Out-of-range channel numbers are clamped into the configured channel range,
and values are clamped into [0,1].`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			channel, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("channel %q: %w", args[0], err)
			}
			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("value %q: %w", args[1], err)
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetChannel(channel, value)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "channel %d: %s\n", channel, describeResult(resp.Result))
				return nil
			})
		},
	}
}
