package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"grainbridge/internal/ipc"
	"grainbridge/internal/supervisor"
)

func newEngineCommand(ctx *commandContext) *cobra.Command {
	engineCmd := &cobra.Command{
		Use:   "engine",
		Short: "Control the supervised audio engine process",
	}

	engineCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Launch the engine process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.EngineStart()
				if resp != nil {
					printEngineStatus(cmd, resp.Status)
				}
				return err
			})
		},
	})

	var stopReason string
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the engine process and disable the crash watchdog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.EngineStop(stopReason)
				if resp != nil {
					printEngineStatus(cmd, resp.Status)
				}
				return err
			})
		},
	}
	stopCmd.Flags().StringVar(&stopReason, "reason", "", "Reason recorded in the daemon log")
	engineCmd.AddCommand(stopCmd)

	engineCmd.AddCommand(&cobra.Command{
		Use:   "restart",
		Short: "Stop and relaunch the engine process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.EngineRestart()
				if resp != nil {
					printEngineStatus(cmd, resp.Status)
				}
				return err
			})
		},
	})

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the engine process state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.EngineStatus()
				if err != nil {
					return err
				}
				if statusJSON {
					return writeJSON(cmd, resp.Status)
				}
				printEngineStatus(cmd, resp.Status)
				return nil
			})
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Emit status as JSON")
	engineCmd.AddCommand(statusCmd)

	return engineCmd
}

func printEngineStatus(cmd *cobra.Command, status supervisor.Status) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	detail := stateLabel(status.State)
	if status.PID != nil {
		detail = fmt.Sprintf("%s (pid %d)", detail, *status.PID)
	}
	fmt.Fprintln(stdout, renderStatusLine("Engine", stateKind(status.State), detail, colorize))
	if status.Binary != "" {
		fmt.Fprintln(stdout, renderStatusLine("Binary", statusInfo, status.Binary, colorize))
	}
	if status.RestartAttempts > 0 || status.RestartPending {
		detail := fmt.Sprintf("attempt %d of %d", status.RestartAttempts, status.MaxAttempts)
		if status.RestartPending {
			detail += ", restart pending"
		}
		fmt.Fprintln(stdout, renderStatusLine("Watchdog", statusWarn, detail, colorize))
	}
	if status.LastError != "" {
		fmt.Fprintln(stdout, renderStatusLine("Last error", statusError, status.LastError, colorize))
	}
}
