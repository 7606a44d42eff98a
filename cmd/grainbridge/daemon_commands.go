package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"grainbridge/internal/daemonctl"
	"grainbridge/internal/ipc"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the grainbridge daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Message) != "" {
					fmt.Fprintln(stdout, result.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the grainbridge daemon (completely terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stop request sent")
			} else {
				fmt.Fprintln(stdout, "Stopping daemon components...")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the grainbridge daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(
				ctx.socketPath(),
				ctx.configValue(),
				exe,
				daemonLaunchOptions(ctx),
				5*time.Second,
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}

			switch result.Start.State {
			case daemonctl.StartStateStarted, daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon restarted")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Start.Message) != "" {
					fmt.Fprintln(stdout, result.Start.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and engine status",
		RunE: func(cmd *cobra.Command, args []string) error {
			statusResp, err := daemonctl.BuildStatusSnapshot(ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, statusResp)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range daemonLines(statusResp, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Engine", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range engineLines(statusResp, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Counters", colorize) {
				fmt.Fprintln(stdout, line)
			}
			table := renderTable(
				[]string{"Counter", "Value"},
				counterRows(statusResp),
				[]columnAlignment{alignLeft, alignRight},
			)
			fmt.Fprintln(stdout, table)
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Emit status as JSON")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func daemonLines(resp *ipc.StatusResponse, colorize bool) []string {
	lines := make([]string, 0, 6)
	if resp.Running {
		lines = append(lines, renderStatusLine("Grainbridge", statusOK, fmt.Sprintf("Running (pid %d)", resp.PID), colorize))
	} else {
		lines = append(lines, renderStatusLine("Grainbridge", statusWarn, "Not running (run `grainbridge start`)", colorize))
	}

	if resp.GatewayAddr != "" {
		detail := resp.GatewayAddr
		if resp.Running {
			detail = fmt.Sprintf("%s (%d clients)", resp.GatewayAddr, resp.GatewayClients)
		}
		kind := statusInfo
		if resp.Running {
			kind = statusOK
		}
		lines = append(lines, renderStatusLine("Gateway", kind, detail, colorize))
	}

	relayKind, relayDetail := readinessLine(resp.Running, resp.Relay.Ready, "commands flow to the engine", "sends report transport_not_ready")
	lines = append(lines, renderStatusLine("Command relay", relayKind, relayDetail, colorize))

	telemetryKind, telemetryDetail := readinessLine(resp.Running, resp.Telemetry.Ready, "listening for engine telemetry", "telemetry socket not bound")
	lines = append(lines, renderStatusLine("Telemetry", telemetryKind, telemetryDetail, colorize))

	if resp.Running {
		if resp.MonitorActive {
			lines = append(lines, renderStatusLine("Device monitor", statusOK, "Watching sound card events", colorize))
		} else {
			lines = append(lines, renderStatusLine("Device monitor", statusInfo, "Inactive", colorize))
		}
	}

	if resp.PresetDB != "" {
		lines = append(lines, renderStatusLine("Presets", statusOK, resp.PresetDB, colorize))
	}
	return lines
}

func readinessLine(daemonRunning, ready bool, okDetail, notReadyDetail string) (statusKind, string) {
	if !daemonRunning {
		return statusInfo, "Inactive (daemon not running)"
	}
	if ready {
		return statusOK, "Ready, " + okDetail
	}
	return statusWarn, "Not ready, " + notReadyDetail
}

func engineLines(resp *ipc.StatusResponse, colorize bool) []string {
	engine := resp.Engine
	lines := make([]string, 0, 6)

	detail := stateLabel(engine.State)
	if engine.PID != nil {
		detail = fmt.Sprintf("%s (pid %d)", detail, *engine.PID)
	}
	lines = append(lines, renderStatusLine("State", stateKind(engine.State), detail, colorize))

	if engine.Binary != "" {
		lines = append(lines, renderStatusLine("Binary", statusInfo, engine.Binary, colorize))
	}
	lines = append(lines, renderStatusLine("Started", statusInfo, formatTime(engine.StartedAt), colorize))

	restartDetail := fmt.Sprintf("auto-restart %s, attempt %d of %d", yesNo(engine.AutoRestart), engine.RestartAttempts, engine.MaxAttempts)
	if engine.RestartPending {
		restartDetail += ", restart pending"
	}
	restartKind := statusInfo
	if engine.RestartAttempts > 0 {
		restartKind = statusWarn
	}
	lines = append(lines, renderStatusLine("Watchdog", restartKind, restartDetail, colorize))

	if engine.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusError, engine.LastError, colorize))
	}
	return lines
}

func counterRows(resp *ipc.StatusResponse) [][]string {
	return [][]string{
		{"Commands sent", strconv.FormatUint(resp.Relay.Sent, 10)},
		{"Rate-limit drops", strconv.FormatUint(resp.Relay.RateLimited, 10)},
		{"Validation rejects", strconv.FormatUint(resp.Relay.Rejected, 10)},
		{"Transport errors", strconv.FormatUint(resp.Relay.TransportErrors, 10)},
		{"Telemetry packets", strconv.FormatUint(resp.Telemetry.Packets, 10)},
		{"Scan samples", strconv.FormatUint(resp.Telemetry.Scans, 10)},
		{"Hello announcements", strconv.FormatUint(resp.Telemetry.Hellos, 10)},
		{"Telemetry parse drops", strconv.FormatUint(resp.Telemetry.ParseErrors, 10)},
	}
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{}
	if ctx.socketFlag != nil {
		if socket := strings.TrimSpace(*ctx.socketFlag); socket != "" {
			opts.SocketPath = socket
		}
	}
	if ctx.configFlag != nil {
		if config := strings.TrimSpace(*ctx.configFlag); config != "" {
			opts.ConfigPath = config
		}
	}
	return opts
}
