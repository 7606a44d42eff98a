package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"grainbridge/internal/ipc"
	"grainbridge/internal/logging"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon and engine log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.LogTail(ipc.LogTailRequest{Limit: limit})
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				for _, evt := range resp.Events {
					fmt.Fprintln(stdout, formatLogEvent(evt))
				}
				if !follow {
					return nil
				}

				cursor := resp.Next
				for {
					if err := cmd.Context().Err(); err != nil {
						return nil
					}
					resp, err := client.LogTail(ipc.LogTailRequest{
						Since:      cursor,
						Limit:      limit,
						Follow:     true,
						WaitMillis: 1000,
					})
					if err != nil {
						return err
					}
					for _, evt := range resp.Events {
						fmt.Fprintln(stdout, formatLogEvent(evt))
					}
					cursor = resp.Next
				}
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum lines per fetch")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new lines")
	return cmd
}

func formatLogEvent(evt logging.LogEvent) string {
	var b strings.Builder
	if !evt.Timestamp.IsZero() {
		b.WriteString(evt.Timestamp.Local().Format("15:04:05.000"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s", evt.Level)
	if evt.Source != "" && evt.Source != logging.SourceSystem {
		fmt.Fprintf(&b, " [%s]", evt.Source)
	}
	if evt.Component != "" {
		fmt.Fprintf(&b, " %s:", evt.Component)
	}
	b.WriteByte(' ')
	b.WriteString(evt.Message)

	if len(evt.Fields) > 0 {
		keys := make([]string, 0, len(evt.Fields))
		for k := range evt.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, evt.Fields[k])
		}
	}
	return b.String()
}
