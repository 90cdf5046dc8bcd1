package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/greenroom-sh/greenroom/internal/daemon"
)

func NewStatsCommand() *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show daemon command traffic statistics",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("METRICS")
			if err != nil {
				slog.Warn("Daemon is not running.")
				return
			}

			data, ok := response.Data.(map[string]interface{})
			if !ok {
				slog.Error("Unexpected metrics payload")
				return
			}

			jsonBytes, _ := json.Marshal(data["summary"])
			summary := daemon.MetricsSummary{}
			json.Unmarshal(jsonBytes, &summary)

			fmt.Printf("Uptime:    %ds\n", summary.UptimeSeconds)
			fmt.Printf("Commands:  %d (%.2f/s, %.2f%% errors, avg %.2fms)\n",
				summary.TotalCommands, summary.CommandsPerSecond,
				summary.ErrorRate, summary.AvgLatencyMs)

			if len(summary.PerCommand) > 0 {
				fmt.Println("\nPer command:")
				for _, stats := range summary.PerCommand {
					fmt.Printf("  %-16s %6d calls  %5.2f%% errors  avg %6.2fms\n",
						stats.Command, stats.Count, stats.ErrorRate, stats.AvgLatencyMs)
				}
			}
		},
	}

	return statsCmd
}
