package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/greenroom-sh/greenroom/internal/daemon"
	"github.com/greenroom-sh/greenroom/internal/supervisor"
)

func NewServerCommand() *cobra.Command {
	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Control the supervised server process",
	}

	serverCmd.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Start the configured server command",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				daemon.EnsureDaemonIsRunning()
				runSimpleCommand("SERVER_START")
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the server process",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				runSimpleCommand("SERVER_STOP")
			},
		},
		&cobra.Command{
			Use:   "restart",
			Short: "Restart the server with its last command",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				runSimpleCommand("SERVER_RESTART")
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the server process status",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				response, err := daemon.SendCommand("SERVER_STATUS")
				if err != nil {
					slog.Warn("Daemon is not running.")
					return
				}

				jsonBytes, _ := json.Marshal(response.Data)
				status := supervisor.Status{}
				json.Unmarshal(jsonBytes, &status)

				switch status.State {
				case supervisor.StateRunning:
					fmt.Printf("running (pid %d, up %ds)\n", status.Pid, status.UptimeSeconds)
					fmt.Printf("  command:   %s\n", status.Command)
					if status.Directory != "" {
						fmt.Printf("  directory: %s\n", status.Directory)
					}
					if status.MemoryMB > 0 {
						fmt.Printf("  memory:    %.1f MB\n", status.MemoryMB)
					}
					if status.CPUPercent > 0 {
						fmt.Printf("  cpu:       %.1f%%\n", status.CPUPercent)
					}
				default:
					fmt.Println(status.State)
				}
			},
		},
	)

	return serverCmd
}

// runSimpleCommand sends one command and prints the response messages
func runSimpleCommand(command string) {
	response, err := daemon.SendCommand(command)
	if err != nil {
		slog.Error(fmt.Sprintf("Could not connect to daemon: %v", err))
		os.Exit(1)
	}
	response.LogMessages()
	if response.HasErrors() {
		os.Exit(1)
	}
}
