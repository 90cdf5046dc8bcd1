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

func NewStatusCommand() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the project, server, tunnel and queue status",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("STATUS")
			if err != nil {
				slog.Warn("Daemon is not running. Use 'greenroom start' to start it.")
				return
			}

			jsonBytes, _ := json.Marshal(response.Data)
			status := daemon.DaemonStatus{}
			json.Unmarshal(jsonBytes, &status)

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "text":
				fmt.Printf("%s (port %d)\n", status.Project.Name, status.Project.Port)
				fmt.Printf("  Daemon:  running (pid %d, version %s)\n", status.Pid, status.Version)

				switch status.Server.State {
				case supervisor.StateRunning:
					fmt.Printf("  Server:  running (pid %d, up %ds", status.Server.Pid, status.Server.UptimeSeconds)
					if status.Server.MemoryMB > 0 {
						fmt.Printf(", %.1f MB", status.Server.MemoryMB)
					}
					fmt.Println(")")
				default:
					fmt.Printf("  Server:  %s\n", status.Server.State)
				}

				if len(status.Tunnels) == 0 {
					fmt.Println("  Tunnels: none")
				}
				for _, t := range status.Tunnels {
					if t.Running {
						fmt.Printf("  Tunnel:  %s %s\n", t.Name, t.URL)
					} else {
						fmt.Printf("  Tunnel:  %s (down)\n", t.Name)
					}
				}

				if status.Queue.ActiveSessionID != "" {
					fmt.Printf("  Queue:   1 active, %d waiting\n", len(status.Queue.Waiting))
				} else {
					fmt.Printf("  Queue:   empty, %d waiting\n", len(status.Queue.Waiting))
				}
			case "json":
				fmt.Println(string(jsonBytes))
			default:
				slog.Error("unknown format")
				os.Exit(1)
			}
		},
	}
	statusCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")

	return statusCmd
}
