package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/greenroom-sh/greenroom/internal/daemon"
)

func NewTunnelCommand() *cobra.Command {
	tunnelCmd := &cobra.Command{
		Use:   "tunnel",
		Short: "Start and stop public tunnels to the server",
	}

	tunnelCmd.AddCommand(
		&cobra.Command{
			Use:   "start <ngrok|cloudflare>",
			Short: "Start a tunnel to the configured port",
			Args:  cobra.ExactArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				daemon.EnsureDaemonIsRunning()
				runSimpleCommand("TUNNEL_START " + args[0])
			},
		},
		&cobra.Command{
			Use:   "stop <ngrok|cloudflare>",
			Short: "Stop a running tunnel",
			Args:  cobra.ExactArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				runSimpleCommand("TUNNEL_STOP " + args[0])
			},
		},
		&cobra.Command{
			Use:   "links",
			Short: "Show every address the server is reachable at",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				response, err := daemon.SendCommand("LINKS")
				if err != nil {
					slog.Warn("Daemon is not running.")
					return
				}

				linkMap, ok := response.Data.(map[string]interface{})
				if !ok || len(linkMap) == 0 {
					fmt.Println("No links available.")
					return
				}
				for name, url := range linkMap {
					fmt.Printf("  %-12s %v\n", name, url)
				}
			},
		},
	)

	return tunnelCmd
}
