package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/greenroom-sh/greenroom/internal/daemon"
)

func NewStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the greenroom daemon",
		Long: `Start the greenroom daemon in the background.

The daemon supervises the server process, tunnels and the viewer queue. It
keeps running until explicitly stopped with 'greenroom stop'.

If the daemon is already running, this command will report its status.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("VERSION")
			if err == nil {
				if versionData, ok := response.Data.(map[string]interface{}); ok {
					if version, ok := versionData["version"].(string); ok {
						slog.Info(fmt.Sprintf("Daemon is already running (version %s)", version))
						return
					}
				}
				slog.Info("Daemon is already running")
				return
			}

			slog.Info("Starting greenroom daemon...")
			if err := daemon.StartDaemon(); err != nil {
				slog.Error(fmt.Sprintf("Failed to start daemon: %v", err))
				return
			}
			if err := daemon.WaitForDaemon(); err != nil {
				slog.Error(fmt.Sprintf("Daemon failed to start: %v", err))
				return
			}

			slog.Info("Daemon started successfully")
		},
	}
}
