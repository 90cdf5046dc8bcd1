package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/greenroom-sh/greenroom/internal/daemon"
)

func NewDownCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "down",
		Aliases: []string{"go-dark"},
		Short:   "Stop the server and all tunnels",
		Long: `Stop the server and all tunnels.

The server process is stopped first, then every running tunnel. Failures are
reported but never skip the remaining steps.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.StreamCommand("SHUTDOWN", func(msg daemon.ResponseMessage) {
				printMessage(msg)
			})
			if err != nil {
				slog.Error("Could not connect to daemon. Nothing to stop.")
				os.Exit(1)
			}
			response.LogMessages()
			if response.HasErrors() {
				os.Exit(1)
			}
		},
	}
}
