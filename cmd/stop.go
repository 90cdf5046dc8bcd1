package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/greenroom-sh/greenroom/internal/daemon"
)

func NewStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "stop",
		Aliases: []string{"quit", "shutdown"},
		Short:   "Stop the server, all tunnels and the daemon",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("QUIT")
			if err != nil {
				slog.Error("Could not connect to daemon. Nothing to stop.")
				os.Exit(1)
			}
			response.LogMessages()
		},
	}
}
