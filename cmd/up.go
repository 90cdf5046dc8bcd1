package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/greenroom-sh/greenroom/internal/daemon"
)

func NewUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "up",
		Aliases: []string{"go-live"},
		Short:   "Start the server and all configured tunnels",
		Long: `Start the server and all configured tunnels.

Runs the full go-live sequence: every enabled tunnel first, then the server
process, then a verification pass. Progress is streamed as it happens.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			daemon.EnsureDaemonIsRunning()

			response, err := daemon.StreamCommand("BOOT", func(msg daemon.ResponseMessage) {
				printMessage(msg)
			})
			if err != nil {
				slog.Error(fmt.Sprintf("Boot failed: %v", err))
				os.Exit(1)
			}
			response.LogMessages()
			if response.HasErrors() {
				os.Exit(1)
			}

			// Show where the server can be reached now that everything is up
			links, err := daemon.SendCommand("LINKS")
			if err != nil {
				return
			}
			if linkMap, ok := links.Data.(map[string]interface{}); ok && len(linkMap) > 0 {
				fmt.Println("\nYour server is reachable at:")
				for name, url := range linkMap {
					fmt.Printf("  %-12s %v\n", name, url)
				}
			}
		},
	}
}

func printMessage(msg daemon.ResponseMessage) {
	switch msg.Status {
	case "ERROR":
		slog.Error(msg.Message)
	case "WARN":
		slog.Warn(msg.Message)
	default:
		slog.Info(msg.Message)
	}
}
