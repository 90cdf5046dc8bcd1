package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/greenroom-sh/greenroom/internal/daemon"
	"github.com/greenroom-sh/greenroom/internal/store"
)

func NewConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show and change the project configuration",
	}

	configCmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Show the project configuration",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				daemon.EnsureDaemonIsRunning()
				response, err := daemon.SendCommand("CONFIG_GET")
				if err != nil {
					slog.Warn("Daemon is not running.")
					return
				}

				jsonBytes, _ := json.Marshal(response.Data)
				project := store.Project{}
				json.Unmarshal(jsonBytes, &project)

				fmt.Printf("name:       %s\n", project.Name)
				fmt.Printf("directory:  %s\n", project.Directory)
				fmt.Printf("command:    %s\n", project.Command)
				fmt.Printf("port:       %d\n", project.Port)
				fmt.Printf("lan:        %t\n", project.LanEnabled)
				fmt.Printf("ngrok:      %t\n", project.NgrokEnabled)
				fmt.Printf("cloudflare: %t\n", project.CloudflareEnabled)
				fmt.Printf("queue:      %t\n", project.QueueEnabled)
			},
		},
		&cobra.Command{
			Use:   "set <field> <value>",
			Short: "Set a project configuration field",
			Long: `Set a project configuration field.

Fields: name, directory, command, port, lan, ngrok, cloudflare, queue.

Examples:
  greenroom config set command npm run dev
  greenroom config set port 3000
  greenroom config set ngrok true`,
			Args: cobra.MinimumNArgs(2),
			Run: func(cmd *cobra.Command, args []string) {
				daemon.EnsureDaemonIsRunning()
				runSimpleCommand("CONFIG_SET " + strings.Join(args, " "))
			},
		},
	)

	return configCmd
}
