package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/greenroom-sh/greenroom/internal/core"
)

func NewRootCommand() *cobra.Command {
	var configPath string
	var verbose int

	homeDir, _ := os.UserHomeDir()

	rootCmd := &cobra.Command{
		Use:   "greenroom",
		Short: "Greenroom - share your local dev server, one viewer at a time",
		Long: `Greenroom - share your local dev server, one viewer at a time.

Greenroom supervises your dev server process, opens ngrok or cloudflared
tunnels to it, and admits remote viewers through a first-come first-served
waiting queue.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return core.InitializeConfig(configPath, verbose)
		},
	}
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config-path", fmt.Sprintf("%s/%s", homeDir, core.BaseDirName),
		"config path",
	)
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "more output, repeat for even more")

	rootCmd.AddCommand(
		NewUpCommand(),
		NewDownCommand(),
		NewStatusCommand(),
		NewStartCommand(),
		NewStopCommand(),
		NewServerCommand(),
		NewLogsCommand(),
		NewAttachCommand(),
		NewQueueCommand(),
		NewTunnelCommand(),
		NewPresetCommand(),
		NewConfigCommand(),
		NewStatsCommand(),
		NewVersionCommand(),
		NewInternalCommand(),
	)

	return rootCmd
}
