package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/greenroom-sh/greenroom/internal/daemon"
	"github.com/greenroom-sh/greenroom/internal/store"
)

func NewPresetCommand() *cobra.Command {
	presetCmd := &cobra.Command{
		Use:   "preset",
		Short: "Save and switch between project setups",
	}

	presetCmd.AddCommand(
		&cobra.Command{
			Use:   "save <name>",
			Short: "Save the current directory, command and port under a name",
			Args:  cobra.ExactArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				daemon.EnsureDaemonIsRunning()
				runSimpleCommand("PRESET_SAVE " + args[0])
			},
		},
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List saved presets",
			Args:    cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				response, err := daemon.SendCommand("PRESET_LIST")
				if err != nil {
					slog.Warn("Daemon is not running.")
					return
				}

				jsonBytes, _ := json.Marshal(response.Data)
				presets := []store.Preset{}
				json.Unmarshal(jsonBytes, &presets)

				if len(presets) == 0 {
					fmt.Println("No presets saved.")
					return
				}
				for _, p := range presets {
					fmt.Printf("  %-16s %q (port %d)\n", p.Name, p.Command, p.Port)
				}
			},
		},
		&cobra.Command{
			Use:   "load <name>",
			Short: "Apply a preset to the project configuration",
			Args:  cobra.ExactArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				daemon.EnsureDaemonIsRunning()
				runSimpleCommand("PRESET_LOAD " + args[0])
			},
		},
		&cobra.Command{
			Use:     "delete <name>",
			Aliases: []string{"rm"},
			Short:   "Delete a preset",
			Args:    cobra.ExactArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				runSimpleCommand("PRESET_DELETE " + args[0])
			},
		},
	)

	return presetCmd
}
