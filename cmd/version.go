package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/greenroom-sh/greenroom/internal/core"
	"github.com/greenroom-sh/greenroom/internal/daemon"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show client and daemon versions",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("greenroom %s\n", core.FormatVersion(core.Version))

			response, err := daemon.SendCommand("VERSION")
			if err != nil {
				fmt.Println("daemon not running")
				return
			}
			if versionData, ok := response.Data.(map[string]interface{}); ok {
				if version, ok := versionData["version"].(string); ok {
					fmt.Printf("daemon    %s (pid %v)\n", core.FormatVersion(version), versionData["pid"])
				}
			}
		},
	}
}
