package cmd

import (
	"github.com/spf13/cobra"

	"github.com/greenroom-sh/greenroom/internal/daemon"
)

func NewInternalCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "internal-daemon-start",
		Hidden: true,
		Run: func(cmd *cobra.Command, args []string) {
			d := daemon.New()
			d.Run()
		},
	}
}
