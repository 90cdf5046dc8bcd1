package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/greenroom-sh/greenroom/internal/core"
	"github.com/greenroom-sh/greenroom/internal/daemon"
)

func NewAttachCommand() *cobra.Command {
	var lines int

	attachCmd := &cobra.Command{
		Use:    "attach",
		Short:  "Stream the daemon's own log output",
		Hidden: true,
		Args:   cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if _, err := daemon.SendCommand("VERSION"); err != nil {
				slog.Error("Daemon is not running.")
				os.Exit(1)
			}

			conn, err := net.Dial("unix", core.GetSocketPath())
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to connect to daemon: %v", err))
				os.Exit(1)
			}
			defer conn.Close()

			if _, err := conn.Write([]byte(fmt.Sprintf("ATTACH %d\n", lines))); err != nil {
				slog.Error(fmt.Sprintf("Failed to send ATTACH command: %v", err))
				os.Exit(1)
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			done := make(chan bool)
			go func() {
				reader := bufio.NewReader(conn)
				for {
					line, err := reader.ReadString('\n')
					if err != nil {
						done <- true
						return
					}
					fmt.Print(line)
				}
			}()

			select {
			case <-sigChan:
				fmt.Println("\nDetached from daemon.")
			case <-done:
			}
		},
	}

	attachCmd.Flags().IntVarP(&lines, "lines", "L", 20, "Number of history lines to show on connect")

	return attachCmd
}
