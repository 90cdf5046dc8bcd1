package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/greenroom-sh/greenroom/internal/core"
	"github.com/greenroom-sh/greenroom/internal/daemon"
)

func NewLogsCommand() *cobra.Command {
	var lines int

	logsCmd := &cobra.Command{
		Use:     "logs",
		Aliases: []string{"log"},
		Short:   "Stream the server's output in real-time",
		Long: `Stream the server's output in real-time.

Shows the most recent output first, then follows new lines as they arrive.
Press Ctrl+C to exit.

Examples:
  greenroom logs           # Follow with recent history
  greenroom logs -L 50     # Show 50 history lines on connect

Automatically reconnects if the daemon is restarted.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if _, err := daemon.SendCommand("VERSION"); err != nil {
				slog.Error("Daemon is not running. Use 'greenroom start' to start it.")
				os.Exit(1)
			}

			noColor, _ := cmd.Flags().GetBool("no-color")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			// Suppress history replay after the first connection
			isReconnect := false

			for {
				conn, err := net.Dial("unix", core.GetSocketPath())
				if err != nil {
					slog.Error(fmt.Sprintf("Failed to connect to daemon: %v", err))
					os.Exit(1)
				}

				logsCommand := fmt.Sprintf("LOGS %d", lines)
				if isReconnect {
					logsCommand += " no_history"
				}
				logsCommand += "\n"

				if _, err := conn.Write([]byte(logsCommand)); err != nil {
					conn.Close()
					slog.Error(fmt.Sprintf("Failed to send LOGS command: %v", err))
					os.Exit(1)
				}

				done := make(chan bool)
				go func() {
					reader := bufio.NewReader(conn)
					for {
						line, err := reader.ReadString('\n')
						if err != nil {
							done <- true
							return
						}
						if noColor {
							line = stripANSI(line)
						}
						fmt.Print(line)
					}
				}()

				select {
				case <-sigChan:
					conn.Close()
					fmt.Println("\nDisconnected from server logs.")
					return
				case <-done:
					conn.Close()
					fmt.Println("Connection lost. Reconnecting...")
					time.Sleep(500 * time.Millisecond)

					// Wait for the daemon to be available again (up to 5 seconds)
					reconnected := false
					for i := 0; i < 10; i++ {
						if _, err := daemon.SendCommand("VERSION"); err == nil {
							reconnected = true
							break
						}
						time.Sleep(500 * time.Millisecond)
					}
					if !reconnected {
						fmt.Println("Daemon not available. Exiting.")
						return
					}
					isReconnect = true
				}
			}
		},
	}

	logsCmd.Flags().Bool("no-color", false, "Disable colored output")
	logsCmd.Flags().IntVarP(&lines, "lines", "L", 20, "Number of history lines to show on connect")

	return logsCmd
}

// stripANSI removes ANSI escape codes from a string
func stripANSI(s string) string {
	var result strings.Builder
	inEscape := false

	for i := 0; i < len(s); i++ {
		if s[i] == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if s[i] == 'm' {
				inEscape = false
			}
			continue
		}
		result.WriteByte(s[i])
	}

	return result.String()
}
