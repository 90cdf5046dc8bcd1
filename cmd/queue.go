package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/greenroom-sh/greenroom/internal/admission"
	"github.com/greenroom-sh/greenroom/internal/daemon"
)

func NewQueueCommand() *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and join the viewer waiting queue",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show who is active and who is waiting",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("QUEUE_STATUS")
			if err != nil {
				slog.Warn("Daemon is not running.")
				return
			}

			jsonBytes, _ := json.Marshal(response.Data)
			snapshot := admission.Snapshot{}
			json.Unmarshal(jsonBytes, &snapshot)

			if snapshot.ActiveSessionID == "" {
				fmt.Println("Nobody is connected.")
			} else {
				fmt.Printf("Active: %s\n", snapshot.ActiveSessionID)
			}
			for _, entry := range snapshot.Waiting {
				fmt.Printf("  %2d. %s (waiting %s)\n",
					entry.Position, entry.SessionID, entry.WaitingFor.Round(time.Second))
			}
		},
	}

	var operator bool
	joinCmd := &cobra.Command{
		Use:   "join",
		Short: "Join the queue and hold the spot until Ctrl+C",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			daemon.EnsureDaemonIsRunning()

			joinCommand := "JOIN"
			if operator {
				joinCommand += " operator"
			}
			response, err := daemon.SendCommand(joinCommand)
			if err != nil {
				slog.Error(fmt.Sprintf("Could not connect to daemon: %v", err))
				os.Exit(1)
			}
			if response.HasErrors() {
				response.LogMessages()
				os.Exit(1)
			}

			ticket := parseTicket(response)
			response.LogMessages()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			// Keep the session alive well inside the liveness window
			heartbeat := time.NewTicker(10 * time.Second)
			defer heartbeat.Stop()

			lastState := ticket.State
			for {
				select {
				case <-heartbeat.C:
					response, err := daemon.SendCommand("HEARTBEAT " + ticket.SessionID)
					if err != nil || response.HasErrors() {
						slog.Error("Session lost. Rejoin with 'greenroom queue join'.")
						os.Exit(1)
					}
					current := parseTicket(response)
					if current.State != lastState && current.State == admission.StateActive {
						slog.Info("You're up")
					}
					lastState = current.State
				case <-sigChan:
					daemon.SendCommand("LEAVE " + ticket.SessionID)
					fmt.Println("\nLeft the queue.")
					return
				}
			}
		},
	}
	joinCmd.Flags().BoolVar(&operator, "operator", false, "Join as the operator, bypassing the queue")

	leaveCmd := &cobra.Command{
		Use:   "leave <session-id>",
		Short: "Remove a session from the queue",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runSimpleCommand("LEAVE " + args[0])
		},
	}

	queueCmd.AddCommand(statusCmd, joinCmd, leaveCmd)
	return queueCmd
}

func parseTicket(response daemon.Response) admission.Ticket {
	jsonBytes, _ := json.Marshal(response.Data)
	ticket := admission.Ticket{}
	json.Unmarshal(jsonBytes, &ticket)
	return ticket
}
