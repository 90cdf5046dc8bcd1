package daemon

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/greenroom-sh/greenroom/internal/core"
)

// SendCommand connects to the daemon, sends a command, and returns the response.
func SendCommand(command string) (Response, error) {
	response := Response{}

	conn, err := net.Dial("unix", core.GetSocketPath())
	if err != nil {
		return response, err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		return response, fmt.Errorf("failed to send command to daemon: %w", err)
	}

	// Responses are newline-delimited JSON. Most commands send a single
	// Response object; streaming commands interleave ResponseMessage lines
	// before it, which we fold into the final Response here.
	scanner := bufio.NewScanner(conn)
	var streamed []ResponseMessage
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var final Response
		if err := json.Unmarshal(line, &final); err == nil && final.Messages != nil {
			final.Messages = append(streamed, final.Messages...)
			return final, nil
		}
		var msg ResponseMessage
		if err := json.Unmarshal(line, &msg); err == nil {
			streamed = append(streamed, msg)
			continue
		}
		return response, fmt.Errorf("failed to parse response from daemon: %s", line)
	}
	if err := scanner.Err(); err != nil {
		return response, fmt.Errorf("failed to read response from daemon: %w", err)
	}

	if len(streamed) > 0 {
		return Response{Messages: streamed}, nil
	}
	return response, fmt.Errorf("daemon closed the connection without a response")
}

// StreamCommand sends a command and invokes handle for every progress
// message as it arrives, returning the final Response.
func StreamCommand(command string, handle func(ResponseMessage)) (Response, error) {
	response := Response{}

	conn, err := net.Dial("unix", core.GetSocketPath())
	if err != nil {
		return response, err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		return response, fmt.Errorf("failed to send command to daemon: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var final Response
		if err := json.Unmarshal(line, &final); err == nil && final.Messages != nil {
			return final, nil
		}
		var msg ResponseMessage
		if err := json.Unmarshal(line, &msg); err == nil {
			handle(msg)
			continue
		}
		return response, fmt.Errorf("failed to parse response from daemon: %s", line)
	}
	if err := scanner.Err(); err != nil {
		return response, fmt.Errorf("failed to read response from daemon: %w", err)
	}
	return response, fmt.Errorf("daemon closed the connection without a response")
}

// StartDaemon forks the daemon process in the background
func StartDaemon() error {
	cmd := exec.Command(os.Args[0], "internal-daemon-start")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("could not fork daemon process: %w", err)
	}
	slog.Debug(fmt.Sprintf("Daemon process launched with PID: %d", cmd.Process.Pid))
	return nil
}

// WaitForDaemon polls until the daemon's socket appears
func WaitForDaemon() error {
	for i := 0; i < 20; i++ {
		time.Sleep(100 * time.Millisecond)
		if _, err := os.Stat(core.GetSocketPath()); err == nil {
			return nil
		}
	}
	return fmt.Errorf("daemon process was launched but socket was not created in time")
}

// EnsureDaemonIsRunning handles the auto-start logic.
func EnsureDaemonIsRunning() {
	if _, err := SendCommand("VERSION"); err == nil {
		return // Daemon is running
	}

	slog.Info("Daemon not running. Starting it now...")
	if err := StartDaemon(); err != nil {
		slog.Error(fmt.Sprintf("Fatal: %v", err))
		os.Exit(1)
	}
	if err := WaitForDaemon(); err != nil {
		slog.Error(fmt.Sprintf("Fatal: %v", err))
		os.Exit(1)
	}
}
