package daemon

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/lmittmann/tint"

	"github.com/greenroom-sh/greenroom/internal/boot"
)

// LogBroadcaster fans the daemon's own log output out to attached clients
type LogBroadcaster struct {
	clients map[chan string]bool
	history []string
	maxHist int
	mu      sync.RWMutex
}

func NewLogBroadcaster(historySize int) *LogBroadcaster {
	if historySize <= 0 {
		historySize = 1000
	}
	return &LogBroadcaster{
		clients: make(map[chan string]bool),
		history: make([]string, 0, historySize),
		maxHist: historySize,
	}
}

// Subscribe adds a new client to receive log broadcasts
func (lb *LogBroadcaster) Subscribe() chan string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	ch := make(chan string, 100) // Buffer to prevent blocking
	lb.clients[ch] = true
	return ch
}

// SubscribeWithHistory adds a new client and returns recent history.
// The history slice is returned separately to avoid blocking the channel.
func (lb *LogBroadcaster) SubscribeWithHistory(historyLines int) (chan string, []string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	ch := make(chan string, 100)
	lb.clients[ch] = true

	var history []string
	if historyLines > 0 && len(lb.history) > 0 {
		start := len(lb.history) - historyLines
		if start < 0 {
			start = 0
		}
		history = make([]string, len(lb.history)-start)
		copy(history, lb.history[start:])
	}

	return ch, history
}

// Unsubscribe removes a client from receiving broadcasts
func (lb *LogBroadcaster) Unsubscribe(ch chan string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if lb.clients[ch] {
		delete(lb.clients, ch)
		close(ch)
	}
}

// Broadcast sends a log message to all subscribed clients
func (lb *LogBroadcaster) Broadcast(message string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if len(lb.history) >= lb.maxHist {
		lb.history = lb.history[1:]
	}
	lb.history = append(lb.history, message)

	for ch := range lb.clients {
		select {
		case ch <- message:
		default:
			// Channel buffer full, skip this client to prevent blocking
		}
	}
}

// LogWriter is an io.Writer that broadcasts log messages
type LogWriter struct {
	broadcaster *LogBroadcaster
}

func (lw *LogWriter) Write(p []byte) (n int, err error) {
	lw.broadcaster.Broadcast(string(p))
	return len(p), nil
}

// setupLogging configures the daemon's logger to broadcast to connected clients
func (d *Daemon) setupLogging() {
	logWriter := &LogWriter{broadcaster: d.logBroadcast}
	multiWriter := io.MultiWriter(os.Stderr, logWriter)

	handler := tint.NewHandler(multiWriter, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.DateTime,
	})

	slog.SetDefault(slog.New(handler))
}

// handleServerLogs streams the supervised server's output: the requested
// slice of the ring first, then live lines until the client disconnects.
func (d *Daemon) handleServerLogs(conn net.Conn, showHistory bool, historyLines int) {
	defer conn.Close()

	logChan := d.server.Subscribe()
	defer d.server.Unsubscribe(logChan)

	if showHistory {
		for _, line := range d.server.Logs(historyLines) {
			if _, err := conn.Write([]byte(line + "\n")); err != nil {
				return
			}
		}
	}

	// Detect when the client disconnects
	done := make(chan bool)
	go func() {
		reader := bufio.NewReader(conn)
		io.Copy(io.Discard, reader)
		done <- true
	}()

	for {
		select {
		case line, ok := <-logChan:
			if !ok {
				return
			}
			if _, err := conn.Write([]byte(line + "\n")); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// handleAttach streams the daemon's own log output (same as daemon stderr)
func (d *Daemon) handleAttach(conn net.Conn, showHistory bool, historyLines int) {
	defer conn.Close()

	var logChan chan string
	var history []string
	if showHistory {
		logChan, history = d.logBroadcast.SubscribeWithHistory(historyLines)
	} else {
		logChan = d.logBroadcast.Subscribe()
	}
	defer d.logBroadcast.Unsubscribe(logChan)

	initialMsg := "Attached to greenroom daemon. Press Ctrl+C to detach.\n\n"
	if _, err := conn.Write([]byte(initialMsg)); err != nil {
		return
	}

	for _, msg := range history {
		if _, err := conn.Write([]byte(msg)); err != nil {
			return
		}
	}

	done := make(chan bool)
	go func() {
		reader := bufio.NewReader(conn)
		io.Copy(io.Discard, reader)
		done <- true
	}()

	for {
		select {
		case logMsg, ok := <-logChan:
			if !ok {
				return
			}
			if _, err := conn.Write([]byte(logMsg)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// handleSagaTrail streams boot/shutdown trail entries as they are appended
func (d *Daemon) handleSagaTrail(conn net.Conn) {
	defer conn.Close()

	trailChan := d.saga.Subscribe()
	defer d.saga.Unsubscribe(trailChan)

	// Replay the current attempt's trail first
	for _, entry := range d.saga.Status().Trail {
		if _, err := conn.Write([]byte(formatTrailEntry(entry))); err != nil {
			return
		}
	}

	done := make(chan bool)
	go func() {
		reader := bufio.NewReader(conn)
		io.Copy(io.Discard, reader)
		done <- true
	}()

	for {
		select {
		case entry, ok := <-trailChan:
			if !ok {
				return
			}
			if _, err := conn.Write([]byte(formatTrailEntry(entry))); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func formatTrailEntry(entry boot.TrailEntry) string {
	marker := " "
	if entry.IsError {
		marker = "!"
	}
	return fmt.Sprintf("%s %s %s\n", entry.At.Format(time.DateTime), marker, entry.Message)
}
