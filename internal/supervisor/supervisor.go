// Package supervisor owns the single external dev server process: start,
// stop, restart, liveness reporting and a bounded live log feed.
package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/shirou/gopsutil/v3/process"
)

var (
	// ErrAlreadyRunning is returned by Start while a server is running or
	// starting. There is no implicit restart.
	ErrAlreadyRunning = errors.New("server is already running")

	// ErrNotRunning is returned by Restart when nothing was ever started
	ErrNotRunning = errors.New("server is not running")

	// ErrLaunchFailed wraps the OS error when the command cannot be spawned
	ErrLaunchFailed = errors.New("failed to launch server")
)

// ServerState is the lifecycle state of the supervised process
type ServerState string

const (
	StateStopped  ServerState = "stopped"
	StateStarting ServerState = "starting"
	StateRunning  ServerState = "running"
	StateStopping ServerState = "stopping"
)

// Status is a point-in-time view of the supervised process
type Status struct {
	State         ServerState `json:"state"`
	Pid           int         `json:"pid,omitempty"`
	UptimeSeconds int64       `json:"uptime_seconds,omitempty"`
	Command       string      `json:"command,omitempty"`
	Directory     string      `json:"directory,omitempty"`
	MemoryMB      float64     `json:"memory_mb,omitempty"`
	CPUPercent    float64     `json:"cpu_percent,omitempty"`
}

// Supervisor manages exactly one external server process. Start/Stop/Restart
// serialize on opMu; field access serializes on mu so Status and the output
// pump never block behind a stop grace period.
type Supervisor struct {
	opMu sync.Mutex
	mu   sync.Mutex

	state      ServerState
	cmd        *exec.Cmd
	pid        int
	startedAt  time.Time
	command    string
	dir        string
	generation int
	waitDone   chan struct{}

	output    *Broadcaster
	stopGrace time.Duration
}

// Options tunes a Supervisor. The zero value gets sensible defaults.
type Options struct {
	// StopGrace is the time between the graceful signal and SIGKILL
	StopGrace time.Duration

	// LogHistory is the size of the bounded log ring
	LogHistory int
}

func New(opts Options) *Supervisor {
	if opts.StopGrace <= 0 {
		opts.StopGrace = 5 * time.Second
	}
	return &Supervisor{
		state:     StateStopped,
		output:    NewBroadcaster(opts.LogHistory),
		stopGrace: opts.StopGrace,
	}
}

// Start launches the command in the given directory. The process runs in its
// own session so it keeps going if this process exits. The log ring is
// cleared on every fresh start.
func (s *Supervisor) Start(command, dir string) (int, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.startLocked(command, dir)
}

// startLocked does the actual spawn. Caller holds s.opMu.
func (s *Supervisor) startLocked(command, dir string) (int, error) {
	s.mu.Lock()
	if s.state == StateRunning || s.state == StateStarting {
		pid := s.pid
		s.mu.Unlock()
		return pid, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}
	s.state = StateStarting
	s.mu.Unlock()

	s.output.Clear()

	cmd := exec.Command("sh", "-c", command)
	if dir != "" {
		cmd.Dir = expandPath(dir)
	}

	// A pty makes most dev servers line-buffer their output, so log lines
	// arrive as they are printed instead of in 4k flushes. pty.Start also
	// puts the child in its own session.
	reader, err := s.spawn(cmd)
	if err != nil {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.pid = cmd.Process.Pid
	s.startedAt = time.Now()
	s.command = command
	s.dir = dir
	s.state = StateRunning
	s.generation++
	gen := s.generation
	s.waitDone = make(chan struct{})
	done := s.waitDone
	s.mu.Unlock()

	slog.Info("Server started", "pid", cmd.Process.Pid, "command", command, "dir", dir)

	go s.pumpOutput(reader)
	go s.monitor(cmd, gen, done)

	return cmd.Process.Pid, nil
}

// spawn starts cmd under a pty, falling back to plain pipes when no pty can
// be allocated (some CI environments). Either way the child gets its own
// session. A spawn failure (bad directory, command not found) is returned
// as-is so the caller can report the OS error.
func (s *Supervisor) spawn(cmd *exec.Cmd) (io.Reader, error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return s.spawnWithPipes(cmd)
	}
	defer tty.Close()

	cmd.Stdout = tty
	cmd.Stderr = tty
	cmd.Stdin = tty
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}

	if startErr := cmd.Start(); startErr != nil {
		ptmx.Close()
		return nil, startErr
	}
	return ptmx, nil
}

func (s *Supervisor) spawnWithPipes(cmd *exec.Cmd) (io.Reader, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = cmd.Stdout
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if startErr := cmd.Start(); startErr != nil {
		return nil, startErr
	}
	return stdout, nil
}

// pumpOutput streams combined stdout/stderr lines into the ring in arrival
// order until the stream closes.
func (s *Supervisor) pumpOutput(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.output.Broadcast(scanner.Text())
	}
	// Read errors here are expected: a pty returns EIO once the child
	// exits, a pipe returns EOF.
	if c, ok := r.(io.Closer); ok {
		c.Close()
	}
}

// monitor waits for the process to exit and records the outcome. A crash
// (exit not initiated by Stop) is logged to the ring; the supervisor never
// auto-restarts.
func (s *Supervisor) monitor(cmd *exec.Cmd, gen int, done chan struct{}) {
	err := cmd.Wait()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		close(done)
		return
	}
	intentional := s.state == StateStopping
	s.state = StateStopped
	s.pid = 0
	s.startedAt = time.Time{}
	s.cmd = nil
	s.mu.Unlock()

	if intentional {
		slog.Info("Server stopped", "exit_code", exitCode)
	} else {
		slog.Warn("Server exited unexpectedly", "exit_code", exitCode)
		s.output.Broadcast(fmt.Sprintf("[greenroom] server exited with code %d", exitCode))
	}
	close(done)
}

// Stop terminates the process and everything it spawned. A stop on a stopped
// supervisor is a silent no-op and leaves the log ring alone.
func (s *Supervisor) Stop() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stopLocked()
}

// stopLocked sends the graceful signal to the whole process tree, waits for
// the grace period, then force-kills. Caller holds s.opMu.
func (s *Supervisor) stopLocked() error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	pid := s.pid
	done := s.waitDone
	s.mu.Unlock()

	slog.Info("Stopping server", "pid", pid)
	s.terminateTree(pid, syscall.SIGTERM)

	if done != nil {
		select {
		case <-done:
			return nil
		case <-time.After(s.stopGrace):
		}
	}

	slog.Warn("Server did not stop in time, force killing", "pid", pid)
	s.terminateTree(pid, syscall.SIGKILL)

	if done != nil {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			// Wait never came back; mark stopped so the slot frees up.
			// Bumping the generation makes a late monitor exit a no-op.
			s.mu.Lock()
			s.state = StateStopped
			s.pid = 0
			s.startedAt = time.Time{}
			s.cmd = nil
			s.generation++
			s.mu.Unlock()
		}
	}
	return nil
}

// terminateTree signals the process group plus every descendant it can
// enumerate. Dev server commands routinely fork (package managers spawning
// the real server), so signaling just the leader leaves orphans bound to the
// port.
func (s *Supervisor) terminateTree(pid int, sig syscall.Signal) {
	if pid <= 0 {
		return
	}

	// Descendants first, discovered before the group signal reaps them
	if proc, err := process.NewProcess(int32(pid)); err == nil {
		if children, err := proc.Children(); err == nil {
			for _, child := range children {
				syscall.Kill(int(child.Pid), sig)
			}
		}
	}

	if err := syscall.Kill(-pid, sig); err != nil {
		// Group signal failed (already reaped or not a group leader)
		syscall.Kill(pid, sig)
	}
}

// Restart stops the server and starts it again with the previously used
// command and directory. Serializes with concurrent Start/Stop.
func (s *Supervisor) Restart() (int, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	command, dir := s.command, s.dir
	s.mu.Unlock()

	if command == "" {
		return 0, ErrNotRunning
	}

	if err := s.stopLocked(); err != nil {
		return 0, err
	}

	// Give the port a moment to free up
	time.Sleep(time.Second)

	return s.startLocked(command, dir)
}

// Status reports the current lifecycle state. Uptime is computed from the
// start time; memory and CPU come from the live process when available.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	st := Status{
		State:     s.state,
		Command:   s.command,
		Directory: s.dir,
	}
	if s.state == StateRunning || s.state == StateStopping {
		st.Pid = s.pid
		st.UptimeSeconds = int64(time.Since(s.startedAt).Seconds())
	}
	s.mu.Unlock()

	if st.Pid > 0 {
		if proc, err := process.NewProcess(int32(st.Pid)); err == nil {
			if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
				st.MemoryMB = float64(mem.RSS) / (1024 * 1024)
			}
			if cpu, err := proc.CPUPercent(); err == nil {
				st.CPUPercent = cpu
			}
		}
	}
	return st
}

// Logs returns a snapshot of up to n recent lines, oldest first
func (s *Supervisor) Logs(n int) []string {
	return s.output.Snapshot(n)
}

// Subscribe returns a channel receiving each new log line as it arrives
func (s *Supervisor) Subscribe() chan string {
	return s.output.Subscribe()
}

// Unsubscribe detaches a log subscriber
func (s *Supervisor) Unsubscribe(ch chan string) {
	s.output.Unsubscribe(ch)
}

// expandPath expands ~ to the home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home + path[1:]
	}
	return path
}
