// Package boot sequences the dependent startup and shutdown actions the
// operator treats as one "go live" / "go dark" operation: tunnels first,
// then the server process, then verification, with a progress trail and
// defined partial-failure behavior.
package boot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/greenroom-sh/greenroom/internal/supervisor"
	"github.com/greenroom-sh/greenroom/internal/tunnel"
)

// ErrSagaInProgress is returned when a boot or shutdown is invoked while
// another attempt is still running its steps.
var ErrSagaInProgress = errors.New("a boot or shutdown is already in progress")

// SagaState is the lifecycle of one boot/shutdown attempt
type SagaState string

const (
	SagaIdle      SagaState = "idle"
	SagaRunning   SagaState = "running_steps"
	SagaSucceeded SagaState = "succeeded"
	SagaFailed    SagaState = "failed"
)

// TrailEntry is one timestamped progress message
type TrailEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
	IsError bool      `json:"is_error,omitempty"`
}

// SagaStatus is a snapshot of the current attempt for callers rendering
// progress
type SagaStatus struct {
	State SagaState    `json:"state"`
	Trail []TrailEntry `json:"trail"`
}

// Plan is the read-only configuration snapshot taken at boot time
type Plan struct {
	Command   string
	Directory string
	Port      int
	Tunnels   []string
}

// PlanSource provides the boot plan, normally backed by the project store
type PlanSource interface {
	BootPlan() (Plan, error)
}

// ProcessControl is the slice of the supervisor the orchestrator needs
type ProcessControl interface {
	Start(command, dir string) (int, error)
	Stop() error
	Status() supervisor.Status
}

// TunnelControl is the slice of the tunnel manager the orchestrator needs
type TunnelControl interface {
	Start(ctx context.Context, name string, port int) (string, error)
	Stop(name string) error
	Status() []tunnel.Info
}

// Options tunes an Orchestrator
type Options struct {
	// SettleDelay is how long to wait after process start before the
	// verification read
	SettleDelay time.Duration
}

// Orchestrator drives the boot/shutdown saga. Steps run sequentially; a
// second invocation while steps are running is rejected, never queued.
type Orchestrator struct {
	mu          sync.Mutex
	state       SagaState
	trail       []TrailEntry
	subscribers map[chan TrailEntry]bool

	proc        ProcessControl
	tunnels     TunnelControl
	plans       PlanSource
	settleDelay time.Duration
}

func NewOrchestrator(proc ProcessControl, tunnels TunnelControl, plans PlanSource, opts Options) *Orchestrator {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 2 * time.Second
	}
	return &Orchestrator{
		state:       SagaIdle,
		subscribers: make(map[chan TrailEntry]bool),
		proc:        proc,
		tunnels:     tunnels,
		plans:       plans,
		settleDelay: opts.SettleDelay,
	}
}

// begin claims the saga for a new attempt, resetting the trail.
// Terminal states count as idle for admission purposes.
func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == SagaRunning {
		return ErrSagaInProgress
	}
	o.state = SagaRunning
	o.trail = o.trail[:0]
	return nil
}

func (o *Orchestrator) finish(state SagaState) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}

// append records a trail entry and fans it out to subscribers
func (o *Orchestrator) append(format string, args ...interface{}) {
	o.appendEntry(false, format, args...)
}

func (o *Orchestrator) appendError(format string, args ...interface{}) {
	o.appendEntry(true, format, args...)
}

func (o *Orchestrator) appendEntry(isError bool, format string, args ...interface{}) {
	entry := TrailEntry{
		At:      time.Now(),
		Message: fmt.Sprintf(format, args...),
		IsError: isError,
	}

	o.mu.Lock()
	o.trail = append(o.trail, entry)
	for ch := range o.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
	o.mu.Unlock()

	if isError {
		slog.Error(entry.Message)
	} else {
		slog.Info(entry.Message)
	}
}

// Boot runs the full go-live sequence: every configured tunnel, then the
// server process, then a settle delay and verification. A tunnel failure
// aborts before the process is touched. A process failure leaves already
// started tunnels running; the operator may want the tunnel up independent
// of this particular process.
func (o *Orchestrator) Boot(ctx context.Context) error {
	if err := o.begin(); err != nil {
		return err
	}

	plan, err := o.plans.BootPlan()
	if err != nil {
		o.appendError("Failed to read project configuration: %v", err)
		o.finish(SagaFailed)
		return err
	}

	o.append("Going live: %q in %s (port %d)", plan.Command, plan.Directory, plan.Port)

	// Step 1: tunnels, all-or-nothing up to here
	for _, name := range plan.Tunnels {
		o.append("Starting tunnel %s...", name)
		url, err := o.tunnels.Start(ctx, name, plan.Port)
		if err != nil {
			o.appendError("Tunnel %s failed: %v", name, err)
			o.finish(SagaFailed)
			return err
		}
		o.append("Tunnel %s up: %s", name, url)
	}

	// Step 2: the server process. Tunnels stay up on failure.
	o.append("Starting server...")
	pid, err := o.proc.Start(plan.Command, plan.Directory)
	if err != nil {
		o.appendError("Server failed to start: %v", err)
		o.finish(SagaFailed)
		return err
	}
	o.append("Server started (pid %d)", pid)

	// Step 3: settle, then verify everything still reports healthy
	o.append("Waiting %s for the server to settle...", o.settleDelay)
	select {
	case <-time.After(o.settleDelay):
	case <-ctx.Done():
		o.appendError("Boot cancelled: %v", ctx.Err())
		o.finish(SagaFailed)
		return ctx.Err()
	}

	if st := o.proc.Status(); st.State != supervisor.StateRunning {
		o.appendError("Server is not running after settle (state %s)", st.State)
		o.finish(SagaFailed)
		return fmt.Errorf("server state %s after settle", st.State)
	}

	up := make(map[string]bool)
	for _, info := range o.tunnels.Status() {
		if info.Running {
			up[info.Name] = true
		}
	}
	for _, name := range plan.Tunnels {
		if !up[name] {
			o.appendError("Tunnel %s went down during boot", name)
			o.finish(SagaFailed)
			return fmt.Errorf("tunnel %s not active after settle", name)
		}
	}

	o.append("Boot complete, all systems go")
	o.finish(SagaSucceeded)
	return nil
}

// Shutdown runs the go-dark sequence: process first, then every tunnel.
// It is best-effort; failures are recorded in the trail but never abort the
// remaining steps, since leaving a tunnel open after the process is down is
// worse than a partially clean shutdown.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if err := o.begin(); err != nil {
		return err
	}

	o.append("Going dark...")
	failed := false

	o.append("Stopping server...")
	if err := o.proc.Stop(); err != nil {
		o.appendError("Server stop failed: %v", err)
		failed = true
	} else {
		o.append("Server stopped")
	}

	for _, info := range o.tunnels.Status() {
		o.append("Stopping tunnel %s...", info.Name)
		if err := o.tunnels.Stop(info.Name); err != nil {
			o.appendError("Tunnel %s stop failed: %v", info.Name, err)
			failed = true
			continue
		}
		o.append("Tunnel %s stopped", info.Name)
	}

	if failed {
		o.append("Shutdown finished with errors")
		o.finish(SagaFailed)
		return errors.New("shutdown finished with errors")
	}

	o.append("Shutdown complete")
	o.finish(SagaSucceeded)
	return nil
}

// Status returns the saga state and a copy of the trail
func (o *Orchestrator) Status() SagaStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	trail := make([]TrailEntry, len(o.trail))
	copy(trail, o.trail)
	return SagaStatus{State: o.state, Trail: trail}
}

// Subscribe returns a channel receiving each trail entry as it is appended
func (o *Orchestrator) Subscribe() chan TrailEntry {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan TrailEntry, 32)
	o.subscribers[ch] = true
	return ch
}

// Unsubscribe detaches a trail subscriber
func (o *Orchestrator) Unsubscribe(ch chan TrailEntry) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.subscribers[ch] {
		delete(o.subscribers, ch)
		close(ch)
	}
}
