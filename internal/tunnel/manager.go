// Package tunnel manages the subprocesses that expose the local dev server
// publicly. Each named tunnel (ngrok, cloudflare) is an opaque runner with
// start/stop and a current public URL.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrTunnelStartFailed means the tunnel process could not be started
	// or never produced a public URL
	ErrTunnelStartFailed = errors.New("tunnel failed to start")

	// ErrUnknownTunnel is returned for a name no runner exists for
	ErrUnknownTunnel = errors.New("unknown tunnel")
)

// Runner is one tunnel subprocess. Start blocks until a public URL is known
// or the context/deadline gives up.
type Runner interface {
	Start(ctx context.Context, port int) (string, error)
	Stop() error
	URL() string
	Running() bool
}

// RunnerFactory builds a runner for a tunnel name. Tests inject fakes here.
type RunnerFactory func(name string) (Runner, error)

// Info describes one tunnel in a status report
type Info struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	URL     string `json:"url,omitempty"`
}

// Manager owns the set of named tunnel runners
type Manager struct {
	mu       sync.Mutex
	runners  map[string]Runner
	starting map[string]bool
	factory  RunnerFactory
}

func NewManager(factory RunnerFactory) *Manager {
	return &Manager{
		runners:  make(map[string]Runner),
		starting: make(map[string]bool),
		factory:  factory,
	}
}

// Start brings up the named tunnel for the given local port and returns its
// public URL. Starting an already-running tunnel is idempotent and returns
// the existing URL.
func (m *Manager) Start(ctx context.Context, name string, port int) (string, error) {
	m.mu.Lock()
	if r, ok := m.runners[name]; ok && r.Running() {
		url := r.URL()
		m.mu.Unlock()
		slog.Info("Tunnel already running", "tunnel", name, "url", url)
		return url, nil
	}
	if m.starting[name] {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s: start already in progress", ErrTunnelStartFailed, name)
	}

	r, err := m.factory(name)
	if err != nil {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrUnknownTunnel, name)
	}
	m.starting[name] = true
	m.mu.Unlock()

	// URL discovery can take many seconds; the lock stays free so Status
	// and CurrentURL keep answering while the tunnel comes up
	url, err := r.Start(ctx, port)

	m.mu.Lock()
	delete(m.starting, name)
	if err == nil {
		m.runners[name] = r
	}
	m.mu.Unlock()

	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrTunnelStartFailed, name, err)
	}

	slog.Info("Tunnel established", "tunnel", name, "url", url)
	return url, nil
}

// Stop tears down the named tunnel. Stopping a tunnel that is not running is
// a no-op.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	r, ok := m.runners[name]
	if ok {
		delete(m.runners, name)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	slog.Info("Stopping tunnel", "tunnel", name)
	return r.Stop()
}

// StopAll tears down every tunnel, collecting errors without stopping early
func (m *Manager) StopAll() error {
	m.mu.Lock()
	runners := m.runners
	m.runners = make(map[string]Runner)
	m.mu.Unlock()

	var errs []error
	for name, r := range runners {
		if err := r.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// CurrentURL returns the public URL of a running tunnel, or "" when the
// tunnel is down
func (m *Manager) CurrentURL(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.runners[name]; ok && r.Running() {
		return r.URL()
	}
	return ""
}

// Status reports every tracked tunnel
func (m *Manager) Status() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]Info, 0, len(m.runners))
	for name, r := range m.runners {
		infos = append(infos, Info{
			Name:    name,
			Running: r.Running(),
			URL:     r.URL(),
		})
	}
	return infos
}
