package tunnel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// NgrokRunner runs `ngrok http <port>` and discovers the public URL through
// ngrok's local inspection API.
type NgrokRunner struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	url     string
	apiAddr string
	wait    time.Duration
}

// NewNgrokRunner builds a runner polling the given inspection API address
// (normally http://localhost:4040) for up to wait before giving up.
func NewNgrokRunner(apiAddr string, wait time.Duration) *NgrokRunner {
	if wait <= 0 {
		wait = 15 * time.Second
	}
	return &NgrokRunner{apiAddr: apiAddr, wait: wait}
}

type ngrokTunnelList struct {
	Tunnels []struct {
		PublicURL string `json:"public_url"`
	} `json:"tunnels"`
}

func (r *NgrokRunner) Start(ctx context.Context, port int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd != nil && r.url != "" {
		return r.url, nil
	}

	cmd := exec.Command("ngrok", "http", fmt.Sprintf("%d", port))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("ngrok not found or failed to spawn: %w", err)
	}
	r.cmd = cmd

	url, err := r.discoverURL(ctx)
	if err != nil {
		r.stopLocked()
		return "", err
	}
	r.url = url
	return url, nil
}

// discoverURL polls the local inspection API until a tunnel shows up.
// Caller holds r.mu.
func (r *NgrokRunner) discoverURL(ctx context.Context) (string, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	deadline := time.Now().Add(r.wait)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}

		resp, err := client.Get(r.apiAddr + "/api/tunnels")
		if err != nil {
			// API not up yet
			continue
		}
		var list ngrokTunnelList
		decodeErr := json.NewDecoder(resp.Body).Decode(&list)
		resp.Body.Close()
		if decodeErr != nil || resp.StatusCode != http.StatusOK {
			continue
		}
		if len(list.Tunnels) > 0 && list.Tunnels[0].PublicURL != "" {
			return list.Tunnels[0].PublicURL, nil
		}
	}
	return "", fmt.Errorf("no tunnel appeared in the ngrok API within %v", r.wait)
}

func (r *NgrokRunner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked()
}

// stopLocked terminates the ngrok process, force-killing after 5s.
// Caller holds r.mu.
func (r *NgrokRunner) stopLocked() error {
	if r.cmd == nil || r.cmd.Process == nil {
		r.url = ""
		return nil
	}

	r.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func(cmd *exec.Cmd) {
		cmd.Wait()
		close(done)
	}(r.cmd)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		r.cmd.Process.Kill()
		<-done
	}

	r.cmd = nil
	r.url = ""
	return nil
}

func (r *NgrokRunner) URL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.url
}

func (r *NgrokRunner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd == nil || r.cmd.Process == nil {
		return false
	}
	// Signal 0 checks existence without touching the process
	return r.cmd.Process.Signal(syscall.Signal(0)) == nil
}
