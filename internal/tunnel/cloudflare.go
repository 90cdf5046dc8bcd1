package tunnel

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sync"
	"syscall"
	"time"
)

// cloudflared prints the ephemeral quick-tunnel hostname to its log output
var trycloudflareURL = regexp.MustCompile(`https://[a-zA-Z0-9-]+\.trycloudflare\.com`)

// CloudflareRunner runs `cloudflared tunnel --url http://127.0.0.1:<port>`
// and scans its output for the assigned trycloudflare.com URL.
type CloudflareRunner struct {
	mu   sync.Mutex
	cmd  *exec.Cmd
	url  string
	wait time.Duration
}

func NewCloudflareRunner(wait time.Duration) *CloudflareRunner {
	if wait <= 0 {
		wait = 15 * time.Second
	}
	return &CloudflareRunner{wait: wait}
}

func (r *CloudflareRunner) Start(ctx context.Context, port int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd != nil && r.url != "" {
		return r.url, nil
	}

	cmd := exec.Command("cloudflared", "tunnel", "--url", fmt.Sprintf("http://127.0.0.1:%d", port))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	// cloudflared logs to stderr; merge both just in case
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("cloudflared not found or failed to spawn: %w", err)
	}
	r.cmd = cmd

	found := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if match := trycloudflareURL.FindString(scanner.Text()); match != "" {
				select {
				case found <- match:
				default:
				}
				// Keep draining so the pipe never fills
			}
		}
	}()

	select {
	case url := <-found:
		r.url = url
		return url, nil
	case <-ctx.Done():
		r.stopLocked()
		return "", ctx.Err()
	case <-time.After(r.wait):
		r.stopLocked()
		return "", fmt.Errorf("no trycloudflare URL appeared within %v", r.wait)
	}
}

func (r *CloudflareRunner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked()
}

// stopLocked terminates cloudflared, force-killing after 2s. Caller holds r.mu.
func (r *CloudflareRunner) stopLocked() error {
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
	case <-time.After(2 * time.Second):
		r.cmd.Process.Kill()
		<-done
	}

	r.cmd = nil
	r.url = ""
	return nil
}

func (r *CloudflareRunner) URL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.url
}

func (r *CloudflareRunner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd == nil || r.cmd.Process == nil {
		return false
	}
	return r.cmd.Process.Signal(syscall.Signal(0)) == nil
}
