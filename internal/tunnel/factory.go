package tunnel

import (
	"fmt"
	"time"
)

// Known tunnel names
const (
	Ngrok      = "ngrok"
	Cloudflare = "cloudflare"
)

// DefaultFactory builds the real subprocess runners. ngrokAPIAddr is the
// local inspection API, wait bounds URL discovery for both providers.
func DefaultFactory(ngrokAPIAddr string, wait time.Duration) RunnerFactory {
	return func(name string) (Runner, error) {
		switch name {
		case Ngrok:
			return NewNgrokRunner(ngrokAPIAddr, wait), nil
		case Cloudflare:
			return NewCloudflareRunner(wait), nil
		default:
			return nil, fmt.Errorf("no runner for %q", name)
		}
	}
}
