package supervisor

import "sync"

// Broadcaster fans server output lines out to live subscribers while keeping
// a bounded ring of recent lines. New subscribers do not replay history
// through the live channel; they take a Snapshot first, then receive new
// lines only.
type Broadcaster struct {
	clients map[chan string]bool
	ring    []string
	maxRing int
	mu      sync.RWMutex
}

func NewBroadcaster(ringSize int) *Broadcaster {
	if ringSize <= 0 {
		ringSize = 200
	}
	return &Broadcaster{
		clients: make(map[chan string]bool),
		ring:    make([]string, 0, ringSize),
		maxRing: ringSize,
	}
}

// Subscribe adds a client. The channel is buffered so a stalled reader drops
// lines instead of blocking the output pump.
func (b *Broadcaster) Subscribe() chan string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan string, 100)
	b.clients[ch] = true
	return ch
}

// Unsubscribe removes a client and closes its channel
func (b *Broadcaster) Unsubscribe(ch chan string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.clients[ch] {
		delete(b.clients, ch)
		close(ch)
	}
}

// Broadcast appends a line to the ring, evicting the oldest when full, and
// delivers it to every subscriber without blocking.
func (b *Broadcaster) Broadcast(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.ring) >= b.maxRing {
		b.ring = b.ring[1:]
	}
	b.ring = append(b.ring, line)

	for ch := range b.clients {
		select {
		case ch <- line:
		default:
			// Buffer full, skip this client
		}
	}
}

// Snapshot returns up to n of the most recent lines, oldest first.
// n <= 0 returns the whole ring.
func (b *Broadcaster) Snapshot(n int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := 0
	if n > 0 && len(b.ring) > n {
		start = len(b.ring) - n
	}
	out := make([]string, len(b.ring)-start)
	copy(out, b.ring[start:])
	return out
}

// Clear empties the ring. Subscribers are unaffected.
func (b *Broadcaster) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ring = b.ring[:0]
}

// Len reports the current number of ring entries
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ring)
}
