// Package admission enforces exclusive access to the shared dev server link.
// At most one remote session is active at a time; everyone else waits in a
// FIFO queue and is promoted automatically when the slot frees up.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownSession is returned for heartbeat/leave on an id that was never
// seen or has already expired. The caller must re-join.
var ErrUnknownSession = errors.New("unknown session")

// State describes where a session currently stands
type State string

const (
	StateActive  State = "active"
	StateWaiting State = "waiting"
)

// Ticket is what a session gets back from Join and Heartbeat
type Ticket struct {
	SessionID string `json:"session_id"`
	State     State  `json:"state"`
	// Position is 1-based within the waiting queue, 0 when active
	Position int `json:"position,omitempty"`
}

// WaitingEntry is one queued session in a Status snapshot
type WaitingEntry struct {
	SessionID  string        `json:"session_id"`
	Position   int           `json:"position"`
	JoinedAt   time.Time     `json:"joined_at"`
	WaitingFor time.Duration `json:"waiting_for"`
}

// Snapshot is a read-only view of the queue for monitoring
type Snapshot struct {
	ActiveSessionID string         `json:"active_session_id,omitempty"`
	Waiting         []WaitingEntry `json:"waiting"`
}

type session struct {
	id              string
	joinedAt        time.Time
	lastHeartbeatAt time.Time
}

// Options tunes a Controller. The zero value gets sensible defaults.
type Options struct {
	// LivenessWindow is how long a session may go without a heartbeat
	// before it is treated as abandoned. Should be a small multiple of the
	// client heartbeat interval.
	LivenessWindow time.Duration

	// SweepInterval is how often Run checks for abandoned sessions
	SweepInterval time.Duration

	// Now is the clock, replaceable in tests
	Now func() time.Time
}

// Controller owns the active slot and the waiting queue. All mutations run
// under one mutex so concurrent joins and leaves can never produce two
// active sessions or a queue with gaps.
type Controller struct {
	mu      sync.Mutex
	active  *session
	waiting []*session
	byID    map[string]*session

	livenessWindow time.Duration
	sweepInterval  time.Duration
	now            func() time.Time

	subscribers map[chan Snapshot]bool
}

func NewController(opts Options) *Controller {
	if opts.LivenessWindow <= 0 {
		opts.LivenessWindow = 30 * time.Second
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		byID:           make(map[string]*session),
		livenessWindow: opts.LivenessWindow,
		sweepInterval:  opts.SweepInterval,
		now:            opts.Now,
		subscribers:    make(map[chan Snapshot]bool),
	}
}

// Join admits a session. Re-joining with a live session id is idempotent and
// returns the current state without creating a second session. The operator
// flag is for local access: it always yields an active ticket without
// occupying the remote slot or touching the queue.
func (c *Controller) Join(existingID string, operator bool) (Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := c.expireLocked()

	if operator {
		id := existingID
		if id == "" {
			id = uuid.NewString()
		}
		if changed {
			c.notifyLocked()
		}
		return Ticket{SessionID: id, State: StateActive}, nil
	}

	if existingID != "" {
		if s, ok := c.byID[existingID]; ok {
			s.lastHeartbeatAt = c.now()
			t := c.ticketLocked(s)
			if changed {
				c.notifyLocked()
			}
			return t, nil
		}
	}

	s := &session{
		id:              uuid.NewString(),
		joinedAt:        c.now(),
		lastHeartbeatAt: c.now(),
	}
	c.byID[s.id] = s

	if c.active == nil {
		c.active = s
		slog.Debug("Session admitted directly", "session", s.id)
	} else {
		c.waiting = append(c.waiting, s)
		slog.Debug("Session queued", "session", s.id, "position", len(c.waiting))
	}

	c.notifyLocked()
	return c.ticketLocked(s), nil
}

// Heartbeat refreshes a session's liveness and reports its current state.
// Waiting sessions get their position recomputed since the queue may have
// moved since the last call.
func (c *Controller) Heartbeat(sessionID string) (Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := c.expireLocked()

	s, ok := c.byID[sessionID]
	if !ok {
		if changed {
			c.notifyLocked()
		}
		return Ticket{}, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	s.lastHeartbeatAt = c.now()
	if changed {
		c.notifyLocked()
	}
	return c.ticketLocked(s), nil
}

// Leave removes a session. Vacating the active slot promotes the queue head
// synchronously.
func (c *Controller) Leave(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireLocked()

	s, ok := c.byID[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	c.removeLocked(s)
	slog.Debug("Session left", "session", s.id)
	c.notifyLocked()
	return nil
}

// Status returns a snapshot of the active slot and the ordered queue
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.expireLocked() {
		c.notifyLocked()
	}
	return c.snapshotLocked()
}

// Subscribe returns a channel receiving a snapshot after every queue change.
// Slow subscribers miss intermediate snapshots rather than blocking the
// controller.
func (c *Controller) Subscribe() chan Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 16)
	c.subscribers[ch] = true
	return ch
}

// Unsubscribe removes and closes a subscriber channel
func (c *Controller) Unsubscribe(ch chan Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subscribers[ch] {
		delete(c.subscribers, ch)
		close(ch)
	}
}

// Run drives the periodic liveness sweep until ctx is cancelled. Expiry also
// happens lazily on every call, so the sweep only matters when no traffic
// arrives to trigger it.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.expireLocked() {
				c.notifyLocked()
			}
			c.mu.Unlock()
		}
	}
}

// expireLocked removes every session whose last heartbeat is older than the
// liveness window, exactly as if it had called Leave. Returns whether
// anything changed. Caller holds c.mu.
func (c *Controller) expireLocked() bool {
	deadline := c.now().Add(-c.livenessWindow)
	changed := false

	// Expire the queue before touching the active slot so promotion can
	// never pick a head that is itself already dead.
	kept := c.waiting[:0]
	for _, s := range c.waiting {
		if s.lastHeartbeatAt.Before(deadline) {
			slog.Info("Waiting session expired", "session", s.id)
			delete(c.byID, s.id)
			changed = true
			continue
		}
		kept = append(kept, s)
	}
	c.waiting = kept

	if c.active != nil && c.active.lastHeartbeatAt.Before(deadline) {
		slog.Info("Active session expired", "session", c.active.id)
		delete(c.byID, c.active.id)
		c.active = nil
		changed = true
	}

	if changed {
		c.promoteLocked()
	}
	return changed
}

// removeLocked deletes a session from whichever slot holds it, then runs
// promotion. Caller holds c.mu.
func (c *Controller) removeLocked(s *session) {
	delete(c.byID, s.id)

	if c.active == s {
		c.active = nil
		c.promoteLocked()
		return
	}

	for i, w := range c.waiting {
		if w == s {
			c.waiting = append(c.waiting[:i], c.waiting[i+1:]...)
			return
		}
	}
}

// promoteLocked moves the queue head into the active slot when it is empty.
// Caller holds c.mu.
func (c *Controller) promoteLocked() {
	if c.active != nil || len(c.waiting) == 0 {
		return
	}
	c.active = c.waiting[0]
	c.waiting = c.waiting[1:]
	slog.Info("Session promoted to active", "session", c.active.id)
}

func (c *Controller) ticketLocked(s *session) Ticket {
	if c.active == s {
		return Ticket{SessionID: s.id, State: StateActive}
	}
	for i, w := range c.waiting {
		if w == s {
			return Ticket{SessionID: s.id, State: StateWaiting, Position: i + 1}
		}
	}
	// Not reached while s is tracked
	return Ticket{SessionID: s.id, State: StateWaiting}
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{Waiting: make([]WaitingEntry, 0, len(c.waiting))}
	if c.active != nil {
		snap.ActiveSessionID = c.active.id
	}
	now := c.now()
	for i, s := range c.waiting {
		snap.Waiting = append(snap.Waiting, WaitingEntry{
			SessionID:  s.id,
			Position:   i + 1,
			JoinedAt:   s.joinedAt,
			WaitingFor: now.Sub(s.joinedAt),
		})
	}
	return snap
}

// notifyLocked pushes the current snapshot to every subscriber without
// blocking. Caller holds c.mu.
func (c *Controller) notifyLocked() {
	if len(c.subscribers) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for ch := range c.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}
