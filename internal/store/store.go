// Package store holds the in-memory per-channel state: the bounded message
// buffer, the cached canvas id, and the busy flag that serializes
// synchronization cycles.
package store

import (
	"sync"
	"time"

	"github.com/jibinmichael/paperforslack/pkg/models"
)

// DefaultBufferCap bounds the per-channel buffer when no cap is configured.
const DefaultBufferCap = 200

// Store owns every ChannelState. Entries are created lazily on first
// observed event and live until purged or swept.
type Store struct {
	mu       sync.RWMutex
	channels map[models.ChannelKey]*ChannelState
	cap      int
}

// New creates a Store with the given per-channel buffer cap.
func New(bufferCap int) *Store {
	if bufferCap <= 0 {
		bufferCap = DefaultBufferCap
	}
	return &Store{
		channels: make(map[models.ChannelKey]*ChannelState),
		cap:      bufferCap,
	}
}

// GetOrCreate returns the state for key, creating it if absent.
// Idempotent: concurrent callers observe the same instance.
func (s *Store) GetOrCreate(key models.ChannelKey) *ChannelState {
	s.mu.RLock()
	st, ok := s.channels[key]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.channels[key]; ok {
		return st
	}
	st = &ChannelState{
		key:       key,
		cap:       s.cap,
		lastFlush: time.Now(),
	}
	s.channels[key] = st
	return st
}

// Get returns the state for key if it exists.
func (s *Store) Get(key models.ChannelKey) (*ChannelState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.channels[key]
	return st, ok
}

// Purge removes all state for key. Used when the channel becomes
// permanently inaccessible; the next observed event recreates the entry
// from scratch.
func (s *Store) Purge(key models.ChannelKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, key)
}

// PurgeTeam removes all channel state for a workspace, used on uninstall.
// Returns the number of entries removed.
func (s *Store) PurgeTeam(teamID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key := range s.channels {
		if key.TeamID == teamID {
			delete(s.channels, key)
			removed++
		}
	}
	return removed
}

// Sweep evicts entries whose buffer is empty and whose last flush is older
// than idle, bounding memory on long-running processes. Returns the number
// of entries evicted.
func (s *Store) Sweep(idle time.Duration, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for key, st := range s.channels {
		st.mu.Lock()
		idleEmpty := len(st.buffer) == 0 && !st.busy && now.Sub(st.lastFlush) >= idle
		st.mu.Unlock()
		if idleEmpty {
			delete(s.channels, key)
			evicted++
		}
	}
	return evicted
}

// ForEach calls fn for every tracked state. fn must not block on store
// operations.
func (s *Store) ForEach(fn func(*ChannelState)) {
	s.mu.RLock()
	states := make([]*ChannelState, 0, len(s.channels))
	for _, st := range s.channels {
		states = append(states, st)
	}
	s.mu.RUnlock()
	for _, st := range states {
		fn(st)
	}
}

// Len returns the number of tracked channels.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels)
}

// BufferedTotal returns the total buffered message count across channels.
func (s *Store) BufferedTotal() int {
	total := 0
	s.ForEach(func(st *ChannelState) {
		total += st.Len()
	})
	return total
}

// ChannelState is the per-channel record. All mutation goes through its
// methods; the busy flag is the exclusion primitive for synchronization
// cycles.
type ChannelState struct {
	mu  sync.Mutex
	key models.ChannelKey
	cap int

	buffer       []models.Message
	lastFlush    time.Time
	canvasID     string
	busy         bool
	bootstrapped bool
}

// Key returns the channel identity.
func (c *ChannelState) Key() models.ChannelKey {
	return c.key
}

// Append pushes a message onto the buffer, evicting the oldest entry when
// the cap is exceeded. Returns the buffered count after the append.
func (c *ChannelState) Append(msg models.Message) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer = append(c.buffer, msg)
	if len(c.buffer) > c.cap {
		c.buffer = c.buffer[len(c.buffer)-c.cap:]
	}
	return len(c.buffer)
}

// Snapshot returns a copy of the current buffer. The cycle that consumes
// the snapshot must pass its length to Reset so messages appended while
// the cycle was in flight survive.
func (c *ChannelState) Snapshot() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Message, len(c.buffer))
	copy(out, c.buffer)
	return out
}

// Reset removes exactly the first consumed messages from the buffer.
func (c *ChannelState) Reset(consumed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if consumed <= 0 {
		return
	}
	if consumed >= len(c.buffer) {
		c.buffer = nil
		return
	}
	remaining := make([]models.Message, len(c.buffer)-consumed)
	copy(remaining, c.buffer[consumed:])
	c.buffer = remaining
}

// Len returns the buffered message count.
func (c *ChannelState) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// TryBegin attempts to acquire the busy flag. It returns false when a
// cycle is already in flight; the caller must drop the trigger, not queue
// it.
func (c *ChannelState) TryBegin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return false
	}
	c.busy = true
	return true
}

// End releases the busy flag. It must be reachable from every exit of a
// cycle, including failure and timeout paths.
func (c *ChannelState) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
}

// Busy reports whether a cycle is in flight.
func (c *ChannelState) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// CanvasID returns the cached canvas id, "" when unknown.
func (c *ChannelState) CanvasID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canvasID
}

// SetCanvasID caches the canvas id.
func (c *ChannelState) SetCanvasID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canvasID = id
}

// ClearCanvasID drops the cached canvas id, keeping buffer and bootstrap
// flag, so the next cycle re-creates the document.
func (c *ChannelState) ClearCanvasID() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canvasID = ""
}

// MarkBootstrapped sets the bootstrap flag. Returns false when it was
// already set, making the one-shot gate race-free.
func (c *ChannelState) MarkBootstrapped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bootstrapped {
		return false
	}
	c.bootstrapped = true
	return true
}

// Bootstrapped reports whether the one-time history import has run.
func (c *ChannelState) Bootstrapped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bootstrapped
}

// MarkFlushed records the completion timestamp of a cycle for the
// scheduler's elapsed-time calculation.
func (c *ChannelState) MarkFlushed(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastFlush = t
}

// LastFlush returns the completion time of the most recent cycle (or the
// creation time when none has run).
func (c *ChannelState) LastFlush() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFlush
}
