// Package scheduler decides when a channel's buffered messages should be
// flushed into a summarization cycle: a count threshold, a per-channel
// deferred timer for the time window, and a periodic staleness sweep.
package scheduler

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jibinmichael/paperforslack/internal/store"
	"github.com/jibinmichael/paperforslack/pkg/models"
)

// Reason identifies what triggered a flush.
type Reason string

const (
	ReasonCount  Reason = "count"
	ReasonWindow Reason = "window"
	ReasonStale  Reason = "stale"
	ReasonManual Reason = "manual"
)

// FlushFunc runs one synchronization cycle for a channel. It must be safe
// to call with a cycle already in flight (the busy flag drops the
// duplicate).
type FlushFunc func(key models.ChannelKey, reason Reason)

// Config holds the batching thresholds.
type Config struct {
	// MessageLimit triggers a flush when the buffer reaches this count.
	MessageLimit int
	// TimeWindow triggers a flush when this much time has passed since the
	// last flush and the buffer is non-empty.
	TimeWindow time.Duration
	// StaleAfter is the longer window the periodic sweep enforces, so a
	// channel with any buffered activity always makes forward progress.
	StaleAfter time.Duration
	// SweepInterval is how often the sweep runs.
	SweepInterval time.Duration
	// IdleEviction is how long an empty, flushed channel entry survives
	// before the sweep evicts it.
	IdleEviction time.Duration
}

// withDefaults fills unset fields with the deployment defaults.
func (c Config) withDefaults() Config {
	if c.MessageLimit <= 0 {
		c.MessageLimit = 10
	}
	if c.TimeWindow <= 0 {
		c.TimeWindow = 2 * time.Minute
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 15 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Minute
	}
	if c.IdleEviction <= 0 {
		c.IdleEviction = time.Hour
	}
	return c
}

// Scheduler owns the per-channel deferred timers and the sweep cron.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[models.ChannelKey]*time.Timer
	stopped bool

	cfg   Config
	store *store.Store
	flush FlushFunc
	cron  *cron.Cron
}

// New creates a Scheduler. flush is invoked from timer and cron goroutines
// as well as from OnAppend callers.
func New(st *store.Store, cfg Config, flush FlushFunc) *Scheduler {
	return &Scheduler{
		timers: make(map[models.ChannelKey]*time.Timer),
		cfg:    cfg.withDefaults(),
		store:  st,
		flush:  flush,
		cron:   cron.New(),
	}
}

// Start begins the periodic staleness sweep.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc("@every "+s.cfg.SweepInterval.String(), s.sweep)
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop cancels all deferred timers and halts the sweep.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
}

// OnAppend is invoked after every message append. It fires immediately
// when the count threshold is reached, otherwise arms the deferred
// time-window timer. A busy channel drops the trigger; the in-flight
// cycle's partial Reset preserves the new messages for the next one.
func (s *Scheduler) OnAppend(st *store.ChannelState) {
	if st.Busy() {
		return
	}
	if st.Len() >= s.cfg.MessageLimit {
		s.fire(st.Key(), ReasonCount)
		return
	}

	elapsed := time.Since(st.LastFlush())
	if elapsed >= s.cfg.TimeWindow {
		s.fire(st.Key(), ReasonWindow)
		return
	}
	s.arm(st.Key(), s.cfg.TimeWindow-elapsed)
}

// TriggerManual bypasses the thresholds for an explicit user command. The
// busy flag is still respected downstream: a concurrent cycle absorbs the
// request rather than queueing it.
func (s *Scheduler) TriggerManual(key models.ChannelKey) {
	s.fire(key, ReasonManual)
}

// arm schedules a deferred flush unless one is already pending. The timer
// is not reset on subsequent appends: the window is measured from the last
// flush, which bounds worst-case latency regardless of traffic pattern.
func (s *Scheduler) arm(key models.ChannelKey, delay time.Duration) {
	if delay <= 0 {
		delay = time.Millisecond
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if _, pending := s.timers[key]; pending {
		return
	}
	s.timers[key] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, key)
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return
		}
		if st, ok := s.store.Get(key); !ok || st.Len() == 0 {
			return
		}
		s.flush(key, ReasonWindow)
	})
}

// fire cancels any pending timer for the key and flushes now.
func (s *Scheduler) fire(key models.ChannelKey, reason Reason) {
	s.mu.Lock()
	if timer, ok := s.timers[key]; ok {
		timer.Stop()
		delete(s.timers, key)
	}
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}
	s.flush(key, reason)
}

// sweep force-flushes channels whose buffered activity has gone stale and
// evicts idle empty entries.
func (s *Scheduler) sweep() {
	now := time.Now()
	s.store.ForEach(func(st *store.ChannelState) {
		if st.Len() == 0 || st.Busy() {
			return
		}
		if now.Sub(st.LastFlush()) >= s.cfg.StaleAfter {
			s.fire(st.Key(), ReasonStale)
		}
	})
	s.store.Sweep(s.cfg.IdleEviction, now)
}
