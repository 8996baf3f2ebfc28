package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/jibinmichael/paperforslack/internal/store"
	"github.com/jibinmichael/paperforslack/pkg/models"
)

type flushRecorder struct {
	mu    sync.Mutex
	calls []Reason
}

func (r *flushRecorder) flush(_ models.ChannelKey, reason Reason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, reason)
}

func (r *flushRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *flushRecorder) last() Reason {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return ""
	}
	return r.calls[len(r.calls)-1]
}

func testKey() models.ChannelKey {
	return models.ChannelKey{TeamID: "T1", ChannelID: "C1"}
}

func appendN(st *store.ChannelState, n int) {
	for i := 0; i < n; i++ {
		st.Append(models.Message{UserID: "U1", Text: "hi", Timestamp: time.Now()})
	}
}

func TestCountThresholdFires(t *testing.T) {
	st := store.New(0)
	rec := &flushRecorder{}
	s := New(st, Config{MessageLimit: 3, TimeWindow: time.Hour}, rec.flush)

	ch := st.GetOrCreate(testKey())

	appendN(ch, 2)
	s.OnAppend(ch)
	if rec.count() != 0 {
		t.Fatalf("flush fired below the threshold: %d calls", rec.count())
	}

	appendN(ch, 1)
	s.OnAppend(ch)
	if rec.count() != 1 {
		t.Fatalf("flush calls = %d, want 1", rec.count())
	}
	if rec.last() != ReasonCount {
		t.Fatalf("reason = %q, want %q", rec.last(), ReasonCount)
	}
}

func TestTimeWindowFiresDeferred(t *testing.T) {
	st := store.New(0)
	rec := &flushRecorder{}
	s := New(st, Config{MessageLimit: 100, TimeWindow: 30 * time.Millisecond}, rec.flush)
	defer s.Stop()

	ch := st.GetOrCreate(testKey())
	appendN(ch, 1)
	s.OnAppend(ch)

	if rec.count() != 0 {
		t.Fatal("flush should be deferred, not immediate")
	}

	deadline := time.Now().Add(time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rec.count() != 1 {
		t.Fatalf("flush calls = %d, want 1", rec.count())
	}
	if rec.last() != ReasonWindow {
		t.Fatalf("reason = %q, want %q", rec.last(), ReasonWindow)
	}
}

func TestDeferredTimerIsNotRearmedPerAppend(t *testing.T) {
	st := store.New(0)
	rec := &flushRecorder{}
	s := New(st, Config{MessageLimit: 100, TimeWindow: 50 * time.Millisecond}, rec.flush)
	defer s.Stop()

	ch := st.GetOrCreate(testKey())
	for i := 0; i < 5; i++ {
		appendN(ch, 1)
		s.OnAppend(ch)
		time.Sleep(5 * time.Millisecond)
	}

	deadline := time.Now().Add(time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// A steady trickle must not push the deadline out indefinitely.
	if rec.count() != 1 {
		t.Fatalf("flush calls = %d, want exactly 1", rec.count())
	}
}

func TestBusyChannelDropsTrigger(t *testing.T) {
	st := store.New(0)
	rec := &flushRecorder{}
	s := New(st, Config{MessageLimit: 1, TimeWindow: time.Hour}, rec.flush)

	ch := st.GetOrCreate(testKey())
	ch.TryBegin()
	appendN(ch, 3)
	s.OnAppend(ch)

	if rec.count() != 0 {
		t.Fatalf("busy channel should drop the trigger, got %d calls", rec.count())
	}

	ch.End()
	s.OnAppend(ch)
	if rec.count() != 1 {
		t.Fatalf("flush calls after End = %d, want 1", rec.count())
	}
}

func TestTriggerManualBypassesThresholds(t *testing.T) {
	st := store.New(0)
	rec := &flushRecorder{}
	s := New(st, Config{MessageLimit: 100, TimeWindow: time.Hour}, rec.flush)

	ch := st.GetOrCreate(testKey())
	appendN(ch, 1)
	s.TriggerManual(testKey())

	if rec.count() != 1 {
		t.Fatalf("flush calls = %d, want 1", rec.count())
	}
	if rec.last() != ReasonManual {
		t.Fatalf("reason = %q, want %q", rec.last(), ReasonManual)
	}
}

func TestElapsedWindowFiresImmediately(t *testing.T) {
	st := store.New(0)
	rec := &flushRecorder{}
	s := New(st, Config{MessageLimit: 100, TimeWindow: 20 * time.Millisecond}, rec.flush)

	ch := st.GetOrCreate(testKey())
	ch.MarkFlushed(time.Now().Add(-time.Minute))
	appendN(ch, 1)
	s.OnAppend(ch)

	if rec.count() != 1 {
		t.Fatalf("flush calls = %d, want 1", rec.count())
	}
	if rec.last() != ReasonWindow {
		t.Fatalf("reason = %q, want %q", rec.last(), ReasonWindow)
	}
}

func TestStopCancelsPendingTimers(t *testing.T) {
	st := store.New(0)
	rec := &flushRecorder{}
	s := New(st, Config{MessageLimit: 100, TimeWindow: 30 * time.Millisecond}, rec.flush)

	ch := st.GetOrCreate(testKey())
	appendN(ch, 1)
	s.OnAppend(ch)
	s.Stop()

	time.Sleep(80 * time.Millisecond)
	if rec.count() != 0 {
		t.Fatalf("flush fired after Stop: %d calls", rec.count())
	}
}
