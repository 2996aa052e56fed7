// Package report formats run output: the parameter summary, the step table,
// named timers and the optional SQLite step history.
package report

import (
	"sort"
	"sync"
	"time"
)

// Timer names used by a run.
const (
	TimerTotal          = "Total"
	TimerInitialization = "Initialization"
	TimerCalculation    = "Calculation"
	TimerOthers         = "Others"
)

// Timer accumulates wall time across Start/Stop pairs.
type Timer struct {
	started time.Time
	running bool
	elapsed time.Duration
	laps    int
}

// Start begins a lap. Starting a running timer is a no-op.
func (t *Timer) Start() {
	if t.running {
		return
	}
	t.started = time.Now()
	t.running = true
}

// Stop ends the current lap.
func (t *Timer) Stop() {
	if !t.running {
		return
	}
	t.elapsed += time.Since(t.started)
	t.running = false
	t.laps++
}

// Elapsed is the accumulated time, including a running lap.
func (t *Timer) Elapsed() time.Duration {
	if t.running {
		return t.elapsed + time.Since(t.started)
	}
	return t.elapsed
}

// Millis is Elapsed in milliseconds.
func (t *Timer) Millis() float64 {
	return float64(t.Elapsed()) / float64(time.Millisecond)
}

// Laps counts completed Start/Stop pairs.
func (t *Timer) Laps() int { return t.laps }

// Timers is a set of named timers.
type Timers struct {
	mu     sync.Mutex
	timers map[string]*Timer
	order  []string
}

// NewTimers creates the named timers in display order.
func NewTimers(names ...string) *Timers {
	ts := &Timers{timers: make(map[string]*Timer)}
	for _, n := range names {
		ts.Get(n)
	}
	return ts
}

// Get returns the named timer, creating it on first use.
func (ts *Timers) Get(name string) *Timer {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t, ok := ts.timers[name]
	if !ok {
		t = &Timer{}
		ts.timers[name] = t
		ts.order = append(ts.order, name)
	}
	return t
}

// Names lists timers in creation order.
func (ts *Timers) Names() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.order...)
}

// Sorted lists timers by decreasing elapsed time.
func (ts *Timers) Sorted() []string {
	names := ts.Names()
	sort.SliceStable(names, func(i, j int) bool {
		return ts.Get(names[i]).Elapsed() > ts.Get(names[j]).Elapsed()
	})
	return names
}
