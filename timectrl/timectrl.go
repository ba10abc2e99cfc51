package timectrl

import (
	"sync"
	"time"
)

// SimClock is read access to simulation time, so components can depend on a
// clock abstraction rather than the concrete controller.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still stepping by Tick.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

// TimeController drives two cadences from one goroutine: simulation ticks
// every Tick and presentation every Present. Listeners run synchronously on
// that goroutine, so ticks never overlap and a tick in progress always runs
// to completion.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Present   time.Duration
	Mode      Mode

	currentTime time.Time
	ticks       uint64
	sincePaint  time.Duration

	tickListeners    []func(time.Time)
	presentListeners []func(time.Time)

	running  bool
	stopping bool
	stop     chan struct{}
	done     chan struct{}
}

// NewTimeController constructs a stopped controller.
func NewTimeController(start time.Time, tick, present time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Present:     present,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime overrides the current simulation time.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// Ticks returns the number of simulation ticks fired so far.
func (tc *TimeController) Ticks() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.ticks
}

// Running reports whether the loop goroutine is active. It stays true after
// Stop until the tick in progress has finished.
func (tc *TimeController) Running() bool {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.running
}

// AddListener registers a callback invoked on every simulation tick.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.tickListeners = append(tc.tickListeners, fn)
}

// AddPresentListener registers a callback invoked on every presentation tick.
func (tc *TimeController) AddPresentListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.presentListeners = append(tc.presentListeners, fn)
}

// Start runs the controller for duration of simulation time (forever when
// duration is zero) in a separate goroutine. It returns a channel closed when
// the run ends. Starting a running controller returns the existing channel.
func (tc *TimeController) Start(duration time.Duration) <-chan struct{} {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.running {
		return tc.done
	}
	tc.running = true
	tc.stopping = false
	tc.stop = make(chan struct{})
	tc.done = make(chan struct{})

	go tc.run(duration, tc.stop, tc.done)
	return tc.done
}

// Stop ends the run after the tick in progress, if any. It does not wait and
// is a no-op on a stopped controller.
func (tc *TimeController) Stop() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if !tc.running || tc.stopping {
		return
	}
	tc.stopping = true
	close(tc.stop)
}

// Step fires one simulation tick, plus a presentation tick when the
// presentation interval has elapsed, on the caller's goroutine. It is meant
// for headless drivers and tests and must not be mixed with Start.
func (tc *TimeController) Step() time.Time {
	now := tc.advance()
	if tc.presentDue() {
		tc.present(now)
	}
	return now
}

func (tc *TimeController) run(duration time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer func() {
		tc.mu.Lock()
		tc.running = false
		tc.stopping = false
		tc.mu.Unlock()
		close(done)
	}()

	switch tc.Mode {
	case Accelerated:
		tc.runAccelerated(duration, stop)
	default:
		tc.runRealTime(duration, stop)
	}
}

func (tc *TimeController) runAccelerated(duration time.Duration, stop <-chan struct{}) {
	elapsed := time.Duration(0)
	for duration <= 0 || elapsed < duration {
		select {
		case <-stop:
			return
		default:
		}
		tc.Step()
		elapsed += tc.Tick
	}
}

func (tc *TimeController) runRealTime(duration time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(tc.Tick)
	defer ticker.Stop()

	var paint <-chan time.Time
	if tc.Present > 0 {
		presentTicker := time.NewTicker(tc.Present)
		defer presentTicker.Stop()
		paint = presentTicker.C
	}

	elapsed := time.Duration(0)
	for duration <= 0 || elapsed < duration {
		select {
		case <-stop:
			return
		case <-ticker.C:
			tc.advance()
			elapsed += tc.Tick
		case <-paint:
			tc.present(tc.Now())
		}
	}
}

func (tc *TimeController) advance() time.Time {
	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(tc.Tick)
	tc.ticks++
	tc.sincePaint += tc.Tick
	now := tc.currentTime
	listeners := tc.tickListeners
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(now)
	}
	return now
}

func (tc *TimeController) presentDue() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.Present <= 0 || tc.sincePaint < tc.Present {
		return false
	}
	tc.sincePaint -= tc.Present
	return true
}

func (tc *TimeController) present(now time.Time) {
	tc.mu.RLock()
	listeners := tc.presentListeners
	tc.mu.RUnlock()
	for _, fn := range listeners {
		fn(now)
	}
}
