package timectrl

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

func TestTimeControllerSetTime(t *testing.T) {
	tc := NewTimeController(epoch, time.Second, 10*time.Second, RealTime)

	newNow := epoch.Add(42 * time.Second)
	tc.SetTime(newNow)

	if got := tc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
}

func TestTimeControllerStartUpdatesNow(t *testing.T) {
	tc := NewTimeController(epoch, 5*time.Millisecond, 10*time.Millisecond, Accelerated)

	done := tc.Start(15 * time.Millisecond)
	<-done

	expected := epoch.Add(15 * time.Millisecond)
	if got := tc.Now(); !got.Equal(expected) {
		t.Fatalf("Now() = %v, want %v", got, expected)
	}
	if tc.Running() {
		t.Fatalf("controller still running after completion")
	}
}

func TestAcceleratedPresentationCadence(t *testing.T) {
	tc := NewTimeController(epoch, 100*time.Millisecond, time.Second, Accelerated)
	var ticks, presents int
	tc.AddListener(func(time.Time) { ticks++ })
	tc.AddPresentListener(func(now time.Time) {
		presents++
		if now.Sub(epoch)%time.Second != 0 {
			t.Errorf("presentation at %v, not on a second boundary", now.Sub(epoch))
		}
	})

	<-tc.Start(5 * time.Second)

	if ticks != 50 {
		t.Fatalf("ticks = %d, want 50", ticks)
	}
	if presents != 5 {
		t.Fatalf("presents = %d, want 5", presents)
	}
	if tc.Ticks() != 50 {
		t.Fatalf("Ticks() = %d, want 50", tc.Ticks())
	}
}

func TestStartIsIdempotent(t *testing.T) {
	tc := NewTimeController(epoch, time.Millisecond, 10*time.Millisecond, RealTime)
	first := tc.Start(0)
	second := tc.Start(0)
	if first != second {
		t.Fatalf("second Start returned a different done channel")
	}
	tc.Stop()
	<-first
}

func TestStopIsIdempotentAndLetsTickFinish(t *testing.T) {
	tc := NewTimeController(epoch, time.Millisecond, 10*time.Millisecond, Accelerated)

	// Stopping a controller that never started is a no-op.
	tc.Stop()

	var (
		inTick   sync.WaitGroup
		finished atomic.Int32
		started  atomic.Int32
	)
	inTick.Add(1)
	release := make(chan struct{})
	tc.AddListener(func(time.Time) {
		if started.Add(1) == 1 {
			inTick.Done()
			<-release
		}
		finished.Add(1)
	})

	done := tc.Start(0)
	inTick.Wait()
	tc.Stop()
	tc.Stop()
	close(release)
	<-done

	if started.Load() != finished.Load() {
		t.Fatalf("a tick was interrupted: started %d, finished %d", started.Load(), finished.Load())
	}
	if tc.Running() {
		t.Fatalf("controller running after Stop")
	}
	ticksAfterStop := tc.Ticks()
	time.Sleep(5 * time.Millisecond)
	if tc.Ticks() != ticksAfterStop {
		t.Fatalf("ticks advanced after stop")
	}

	// A stopped controller can be started again.
	again := tc.Start(3 * time.Millisecond)
	<-again
	if tc.Ticks() != ticksAfterStop+3 {
		t.Fatalf("Ticks() = %d after restart, want %d", tc.Ticks(), ticksAfterStop+3)
	}
}

func TestRealTimeFiresBothCadences(t *testing.T) {
	tc := NewTimeController(epoch, 2*time.Millisecond, 10*time.Millisecond, RealTime)
	var ticks, presents atomic.Int32
	tc.AddListener(func(time.Time) { ticks.Add(1) })
	tc.AddPresentListener(func(time.Time) { presents.Add(1) })

	<-tc.Start(60 * time.Millisecond)

	if ticks.Load() != 30 {
		t.Fatalf("ticks = %d, want 30", ticks.Load())
	}
	if presents.Load() == 0 {
		t.Fatalf("no presentation ticks fired")
	}
}

func TestStepDrivesPresentation(t *testing.T) {
	tc := NewTimeController(epoch, 250*time.Millisecond, time.Second, RealTime)
	presents := 0
	tc.AddPresentListener(func(time.Time) { presents++ })
	for i := 0; i < 8; i++ {
		tc.Step()
	}
	if presents != 2 {
		t.Fatalf("presents = %d, want 2", presents)
	}
	if got := tc.Now(); !got.Equal(epoch.Add(2 * time.Second)) {
		t.Fatalf("Now() = %v", got)
	}
}
