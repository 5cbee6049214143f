package throughput

import "time"

// Clock abstracts wall-clock access so runs can be timed deterministically in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Timer measures the duration of one run.
type Timer struct {
	clock   Clock
	started time.Time
	stopped time.Time
	running bool
}

// NewTimer creates a stopped timer; a nil clock uses the system clock.
func NewTimer(clock Clock) *Timer {
	if clock == nil {
		clock = systemClock{}
	}
	return &Timer{clock: clock}
}

// Start (re)starts the measurement.
func (t *Timer) Start() {
	t.started = t.clock.Now()
	t.stopped = time.Time{}
	t.running = true
}

// Stop freezes the measurement. Stopping a stopped timer is a no-op.
func (t *Timer) Stop() {
	if !t.running {
		return
	}
	t.stopped = t.clock.Now()
	t.running = false
}

// Running reports whether Start was called without a matching Stop.
func (t *Timer) Running() bool {
	return t.running
}

// Elapsed returns the measured duration; while running it is measured up to now.
func (t *Timer) Elapsed() time.Duration {
	if t.started.IsZero() {
		return 0
	}
	end := t.stopped
	if t.running {
		end = t.clock.Now()
	}
	return end.Sub(t.started)
}

// ElapsedSeconds returns Elapsed as fractional seconds.
func (t *Timer) ElapsedSeconds() float64 {
	return t.Elapsed().Seconds()
}
