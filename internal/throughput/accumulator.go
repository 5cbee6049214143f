package throughput

import (
	"math"
	"time"
)

// RunSummary is the outcome of one measured transfer.
type RunSummary struct {
	Mode       Mode
	Bits       uint64
	Elapsed    time.Duration
	Throughput uint64 // bits per second
	Operations uint64
}

// Bytes received during the run.
func (r RunSummary) Bytes() uint64 {
	return r.Bits / 8
}

// Throughput returns floor(bits / seconds), or 0 when no time has elapsed.
func Throughput(bits uint64, seconds float64) uint64 {
	if seconds <= 0 {
		return 0
	}
	return uint64(math.Floor(float64(bits) / seconds))
}

// Accumulator counts received data for the current run.
// Data is only counted while a run is in progress.
type Accumulator struct {
	timer      *Timer
	bits       uint64
	operations uint64
	throughput uint64
	lastResult uint32
}

// NewAccumulator creates an idle accumulator; a nil clock uses the system clock.
func NewAccumulator(clock Clock) *Accumulator {
	return &Accumulator{timer: NewTimer(clock)}
}

// Start clears the counters and starts timing.
func (a *Accumulator) Start() {
	a.bits = 0
	a.operations = 0
	a.throughput = 0
	a.timer.Start()
}

// Running reports whether a run is in progress.
func (a *Accumulator) Running() bool {
	return a.timer.Running()
}

// Add counts one received value of n bytes. Returns false when no run is active.
func (a *Accumulator) Add(n int) bool {
	if !a.timer.Running() {
		return false
	}
	a.bits += uint64(n) * 8
	a.operations++
	return true
}

// Bits received so far in the current run.
func (a *Accumulator) Bits() uint64 { return a.bits }

// Operations counted so far in the current run.
func (a *Accumulator) Operations() uint64 { return a.operations }

// Elapsed time of the current run.
func (a *Accumulator) Elapsed() time.Duration { return a.timer.Elapsed() }

// RecordResult stores the throughput the peer reported for the last run.
func (a *Accumulator) RecordResult(bps uint32) { a.lastResult = bps }

// LastResult is the throughput the peer reported for the last run.
func (a *Accumulator) LastResult() uint32 { return a.lastResult }

// Finish stops timing, computes the throughput and clears the counters.
func (a *Accumulator) Finish(mode Mode) RunSummary {
	a.timer.Stop()
	elapsed := a.timer.Elapsed()
	a.throughput = Throughput(a.bits, elapsed.Seconds())

	summary := RunSummary{
		Mode:       mode,
		Bits:       a.bits,
		Elapsed:    elapsed,
		Throughput: a.throughput,
		Operations: a.operations,
	}

	a.bits = 0
	a.operations = 0
	a.throughput = 0
	return summary
}

// Reset abandons any run in progress.
func (a *Accumulator) Reset() {
	a.timer.Stop()
	a.bits = 0
	a.operations = 0
	a.throughput = 0
	a.lastResult = 0
}
