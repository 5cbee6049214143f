package throughput

import (
	"testing"
	"time"

	"github.com/srg/blethroughput/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThroughputIsFloored(t *testing.T) {
	tests := []struct {
		name    string
		bits    uint64
		seconds float64
		want    uint64
	}{
		{"exact", 80000, 1, 80000},
		{"fraction dropped", 10, 3, 3},
		{"sub second", 1000, 0.5, 2000},
		{"zero bits", 0, 5, 0},
		{"zero elapsed", 1000, 0, 0},
		{"negative elapsed", 1000, -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Throughput(tt.bits, tt.seconds))
		})
	}
}

func TestAccumulatorCountsOnlyWhileRunning(t *testing.T) {
	acc := NewAccumulator(testutils.NewFakeClock())

	assert.False(t, acc.Add(100), "no run MUST mean nothing is counted")
	assert.Zero(t, acc.Bits())

	acc.Start()
	require.True(t, acc.Add(100))
	require.True(t, acc.Add(28))
	assert.Equal(t, uint64(1024), acc.Bits())
	assert.Equal(t, uint64(2), acc.Operations())
}

func TestAccumulatorFinishResetsCounters(t *testing.T) {
	clock := testutils.NewFakeClock()
	acc := NewAccumulator(clock)

	acc.Start()
	acc.Add(250)
	acc.Add(250)
	clock.Advance(1500 * time.Millisecond)

	summary := acc.Finish(ModeFree)
	assert.Equal(t, RunSummary{Mode: ModeFree, Bits: 4000, Elapsed: 1500 * time.Millisecond, Throughput: 2666, Operations: 2}, summary)
	assert.Equal(t, uint64(500), summary.Bytes())

	assert.False(t, acc.Running())
	assert.Zero(t, acc.Bits())
	assert.Zero(t, acc.Operations())
	assert.False(t, acc.Add(10))
}

func TestAccumulatorStartClearsPreviousRun(t *testing.T) {
	clock := testutils.NewFakeClock()
	acc := NewAccumulator(clock)

	acc.Start()
	acc.Add(10)
	acc.Start()

	assert.Zero(t, acc.Bits())
	assert.Zero(t, acc.Operations())
	assert.True(t, acc.Running())
}

func TestAccumulatorReset(t *testing.T) {
	acc := NewAccumulator(testutils.NewFakeClock())
	acc.Start()
	acc.Add(10)
	acc.RecordResult(42)

	acc.Reset()

	assert.False(t, acc.Running())
	assert.Zero(t, acc.Bits())
	assert.Zero(t, acc.LastResult())
}

func TestTimer(t *testing.T) {
	clock := testutils.NewFakeClock()
	timer := NewTimer(clock)

	assert.Zero(t, timer.Elapsed(), "unstarted timer MUST report zero")
	timer.Stop()
	assert.False(t, timer.Running())

	timer.Start()
	clock.Advance(2 * time.Second)
	assert.True(t, timer.Running())
	assert.Equal(t, 2*time.Second, timer.Elapsed(), "running timer MUST measure up to now")

	timer.Stop()
	clock.Advance(time.Hour)
	assert.Equal(t, 2.0, timer.ElapsedSeconds(), "stopped timer MUST be frozen")

	timer.Stop()
	assert.Equal(t, 2*time.Second, timer.Elapsed(), "second stop MUST be a no-op")
}
