package report

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/srg/blethroughput/internal/throughput"
)

// DefaultHistorySize is how many run summaries are kept for the exit summary.
const DefaultHistorySize = 16

// History keeps the most recent run summaries. Older runs are overwritten.
//
// All methods are thread-safe.
type History struct {
	mu          sync.Mutex
	limit       int
	buffer      mpmc.RichOverlappedRingBuffer[throughput.RunSummary]
	total       atomic.Uint64
	overwritten atomic.Uint64
}

// NewHistory creates a history holding the last limit runs.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &History{
		limit:  limit,
		// One slot of the ring is reserved, so leave headroom past limit
		buffer: mpmc.NewOverlappedRingBuffer[throughput.RunSummary](uint32(limit) * 2),
	}
}

// Add records a finished run.
func (h *History) Add(s throughput.RunSummary) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	overwrites, err := h.buffer.EnqueueM(s)
	if err != nil {
		return fmt.Errorf("unexpected buffer.Enqueue error: %w", err)
	}
	h.overwritten.Add(uint64(overwrites))
	h.total.Add(1)
	return nil
}

// Runs returns the kept runs, oldest first.
func (h *History) Runs() ([]throughput.RunSummary, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var runs []throughput.RunSummary
	for !h.buffer.IsEmpty() {
		rec, err := h.buffer.Dequeue()
		if err != nil {
			return nil, fmt.Errorf("buffer dequeue error: %w", err)
		}
		runs = append(runs, rec)
	}
	if len(runs) > h.limit {
		runs = runs[len(runs)-h.limit:]
	}

	// Dequeue is destructive, put the snapshot back
	for _, rec := range runs {
		if _, err := h.buffer.EnqueueM(rec); err != nil {
			return nil, fmt.Errorf("unexpected buffer.Enqueue error: %w", err)
		}
	}
	return runs, nil
}

// Total is the number of runs ever added.
func (h *History) Total() uint64 {
	return h.total.Load()
}

// Stats summarises runs.
type Stats struct {
	Runs    int
	Best    uint64
	Worst   uint64
	Average uint64
}

// Summarize computes throughput statistics over runs.
func Summarize(runs []throughput.RunSummary) Stats {
	if len(runs) == 0 {
		return Stats{}
	}
	st := Stats{Runs: len(runs), Worst: runs[0].Throughput}
	var sum uint64
	for _, r := range runs {
		sum += r.Throughput
		if r.Throughput > st.Best {
			st.Best = r.Throughput
		}
		if r.Throughput < st.Worst {
			st.Worst = r.Throughput
		}
	}
	st.Average = sum / uint64(len(runs))
	return st
}
