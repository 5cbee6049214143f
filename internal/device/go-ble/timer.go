package goble

import (
	"time"

	"github.com/srg/blethroughput/internal/device"
)

// TicksToDuration converts 32768 Hz timer ticks to a duration.
func TicksToDuration(ticks uint32) time.Duration {
	return time.Duration(ticks) * time.Second / device.TicksPerSecond
}

// ArmOneShotTimer fires a TimerEvent after ticks. Arming an id again replaces
// its pending timer; a reset cancels all of them.
func (s *Stack) ArmOneShotTimer(ticks uint32, id device.TimerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return device.ErrNotInitialized
	}
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}

	gen := s.generation
	var t *time.Timer
	t = time.AfterFunc(TicksToDuration(ticks), func() {
		s.mu.Lock()
		current := s.generation == gen && s.timers[id] == t
		if current {
			delete(s.timers, id)
		}
		s.mu.Unlock()
		if current {
			s.emit(device.TimerEvent{ID: id})
		}
	})
	s.timers[id] = t
	return nil
}
