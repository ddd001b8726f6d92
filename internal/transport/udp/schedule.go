package udp

import (
	"sync"
	"time"
)

// scheduler holds at most one pending reconnect. Scheduling again cancels
// the pending one, including a firing that has not been consumed yet.
type scheduler struct {
	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
	fire  chan struct{}
}

func newScheduler() *scheduler {
	return &scheduler{fire: make(chan struct{}, 1)}
}

func (s *scheduler) Schedule(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	gen := s.gen
	s.timer = time.AfterFunc(max(d, 0), func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen {
			return
		}
		s.timer = nil
		select {
		case s.fire <- struct{}{}:
		default:
		}
	})
}

// Cancel drops the pending reconnect and reports whether one existed.
func (s *scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *scheduler) stopLocked() bool {
	s.gen++
	pending := false
	if s.timer != nil {
		pending = s.timer.Stop()
		s.timer = nil
	}
	select {
	case <-s.fire:
		pending = true
	default:
	}
	return pending
}

func (s *scheduler) C() <-chan struct{} { return s.fire }
