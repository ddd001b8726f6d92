package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/danmuck/wearctl/internal/device"
	"github.com/danmuck/wearctl/internal/observability"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionStopped = errors.New("engine: session stopped")
	ErrInboxFull      = errors.New("engine: session inbox full")
)

// Session serializes every operation on one device through a single
// goroutine. Inbound buffers are processed to completion before the next
// one is taken. Posting never blocks the caller: inbound buffers go through
// a bounded inbox and are dropped when it is full, while link and command
// callbacks queue without bound and run before any buffer posted after them.
type Session struct {
	dev   *device.Device
	inbox chan func(*device.Device)
	tick  time.Duration
	done  chan struct{}

	mu      sync.Mutex
	control []func(*device.Device)
	stopped bool
	wake    chan struct{}
}

func newSession(dev *device.Device, inbox int, tick time.Duration) *Session {
	return &Session{
		dev:   dev,
		inbox: make(chan func(*device.Device), inbox),
		tick:  tick,
		done:  make(chan struct{}),
		wake:  make(chan struct{}, 1),
	}
}

func (s *Session) ID() string { return s.dev.ID() }

// Run executes posted operations until ctx is done.
func (s *Session) Run(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.stopped = true
		s.control = nil
		s.mu.Unlock()
		close(s.done)
	}()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	log.Debug().Str("device", s.dev.ID()).Msg("engine.Session.Run start")
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("device", s.dev.ID()).Msg("engine.Session.Run stop")
			return
		case <-s.wake:
			s.runControl()
		case fn := <-s.inbox:
			s.runControl()
			fn(s.dev)
		case now := <-ticker.C:
			s.runControl()
			s.dev.Tick(now)
		}
	}
}

func (s *Session) runControl() {
	s.mu.Lock()
	pending := s.control
	s.control = nil
	s.mu.Unlock()
	for _, fn := range pending {
		fn(s.dev)
	}
}

// Post queues an inbound buffer handler. It returns ErrInboxFull, and counts
// the drop, when the device goroutine has fallen behind.
func (s *Session) Post(fn func(*device.Device)) error {
	select {
	case <-s.done:
		return ErrSessionStopped
	default:
	}
	select {
	case s.inbox <- fn:
		return nil
	default:
		observability.RecordDroppedInbound()
		return ErrInboxFull
	}
}

// Control queues fn ahead of any buffer posted later. It is never dropped
// while the session runs.
func (s *Session) Control(fn func(*device.Device)) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSessionStopped
	}
	s.control = append(s.control, fn)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Do runs fn on the device goroutine and waits for its result.
func (s *Session) Do(ctx context.Context, fn func(*device.Device) error) error {
	result := make(chan error, 1)
	if err := s.Control(func(d *device.Device) { result <- fn(d) }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-s.done:
		return ErrSessionStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the device state taken on its goroutine.
func (s *Session) Snapshot(ctx context.Context) (device.Snapshot, error) {
	var snap device.Snapshot
	err := s.Do(ctx, func(d *device.Device) error {
		snap = d.Snapshot()
		return nil
	})
	return snap, err
}
