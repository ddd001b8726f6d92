package engine

import (
	"context"
	"errors"
	"io"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/danmuck/wearctl/internal/device"
	"github.com/danmuck/wearctl/internal/events"
	"github.com/danmuck/wearctl/internal/protocol/registry"
	"github.com/danmuck/wearctl/internal/protocol/session"
	"github.com/danmuck/wearctl/internal/transport"
	"github.com/rs/zerolog/log"
)

var ErrNotRunning = errors.New("engine: manager not running")

// ManagerConfig tunes per-device sessions.
type ManagerConfig struct {
	Session      session.Config
	TickInterval time.Duration
	InboxSize    int
	Pairs        []PairConfig
	Updater      device.FirmwareUpdater
}

func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Session:      session.DefaultConfig(),
		TickInterval: 250 * time.Millisecond,
		InboxSize:    64,
	}
}

// Manager owns one Session per device and implements transport.Handler.
// Sessions are created on first contact and live until the manager stops.
type Manager struct {
	cfg  ManagerConfig
	reg  *registry.Registry
	hub  *events.Hub
	emit events.Emitter

	mu       sync.Mutex
	ctx      context.Context
	stopped  bool
	wg       sync.WaitGroup
	sessions map[string]*Session
	pairs    map[string][]*pair
}

var _ transport.Handler = (*Manager)(nil)

func NewManager(cfg ManagerConfig, reg *registry.Registry, hub *events.Hub) *Manager {
	def := DefaultManagerConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = def.InboxSize
	}
	if reg == nil {
		reg = registry.Default()
	}
	m := &Manager{
		cfg:      cfg,
		reg:      reg,
		hub:      hub,
		sessions: make(map[string]*Session),
		pairs:    make(map[string][]*pair),
	}
	if hub != nil {
		m.emit = hub.Emitter()
	}
	for _, pc := range cfg.Pairs {
		p := newPair(pc)
		for _, id := range pc.Devices {
			m.pairs[id] = append(m.pairs[id], p)
		}
	}
	return m
}

// Run enables session creation and blocks until ctx is done and every
// session goroutine has returned.
func (m *Manager) Run(ctx context.Context) error {
	m.attach(ctx)
	log.Info().Msgf("engine.Manager.Run pairs=%d", len(m.cfg.Pairs))
	<-ctx.Done()
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	m.wg.Wait()
	m.mu.Lock()
	clear(m.sessions)
	m.mu.Unlock()
	log.Info().Msg("engine.Manager.Run stopped")
	return nil
}

// attach enables session creation under ctx.
func (m *Manager) attach(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		m.ctx = ctx
	}
}

// session returns the session for id, creating it when create is set.
func (m *Manager) session(id string, create bool) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	if !create {
		return nil, transport.ErrUnknown
	}
	if m.ctx == nil || m.stopped {
		return nil, ErrNotRunning
	}
	dev := device.New(id, device.Options{
		Registry: m.reg,
		Session:  m.cfg.Session,
		Emit:     m.deviceEmitter(id),
	})
	s := newSession(dev, m.cfg.InboxSize, m.cfg.TickInterval)
	m.sessions[id] = s
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		s.Run(m.ctx)
	}()
	log.Debug().Str("device", id).Msg("engine.Manager.session created")
	return s, nil
}

// deviceEmitter publishes a device's events and feeds its pairs.
func (m *Manager) deviceEmitter(id string) events.Emitter {
	pairs := m.pairs[id]
	return func(ev events.Event) {
		m.emit.Emit(ev)
		for _, p := range pairs {
			if fused, ok := p.observe(ev); ok {
				m.emit.Emit(fused)
			}
		}
	}
}

func (m *Manager) post(id string, fn func(*device.Device)) {
	m.deliver(id, "post", (*Session).Control, fn)
}

// postBuffer hands an inbound buffer to the device; it is dropped when the
// device inbox is full.
func (m *Manager) postBuffer(id string, fn func(*device.Device)) {
	m.deliver(id, "postBuffer", (*Session).Post, fn)
}

func (m *Manager) deliver(id, op string, queue func(*Session, func(*device.Device)) error, fn func(*device.Device)) {
	s, err := m.session(id, true)
	if err != nil {
		log.Warn().Str("device", id).Msgf("engine.Manager.%s dropped err=%v", op, err)
		return
	}
	if err := queue(s, fn); err != nil {
		log.Debug().Str("device", id).Msgf("engine.Manager.%s dropped err=%v", op, err)
	}
}

func (m *Manager) LinkUp(id string, link transport.Link) {
	m.post(id, func(d *device.Device) { d.LinkUp(link) })
}

func (m *Manager) LinkDown(id string, err error) {
	m.post(id, func(d *device.Device) { d.LinkDown(err) })
}

func (m *Manager) Received(id string, data []byte) {
	buf := slices.Clone(data)
	m.postBuffer(id, func(d *device.Device) { d.Receive(buf) })
}

func (m *Manager) SendComplete(id string, err error) {
	m.post(id, func(d *device.Device) { d.SendComplete(err) })
}

func (m *Manager) BatteryLevel(id string, level uint8) {
	m.post(id, func(d *device.Device) { d.SetBatteryLevel(level) })
}

func (m *Manager) Information(id string, field, value string) {
	f, ok := device.ParseInfoField(field)
	if !ok {
		log.Debug().Str("device", id).Msgf("engine.Manager.Information unknown field=%s", field)
		return
	}
	m.post(id, func(d *device.Device) { d.SetInformation(f, value) })
}

// Devices lists known device ids in sorted order.
func (m *Manager) Devices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.sessions))
}

func (m *Manager) Snapshot(ctx context.Context, id string) (device.Snapshot, error) {
	s, err := m.session(id, false)
	if err != nil {
		return device.Snapshot{}, err
	}
	return s.Snapshot(ctx)
}

// Do runs fn on the device goroutine of a known device.
func (m *Manager) Do(ctx context.Context, id string, fn func(*device.Device) error) error {
	s, err := m.session(id, false)
	if err != nil {
		return err
	}
	return s.Do(ctx, fn)
}

// UpdateFirmware runs the configured updater for a known device. It blocks
// the caller, not the device goroutine.
func (m *Manager) UpdateFirmware(ctx context.Context, id string, image io.Reader) error {
	if _, err := m.session(id, false); err != nil {
		return err
	}
	return device.UpdateFirmware(ctx, id, m.cfg.Updater, image, m.emit)
}
