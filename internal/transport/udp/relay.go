// Package udp connects to a relay that forwards device traffic over UDP,
// typically a phone or gateway that owns the radio links.
package udp

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/wearctl/internal/protocol/session"
	"github.com/danmuck/wearctl/internal/transport"
	"github.com/rs/zerolog/log"
)

var (
	ErrPingTimeout = errors.New("udp: relay ping timeout")
	ErrQueueFull   = errors.New("udp: send queue full")
)

const maxDatagram = 64 * 1024

type Config struct {
	Name string
	// Addr is the relay's host:port.
	Addr string
	// ListenAddr is the local address the relay sends to; the port is
	// announced with setRemoteReceivePort.
	ListenAddr   string
	PingInterval time.Duration
	PingTimeout  time.Duration
	Backoff      session.BackoffConfig
	SendQueue    int
}

func (c Config) withDefaults() Config {
	def := session.DefaultConfig()
	if c.Name == "" {
		c.Name = c.Addr
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":0"
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = def.PingTimeout
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
	return c
}

type outbound struct {
	frame Frame
	link  *deviceLink
}

// Relay is one relay connection and the device links it carries.
type Relay struct {
	cfg     Config
	handler transport.Handler
	backoff *session.Backoff
	sched   *scheduler
	out     chan outbound

	mu      sync.Mutex
	conn    *net.UDPConn
	devices map[string]*deviceLink
	alive   bool
}

func New(cfg Config, handler transport.Handler) *Relay {
	cfg = cfg.withDefaults()
	return &Relay{
		cfg:     cfg,
		handler: handler,
		backoff: session.NewBackoff(cfg.Backoff, rand.New(rand.NewSource(time.Now().UnixNano()))),
		sched:   newScheduler(),
		out:     make(chan outbound, cfg.SendQueue),
		devices: make(map[string]*deviceLink),
	}
}

func (r *Relay) Name() string { return r.cfg.Name }

// Alive reports whether the relay has answered a ping this connection.
func (r *Relay) Alive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alive
}

// Devices returns the ids of devices currently linked through the relay.
func (r *Relay) Devices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	return ids
}

// Reconnect drops the current connection, or replaces a pending backoff
// with an immediate attempt.
func (r *Relay) Reconnect() {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
		return
	}
	r.sched.Schedule(0)
}

// Run connects and keeps reconnecting with backoff until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	log.Info().Msgf("udp.Relay.Run relay=%s addr=%s", r.cfg.Name, r.cfg.Addr)
	for {
		err := r.connect(ctx)
		r.dropDevices(err)
		if ctx.Err() != nil {
			r.sched.Cancel()
			return nil
		}
		delay := r.backoff.Next()
		log.Warn().Msgf("udp.Relay.Run relay=%s attempt=%d retry_in=%s err=%v", r.cfg.Name, r.backoff.Attempt(), delay, err)
		r.sched.Schedule(delay)
		select {
		case <-ctx.Done():
			r.sched.Cancel()
			return nil
		case <-r.sched.C():
		}
	}
}

func (r *Relay) connect(ctx context.Context) error {
	remote, err := net.ResolveUDPAddr("udp", r.cfg.Addr)
	if err != nil {
		return fmt.Errorf("resolve relay: %w", err)
	}
	local, err := net.ResolveUDPAddr("udp", r.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("resolve listen: %w", err)
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return err
	}
	defer conn.Close()
	r.mu.Lock()
	r.conn = conn
	r.alive = false
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.conn = nil
		r.alive = false
		r.mu.Unlock()
	}()
	r.discardQueued()

	port := uint16(conn.LocalAddr().(*net.UDPAddr).Port)
	hello, _ := AppendFrame(nil, Frame{Type: SetRemoteReceivePort, Port: port})
	hello, _ = AppendFrame(hello, Frame{Type: Ping})
	if _, err := conn.WriteToUDP(hello, remote); err != nil {
		return err
	}
	log.Debug().Msgf("udp.Relay.connect relay=%s listen_port=%d", r.cfg.Name, port)

	inbound := make(chan []Frame, 64)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go r.readLoop(conn, remote, inbound, readErr, done)

	ticker := time.NewTicker(r.cfg.PingInterval)
	defer ticker.Stop()
	lastPong := time.Now()
	ping, _ := AppendFrame(nil, Frame{Type: Ping})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case frames := <-inbound:
			for _, f := range frames {
				if f.Type == Pong {
					lastPong = time.Now()
				}
				r.handle(conn, remote, f)
			}
		case ob := <-r.out:
			r.write(conn, remote, ob)
		case now := <-ticker.C:
			if now.Sub(lastPong) > r.cfg.PingTimeout {
				return ErrPingTimeout
			}
			if _, err := conn.WriteToUDP(ping, remote); err != nil {
				return err
			}
		}
	}
}

func (r *Relay) readLoop(conn *net.UDPConn, remote *net.UDPAddr, inbound chan<- []Frame, readErr chan<- error, done <-chan struct{}) {
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			readErr <- err
			return
		}
		if !from.IP.Equal(remote.IP) {
			log.Debug().Msgf("udp.Relay.readLoop relay=%s ignored datagram from=%s", r.cfg.Name, from)
			continue
		}
		frames, err := ParseFrames(buf[:n])
		if err != nil {
			log.Warn().Msgf("udp.Relay.readLoop relay=%s bytes=%d err=%v", r.cfg.Name, n, err)
		}
		if len(frames) == 0 {
			continue
		}
		select {
		case inbound <- frames:
		case <-done:
			return
		}
	}
}

func (r *Relay) handle(conn *net.UDPConn, remote *net.UDPAddr, f Frame) {
	switch f.Type {
	case Pong:
		r.mu.Lock()
		first := !r.alive
		r.alive = true
		r.mu.Unlock()
		if first {
			r.backoff.Reset()
			log.Info().Msgf("udp.Relay.handle relay=%s alive", r.cfg.Name)
		}
	case Ping:
		pong, _ := AppendFrame(nil, Frame{Type: Pong})
		_, _ = conn.WriteToUDP(pong, remote)
	case DeviceConnected:
		link := &deviceLink{relay: r, id: f.Device}
		r.mu.Lock()
		old := r.devices[f.Device]
		r.devices[f.Device] = link
		r.mu.Unlock()
		if old != nil {
			old.closed.Store(true)
			r.handler.LinkDown(f.Device, transport.ErrLinkClosed)
		}
		r.handler.LinkUp(f.Device, link)
	case DeviceDisconnected:
		if r.removeDevice(f.Device) {
			r.handler.LinkDown(f.Device, nil)
		}
	case DeviceMessage:
		if !r.known(f.Device) {
			log.Debug().Msgf("udp.Relay.handle relay=%s device=%s message before connect", r.cfg.Name, f.Device)
			return
		}
		r.handler.Received(f.Device, f.Data)
	case DeviceBattery:
		r.handler.BatteryLevel(f.Device, f.Data[0])
	case DeviceInformation:
		r.handler.Information(f.Device, f.Field, string(f.Data))
	default:
		log.Debug().Msgf("udp.Relay.handle relay=%s unexpected type=%s", r.cfg.Name, f.Type)
	}
}

func (r *Relay) write(conn *net.UDPConn, remote *net.UDPAddr, ob outbound) {
	data, err := AppendFrame(nil, ob.frame)
	if err == nil {
		_, err = conn.WriteToUDP(data, remote)
	}
	if err != nil {
		log.Warn().Msgf("udp.Relay.write relay=%s device=%s type=%s err=%v", r.cfg.Name, ob.frame.Device, ob.frame.Type, err)
	}
	if ob.frame.Type == DeviceMessage && !ob.link.closed.Load() {
		r.handler.SendComplete(ob.frame.Device, err)
	}
}

// discardQueued drops sends queued for a previous connection.
func (r *Relay) discardQueued() {
	for {
		select {
		case <-r.out:
		default:
			return
		}
	}
}

func (r *Relay) known(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.devices[id]
	return ok
}

func (r *Relay) removeDevice(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.devices[id]
	if ok {
		link.closed.Store(true)
		delete(r.devices, id)
	}
	return ok
}

func (r *Relay) dropDevices(cause error) {
	r.mu.Lock()
	links := r.devices
	r.devices = make(map[string]*deviceLink)
	r.mu.Unlock()
	if cause == nil || errors.Is(cause, context.Canceled) {
		cause = transport.ErrLinkClosed
	}
	for id, link := range links {
		link.closed.Store(true)
		r.handler.LinkDown(id, cause)
	}
}

func (r *Relay) enqueue(ob outbound) error {
	select {
	case r.out <- ob:
		return nil
	default:
		return ErrQueueFull
	}
}

type deviceLink struct {
	relay  *Relay
	id     string
	closed atomic.Bool
}

func (l *deviceLink) Send(data []byte) error {
	if l.closed.Load() {
		return transport.ErrLinkClosed
	}
	return l.relay.enqueue(outbound{
		frame: Frame{Type: DeviceMessage, Device: l.id, Data: append([]byte(nil), data...)},
		link:  l,
	})
}

func (l *deviceLink) Disconnect() error {
	if l.closed.Load() {
		return transport.ErrLinkClosed
	}
	return l.relay.enqueue(outbound{frame: Frame{Type: DisconnectDevice, Device: l.id}, link: l})
}
