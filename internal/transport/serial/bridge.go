// Package serial talks to a radio bridge over a UART. The bridge owns the
// wireless links and multiplexes up to 256 devices by slot number.
package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/danmuck/wearctl/internal/transport"
	"github.com/rs/zerolog/log"
	tarm "github.com/tarm/serial"
)

var ErrQueueFull = errors.New("serial: write queue full")

type Config struct {
	Device     string
	Baud       int
	WriteQueue int
}

func (c Config) withDefaults() Config {
	if c.Baud <= 0 {
		c.Baud = 115200
	}
	if c.WriteQueue <= 0 {
		c.WriteQueue = 256
	}
	return c
}

// Open opens the UART and returns a bridge on it.
func Open(cfg Config, handler transport.Handler) (*Bridge, error) {
	cfg = cfg.withDefaults()
	port, err := tarm.OpenPort(&tarm.Config{
		Name:     cfg.Device,
		Baud:     cfg.Baud,
		Size:     8,
		Parity:   tarm.ParityNone,
		StopBits: tarm.Stop1,
	})
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", cfg.Device, err)
	}
	log.Info().Msgf("serial.Open device=%s baud=%d", cfg.Device, cfg.Baud)
	return New(port, cfg, handler), nil
}

// Bridge maps bridge slots to device links.
type Bridge struct {
	port    io.ReadWriteCloser
	cfg     Config
	handler transport.Handler
	out     chan Frame
	parser  Parser

	mu    sync.Mutex
	slots map[byte]*slotLink
}

// New runs the bridge protocol over an already open port.
func New(port io.ReadWriteCloser, cfg Config, handler transport.Handler) *Bridge {
	cfg = cfg.withDefaults()
	return &Bridge{
		port:    port,
		cfg:     cfg,
		handler: handler,
		out:     make(chan Frame, cfg.WriteQueue),
		slots:   make(map[byte]*slotLink),
	}
}

// Run reads frames until ctx is done or the port fails. Every linked device
// is reported down on return.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = b.port.Close()
	}()
	go b.writeLoop(ctx)

	err := b.readLoop(ctx)
	b.dropSlots()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (b *Bridge) readLoop(ctx context.Context) error {
	buf := make([]byte, 512)
	for {
		n, err := b.port.Read(buf)
		for _, f := range b.parser.Feed(buf[:n]) {
			b.handle(f)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
}

func (b *Bridge) writeLoop(ctx context.Context) {
	var buf []byte
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-b.out:
			var err error
			if buf, err = AppendFrame(buf[:0], f); err == nil {
				_, err = b.port.Write(buf)
			}
			if err != nil {
				log.Warn().Msgf("serial.Bridge.writeLoop frame=%s err=%v", f.ID, err)
				if f.ID == SlotData && len(f.Payload) > 0 {
					if link := b.slot(f.Payload[0]); link != nil {
						b.handler.SendComplete(link.id, err)
					}
				}
			}
		}
	}
}

func (b *Bridge) handle(f Frame) {
	if len(f.Payload) == 0 {
		log.Debug().Msgf("serial.Bridge.handle frame=%s missing slot", f.ID)
		return
	}
	slot, body := f.Payload[0], f.Payload[1:]
	if f.ID == SlotUp {
		b.slotUp(slot, string(body))
		return
	}
	link := b.slot(slot)
	if link == nil {
		log.Debug().Msgf("serial.Bridge.handle frame=%s unknown slot=%d", f.ID, slot)
		return
	}
	switch f.ID {
	case SlotDown:
		b.mu.Lock()
		delete(b.slots, slot)
		b.mu.Unlock()
		link.closed.Store(true)
		b.handler.LinkDown(link.id, nil)
	case SlotData:
		b.handler.Received(link.id, body)
	case SlotSent:
		var err error
		if len(body) > 0 && body[0] != 0 {
			err = fmt.Errorf("serial: slot=%d send status=%d", slot, body[0])
		}
		b.handler.SendComplete(link.id, err)
	case SlotBattery:
		if len(body) == 1 {
			b.handler.BatteryLevel(link.id, body[0])
		}
	case SlotInfo:
		if len(body) < 1 || len(body) < 1+int(body[0]) {
			log.Debug().Msgf("serial.Bridge.handle slot=%d short info", slot)
			return
		}
		n := int(body[0])
		b.handler.Information(link.id, string(body[1:1+n]), string(body[1+n:]))
	default:
		log.Debug().Msgf("serial.Bridge.handle unexpected frame=%s", f.ID)
	}
}

func (b *Bridge) slotUp(slot byte, id string) {
	if id == "" {
		id = fmt.Sprintf("serial-%d", slot)
	}
	link := &slotLink{bridge: b, slot: slot, id: id}
	b.mu.Lock()
	old := b.slots[slot]
	b.slots[slot] = link
	b.mu.Unlock()
	if old != nil {
		old.closed.Store(true)
		b.handler.LinkDown(old.id, transport.ErrLinkClosed)
	}
	log.Debug().Msgf("serial.Bridge.slotUp slot=%d device=%s", slot, id)
	b.handler.LinkUp(id, link)
}

func (b *Bridge) slot(slot byte) *slotLink {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slots[slot]
}

func (b *Bridge) dropSlots() {
	b.mu.Lock()
	slots := b.slots
	b.slots = make(map[byte]*slotLink)
	b.mu.Unlock()
	for _, link := range slots {
		link.closed.Store(true)
		b.handler.LinkDown(link.id, transport.ErrLinkClosed)
	}
}

func (b *Bridge) enqueue(f Frame) error {
	select {
	case b.out <- f:
		return nil
	default:
		return ErrQueueFull
	}
}

type slotLink struct {
	bridge *Bridge
	slot   byte
	id     string
	closed atomic.Bool
}

func (l *slotLink) Send(data []byte) error {
	if l.closed.Load() {
		return transport.ErrLinkClosed
	}
	if len(data)+1 > MaxPayloadLength {
		return fmt.Errorf("%w: %d", ErrFrameTooLarge, len(data))
	}
	payload := append([]byte{l.slot}, data...)
	return l.bridge.enqueue(Frame{ID: SlotData, Payload: payload})
}

func (l *slotLink) Disconnect() error {
	if l.closed.Load() {
		return transport.ErrLinkClosed
	}
	return l.bridge.enqueue(Frame{ID: SlotDisconnect, Payload: []byte{l.slot}})
}
