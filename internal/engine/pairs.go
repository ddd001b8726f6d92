package engine

import (
	"sync"

	"github.com/danmuck/wearctl/internal/device"
	"github.com/danmuck/wearctl/internal/events"
	"github.com/danmuck/wearctl/internal/protocol/session"
	"github.com/danmuck/wearctl/internal/sensor"
	"github.com/rs/zerolog/log"
)

// PairConfig names two devices whose pressure frames are fused. Each
// device's side comes from the device type it reports.
type PairConfig struct {
	Name    string
	Devices [2]string
}

type pair struct {
	mu     sync.Mutex
	name   string
	sides  map[string]sensor.Side
	fusion *sensor.PairFusion
}

func newPair(cfg PairConfig) *pair {
	return &pair{
		name:   cfg.Name,
		sides:  map[string]sensor.Side{cfg.Devices[0]: sensor.SideNone, cfg.Devices[1]: sensor.SideNone},
		fusion: sensor.NewPairFusion(),
	}
}

func (p *pair) setSide(deviceID string, side sensor.Side) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sides[deviceID] == side {
		return
	}
	for other, s := range p.sides {
		if other != deviceID && s == side && side != sensor.SideNone {
			log.Warn().Msgf("engine.pair.setSide pair=%s devices=%s,%s both report side=%s", p.name, other, deviceID, side)
		}
	}
	p.sides[deviceID] = side
	p.fusion.Reset()
}

// add feeds one device's frame and returns the fused event when both sides
// have reported.
func (p *pair) add(ev events.SampleDecoded, frame sensor.PressureFrame) (events.PairPressure, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	side := p.sides[ev.Device]
	if side == sensor.SideNone {
		return events.PairPressure{}, false
	}
	fused, ok := p.fusion.Add(side, frame)
	if !ok {
		return events.PairPressure{}, false
	}
	out := events.PairPressure{Meta: events.NewMeta(p.name, ev.At), Pressure: fused}
	for id, s := range p.sides {
		switch s {
		case sensor.SideLeft:
			out.Left = id
		case sensor.SideRight:
			out.Right = id
		}
	}
	return out, true
}

// observe updates pair state from one device event. It runs on the
// publishing device's goroutine.
func (p *pair) observe(ev events.Event) (events.Event, bool) {
	switch e := ev.(type) {
	case events.FieldChanged:
		if e.Protocol == "information" && e.Field == "type" {
			if name, ok := e.Value.(string); ok {
				if dt, ok := device.ParseType(name); ok {
					p.setSide(e.Device, dt.Side())
				}
			}
		}
	case events.ConnectionChanged:
		if e.To == session.NotConnected {
			p.setSide(e.Device, sensor.SideNone)
		}
	case events.SampleDecoded:
		if ps, ok := e.Sample.(sensor.PressureSample); ok {
			return p.add(e, ps.Frame)
		}
	}
	return nil, false
}
