package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/wearctl/internal/device"
	"github.com/danmuck/wearctl/internal/events"
	"github.com/danmuck/wearctl/internal/protocol/registry"
	"github.com/danmuck/wearctl/internal/protocol/session"
	"github.com/danmuck/wearctl/internal/sensor"
	"github.com/danmuck/wearctl/internal/testutil/testlog"
	"github.com/danmuck/wearctl/internal/transport"
)

type recordLink struct {
	mu   sync.Mutex
	sent [][]byte
}

func (l *recordLink) Send(b []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, append([]byte(nil), b...))
	return nil
}

func (l *recordLink) Disconnect() error { return nil }

func (l *recordLink) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sent)
}

func startManager(t *testing.T, cfg ManagerConfig) (*Manager, *events.Hub, <-chan events.Event) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := events.NewHub()
	go hub.Run(ctx)
	sub := hub.Subscribe()
	m := NewManager(cfg, nil, hub)
	m.attach(ctx)
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Errorf("manager did not stop")
		}
	})
	return m, hub, sub
}

func waitFor(t *testing.T, sub <-chan events.Event, match func(events.Event) bool) events.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				t.Fatalf("subscription closed")
			}
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for event")
		}
	}
}

func TestManagerCreatesSessionOnLinkUp(t *testing.T) {
	testlog.Start(t)
	m, _, sub := startManager(t, DefaultManagerConfig())
	link := &recordLink{}
	m.LinkUp("dev-a", link)

	waitFor(t, sub, func(ev events.Event) bool {
		cc, ok := ev.(events.ConnectionChanged)
		return ok && cc.Device == "dev-a" && cc.To == session.Connecting
	})
	if got := m.Devices(); len(got) != 1 || got[0] != "dev-a" {
		t.Fatalf("devices got=%v", got)
	}
	snap, err := m.Snapshot(context.Background(), "dev-a")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.State != session.Connecting.String() || len(snap.Missing) == 0 {
		t.Fatalf("unexpected snapshot got=%+v", snap)
	}
	if link.count() == 0 {
		t.Fatalf("expected initial requests on link")
	}
}

func TestManagerRoutesReceivedBuffers(t *testing.T) {
	testlog.Start(t)
	m, _, sub := startManager(t, DefaultManagerConfig())
	m.LinkUp("dev-b", &recordLink{})

	reg := registry.Default()
	buf, err := reg.Encode(registry.GetName, []byte("left shoe"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	m.Received("dev-b", buf)
	// the caller may reuse its buffer
	clear(buf)

	ev := waitFor(t, sub, func(ev events.Event) bool {
		fc, ok := ev.(events.FieldChanged)
		return ok && fc.Field == "name"
	})
	if got := ev.(events.FieldChanged).Value; got != "left shoe" {
		t.Fatalf("name got=%v", got)
	}
	var name string
	if err := m.Do(context.Background(), "dev-b", func(d *device.Device) error {
		name = d.Name()
		return nil
	}); err != nil || name != "left shoe" {
		t.Fatalf("do name=%q err=%v", name, err)
	}
}

func TestManagerUnknownDevice(t *testing.T) {
	testlog.Start(t)
	m, _, _ := startManager(t, DefaultManagerConfig())
	if _, err := m.Snapshot(context.Background(), "missing"); !errors.Is(err, transport.ErrUnknown) {
		t.Fatalf("expected ErrUnknown, got=%v", err)
	}
	err := m.Do(context.Background(), "missing", func(*device.Device) error { return nil })
	if !errors.Is(err, transport.ErrUnknown) {
		t.Fatalf("expected ErrUnknown, got=%v", err)
	}
}

func TestManagerNotRunningDropsLinkEvents(t *testing.T) {
	testlog.Start(t)
	m := NewManager(DefaultManagerConfig(), nil, nil)
	m.LinkUp("dev-c", &recordLink{})
	if got := m.Devices(); len(got) != 0 {
		t.Fatalf("no session expected before Run, got=%v", got)
	}
	if _, err := m.session("dev-c", true); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got=%v", err)
	}
}

type stubUpdater struct{ steps []float64 }

func (u stubUpdater) Update(_ context.Context, _ string, _ io.Reader, progress func(float64)) error {
	for _, s := range u.steps {
		progress(s)
	}
	return nil
}

func TestManagerUpdateFirmware(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultManagerConfig()
	cfg.Updater = stubUpdater{steps: []float64{0.5}}
	m, _, sub := startManager(t, cfg)
	m.LinkUp("dev-d", &recordLink{})
	if err := m.UpdateFirmware(context.Background(), "dev-d", strings.NewReader("img")); err != nil {
		t.Fatalf("update: %v", err)
	}
	ev := waitFor(t, sub, func(ev events.Event) bool {
		fp, ok := ev.(events.FirmwareProgress)
		return ok && fp.Done
	})
	if ev.DeviceID() != "dev-d" {
		t.Fatalf("firmware event device got=%s", ev.DeviceID())
	}
}

func frame(cells ...float64) sensor.PressureFrame {
	f := sensor.PressureFrame{}
	for i, v := range cells {
		f.Sensors = append(f.Sensors, sensor.PressureSensor{
			Position: sensor.Vector2{X: float64(i) / float64(len(cells)), Y: 0.5},
			Scaled:   v,
		})
		f.ScaledSum += v
	}
	return f
}

func TestPairFusesOnceBothSidesReport(t *testing.T) {
	testlog.Start(t)
	p := newPair(PairConfig{Name: "feet", Devices: [2]string{"l", "r"}})
	at := time.UnixMilli(1000)
	typeEvent := func(id string, dt device.Type) events.Event {
		return events.FieldChanged{Meta: events.NewMeta(id, at), Protocol: "information", Field: "type", Value: dt.String()}
	}
	sample := func(id string, f sensor.PressureFrame) events.Event {
		return events.SampleDecoded{Meta: events.NewMeta(id, at), Sample: sensor.PressureSample{Frame: f}}
	}

	// no side known yet
	if _, ok := p.observe(sample("l", frame(1, 1))); ok {
		t.Fatalf("fusion without sides must not emit")
	}
	p.observe(typeEvent("l", device.LeftInsole))
	p.observe(typeEvent("r", device.RightInsole))

	if _, ok := p.observe(sample("l", frame(2, 2))); ok {
		t.Fatalf("one side must not emit")
	}
	ev, ok := p.observe(sample("r", frame(1, 3)))
	if !ok {
		t.Fatalf("expected fused event")
	}
	pp := ev.(events.PairPressure)
	if pp.Device != "feet" || pp.Left != "l" || pp.Right != "r" {
		t.Fatalf("unexpected pair event got=%+v", pp)
	}
	if len(pp.Pressure.Frame.Sensors) != 4 {
		t.Fatalf("fused sensors got=%d", len(pp.Pressure.Frame.Sensors))
	}
	for i, s := range pp.Pressure.Frame.Sensors {
		left := i < 2
		if left && s.Position.X >= 0.5 || !left && s.Position.X < 0.5 {
			t.Fatalf("sensor %d x=%v on wrong half", i, s.Position.X)
		}
	}

	// a disconnect forgets the side
	p.observe(events.ConnectionChanged{Meta: events.NewMeta("r", at), From: session.Disconnecting, To: session.NotConnected})
	p.observe(sample("l", frame(1, 1)))
	if _, ok := p.observe(sample("r", frame(1, 1))); ok {
		t.Fatalf("side must be relearned after disconnect")
	}
}
