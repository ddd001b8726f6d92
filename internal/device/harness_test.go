package device

import (
	"testing"
	"time"

	"github.com/danmuck/wearctl/internal/events"
	"github.com/danmuck/wearctl/internal/protocol/codec"
	"github.com/danmuck/wearctl/internal/protocol/registry"
	"github.com/danmuck/wearctl/internal/protocol/session"
	"github.com/danmuck/wearctl/internal/sensor"
)

type fakeLink struct {
	sent         [][]byte
	disconnected int
}

func (l *fakeLink) Send(b []byte) error {
	l.sent = append(l.sent, append([]byte(nil), b...))
	return nil
}

func (l *fakeLink) Disconnect() error {
	l.disconnected++
	return nil
}

type harness struct {
	t      *testing.T
	d      *Device
	link   *fakeLink
	events []events.Event
	now    time.Time
	seen   int
}

func newHarness(t *testing.T, cfg session.Config) *harness {
	t.Helper()
	return newHarnessWithRegistry(t, cfg, nil)
}

func newHarnessWithRegistry(t *testing.T, cfg session.Config, reg *registry.Registry) *harness {
	t.Helper()
	h := &harness{t: t, link: &fakeLink{}, now: time.UnixMilli(1_700_000_000_000)}
	h.d = New("dev-1", Options{
		Registry: reg,
		Session:  cfg,
		Clock:    func() time.Time { return h.now },
		Emit:     func(ev events.Event) { h.events = append(h.events, ev) },
	})
	return h
}

func (h *harness) msg(t registry.MessageType, payload []byte) codec.Message {
	h.t.Helper()
	m, err := h.d.reg.Message(t, payload)
	if err != nil {
		h.t.Fatalf("message %s: %v", t, err)
	}
	return m
}

// batch delivers msgs as one inbound buffer.
func (h *harness) batch(msgs ...codec.Message) {
	h.t.Helper()
	var buf []byte
	for _, m := range msgs {
		var err error
		if buf, err = codec.AppendMessage(buf, m, codec.Length16); err != nil {
			h.t.Fatalf("append: %v", err)
		}
	}
	h.d.Receive(buf)
}

func (h *harness) reply(t registry.MessageType, payload []byte) {
	h.t.Helper()
	h.batch(h.msg(t, payload))
}

// drain completes every transmission and returns the message types sent
// since the last drain.
func (h *harness) drain() []registry.MessageType {
	h.t.Helper()
	for h.d.outbox.InFlight() {
		h.d.SendComplete(nil)
	}
	return h.sentTypes()
}

// sentTypes returns the message types sent since the last call without
// completing any transmission.
func (h *harness) sentTypes() []registry.MessageType {
	h.t.Helper()
	var out []registry.MessageType
	for _, buf := range h.link.sent[h.seen:] {
		msgs, err := codec.Decode(buf, 0, codec.Length16)
		if err != nil {
			h.t.Fatalf("decode sent: %v", err)
		}
		for _, m := range msgs {
			mt, err := h.d.reg.Type(m.Type)
			if err != nil {
				h.t.Fatalf("sent unknown code %d", m.Type)
			}
			out = append(out, mt)
		}
	}
	h.seen = len(h.link.sent)
	return out
}

// lastPayload returns the payload of the most recent sent message of type t.
func (h *harness) lastPayload(t registry.MessageType) []byte {
	h.t.Helper()
	code := h.d.reg.MustCode(t)
	var out []byte
	found := false
	for _, buf := range h.link.sent {
		msgs, _ := codec.Decode(buf, 0, codec.Length16)
		for _, m := range msgs {
			if m.Type == code {
				out, found = m.Payload, true
			}
		}
	}
	if !found {
		h.t.Fatalf("no %s sent", t)
	}
	return out
}

func contains(types []registry.MessageType, t registry.MessageType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

type profile struct {
	pressure  bool
	wifi      bool
	camera    bool
	fileTypes []FileType
}

type replyStep struct {
	t       registry.MessageType
	payload []byte
}

// replies lists the device answer to every handshake request for p.
func replies(p profile) []replyStep {
	cfg := sensor.Configuration{sensor.Acceleration: 10}
	if p.pressure {
		cfg[sensor.Pressure] = 20
	}
	if p.camera {
		cfg[sensor.Camera] = 0
	}
	fileTypes := make([]byte, 0, len(p.fileTypes))
	tflite := false
	for _, ft := range p.fileTypes {
		fileTypes = append(fileTypes, byte(ft))
		tflite = tflite || ft == FileTypeTflite
	}
	out := []replyStep{
		{registry.IsBatteryCharging, []byte{1}},
		{registry.GetBatteryCurrent, f32Bytes(12.5)},
		{registry.GetMtu, u16Bytes(23)},
		{registry.GetID, []byte("abc")},
		{registry.GetName, []byte("insole")},
		{registry.GetType, []byte{byte(LeftInsole)}},
		{registry.GetCurrentTime, u64Bytes(1_700_000_000_000)},
		{registry.GetSensorConfiguration, cfg.Encode()},
		{registry.GetSensorScalars, sensor.EncodeScalars(sensor.Scalars{sensor.Acceleration: 0.01, sensor.Pressure: 1})},
		{registry.GetVibrationLocations, []byte{byte(VibrationFront | VibrationRear)}},
		{registry.GetFileTypes, fileTypes},
		{registry.IsWifiAvailable, boolByte(p.wifi)},
	}
	if p.pressure {
		out = append(out, replyStep{registry.GetPressurePositions, []byte{0, 0, 128, 128}})
	}
	if p.wifi {
		out = append(out,
			replyStep{registry.GetWifiSSID, []byte("lab")},
			replyStep{registry.GetWifiPassword, []byte("pw")},
			replyStep{registry.GetWifiConnectionEnabled, []byte{1}},
			replyStep{registry.IsWifiConnected, []byte{0}},
			replyStep{registry.IPAddress, []byte("10.0.0.2")},
			replyStep{registry.IsWifiSecure, []byte{1}},
		)
	}
	if len(p.fileTypes) > 0 {
		out = append(out,
			replyStep{registry.MaxFileLength, u32Bytes(4096)},
			replyStep{registry.GetFileType, []byte{0}},
			replyStep{registry.GetFileLength, u32Bytes(0)},
			replyStep{registry.GetFileChecksum, u32Bytes(0)},
			replyStep{registry.FileTransferStatus, []byte{byte(FileStatusIdle)}},
		)
	}
	if tflite {
		out = append(out,
			replyStep{registry.GetTfliteName, []byte("gesture")},
			replyStep{registry.GetTfliteTask, []byte{byte(TfliteClassification)}},
			replyStep{registry.GetTfliteSampleRate, u16Bytes(50)},
			replyStep{registry.GetTfliteSensorTypes, []byte{byte(sensor.Acceleration), byte(sensor.Gyroscope)}},
			replyStep{registry.IsTfliteReady, []byte{1}},
			replyStep{registry.GetTfliteCaptureDelay, u16Bytes(0)},
			replyStep{registry.GetTfliteThreshold, f32Bytes(0.5)},
			replyStep{registry.GetTfliteInferencingEnabled, []byte{0}},
		)
	}
	if p.camera {
		out = append(out,
			replyStep{registry.CameraStatus, []byte{byte(CameraIdle)}},
			replyStep{registry.GetCameraConfiguration, []byte{byte(CameraQuality), 80, 0}},
		)
	}
	return out
}

// localInputs are the handshake inputs that arrive outside the message
// stream: the battery level and the required information fields.
func (h *harness) localInputs() []func() {
	steps := []func(){func() { h.d.SetBatteryLevel(80) }}
	for f := InfoField(0); f < infoFieldCount; f++ {
		if f.Required() {
			field := f
			steps = append(steps, func() { h.d.SetInformation(field, "v-"+field.String()) })
		}
	}
	return steps
}

// inputs returns every step that satisfies the connected gate for p.
func (h *harness) inputs(p profile) []func() {
	var steps []func()
	for _, r := range replies(p) {
		steps = append(steps, func() { h.reply(r.t, r.payload) })
	}
	return append(steps, h.localInputs()...)
}

// connect drives the handshake to completion for p.
func (h *harness) connect(p profile) {
	h.t.Helper()
	h.d.LinkUp(h.link)
	for _, step := range h.inputs(p) {
		step()
	}
	h.drain()
	if h.d.State() != session.Connected {
		h.t.Fatalf("expected connected, got=%s missing=%v", h.d.State(), h.d.Missing())
	}
}

func (h *harness) eventsOf(kind string) []events.Event {
	var out []events.Event
	for _, ev := range h.events {
		if ev.Kind() == kind {
			out = append(out, ev)
		}
	}
	return out
}
