package device

import (
	"errors"
	"time"

	"github.com/danmuck/wearctl/internal/events"
	"github.com/danmuck/wearctl/internal/observability"
	"github.com/danmuck/wearctl/internal/protocol/codec"
	"github.com/danmuck/wearctl/internal/protocol/registry"
	"github.com/danmuck/wearctl/internal/protocol/session"
	"github.com/danmuck/wearctl/internal/transport"
	"github.com/rs/zerolog"
)

// Options configures a Device. Zero fields take defaults.
type Options struct {
	Registry *registry.Registry
	Session  session.Config
	Clock    func() time.Time
	Emit     events.Emitter
}

// Device is the session state of one wearable. Identity survives reconnects;
// everything else is cleared when the link goes down. A Device is owned by a
// single goroutine and is not safe for concurrent use.
type Device struct {
	id    string
	reg   *registry.Registry
	cfg   session.Config
	clock func() time.Time
	emit  events.Emitter
	log   zerolog.Logger

	state    session.State
	link     transport.Link
	received map[byte]struct{}
	outbox   *session.Outbox
	hs       handshake

	battery   batteryState
	info      informationState
	sensors   sensorState
	vibration vibrationState
	files     fileState
	tflite    tfliteState
	wifi      wifiState
	camera    cameraState
}

func New(id string, opts Options) *Device {
	if opts.Registry == nil {
		opts.Registry = registry.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	d := &Device{
		id:       id,
		reg:      opts.Registry,
		cfg:      opts.Session.WithDefaults(),
		clock:    opts.Clock,
		emit:     opts.Emit,
		log:      observability.DeviceLogger(id),
		received: make(map[byte]struct{}),
	}
	d.outbox = session.NewOutbox(d.transmit)
	d.sensors.init()
	return d
}

func (d *Device) ID() string { return d.id }

func (d *Device) State() session.State { return d.state }

func (d *Device) Registry() *registry.Registry { return d.reg }

// MaxMessageSize is the negotiated outgoing batch limit; 0 means unlimited.
func (d *Device) MaxMessageSize() int { return d.outbox.MaxSize() }

// Received reports whether t has been received this session.
func (d *Device) Received(t registry.MessageType) bool {
	code, err := d.reg.Code(t)
	if err != nil {
		return false
	}
	_, ok := d.received[code]
	return ok
}

func (d *Device) transmit(data []byte) error {
	if d.link == nil {
		return transport.ErrLinkClosed
	}
	return d.link.Send(data)
}

// LinkUp starts the handshake on a newly established link.
func (d *Device) LinkUp(link transport.Link) {
	if d.state != session.NotConnected {
		d.log.Debug().Msgf("device.Device.LinkUp ignored state=%s", d.state)
		return
	}
	d.link = link
	d.transition(session.Connecting)
	d.hs.start(d.clock())
	if err := d.requestHandshake(d.requiredTypes()...); err != nil {
		d.log.Warn().Msgf("device.Device.LinkUp initial requests err=%v", err)
	}
}

// LinkDown tears the session down and clears all session state.
func (d *Device) LinkDown(cause error) {
	if d.state == session.NotConnected {
		return
	}
	if d.state == session.Connecting {
		observability.RecordHandshake(d.clock().Sub(d.hs.startedAt), false)
	}
	if cause != nil {
		d.log.Info().Msgf("device.Device.LinkDown err=%v", cause)
	}
	d.transition(session.Disconnecting)
	d.reset()
	d.transition(session.NotConnected)
}

// Disconnect asks the link to close. The session is torn down when the link
// reports down, or immediately when there is no link.
func (d *Device) Disconnect() error {
	switch d.state {
	case session.NotConnected, session.Disconnecting:
		return nil
	}
	d.transition(session.Disconnecting)
	if d.link == nil {
		d.reset()
		d.transition(session.NotConnected)
		return nil
	}
	return d.link.Disconnect()
}

// Receive processes one inbound buffer to completion.
func (d *Device) Receive(data []byte) {
	if d.state == session.NotConnected || d.state == session.Disconnecting {
		d.log.Debug().Msgf("device.Device.Receive dropped bytes=%d state=%s", len(data), d.state)
		return
	}
	msgs, err := codec.Decode(data, 0, codec.Length16)
	if err != nil {
		observability.RecordDecodeError("truncated")
		d.log.Warn().Msgf("device.Device.Receive kept=%d err=%v", len(msgs), err)
	}
	for _, m := range msgs {
		d.handleMessage(m)
		if d.state == session.NotConnected {
			return
		}
	}
	if d.state == session.Connecting {
		d.checkConnection()
	}
}

func (d *Device) handleMessage(m codec.Message) {
	t, err := d.reg.Type(m.Type)
	if err != nil {
		observability.RecordDecodeError("unknown_type")
		d.log.Debug().Msgf("device.Device.handleMessage dropped code=%d", m.Type)
		return
	}
	observability.RecordMessage("in", t.String())
	if err := d.dispatch(t, m.Payload); err != nil {
		d.decodeFailed(t.String(), err)
		return
	}
	d.received[m.Type] = struct{}{}
}

// dispatch routes a message to its sub-protocol.
func (d *Device) dispatch(t registry.MessageType, p []byte) error {
	proto, ok := d.reg.Protocol(t)
	if !ok {
		return ErrUnhandledType
	}
	switch proto {
	case registry.Battery.Name:
		return d.handleBattery(t, p)
	case registry.Information.Name:
		return d.handleInformation(t, p)
	case registry.SensorConfiguration.Name, registry.SensorDataProtocol.Name:
		return d.handleSensors(t, p)
	case registry.Vibration.Name:
		return d.handleVibration(t, p)
	case registry.FileTransfer.Name:
		return d.handleFiles(t, p)
	case registry.TfLite.Name:
		return d.handleTflite(t, p)
	case registry.WiFi.Name:
		return d.handleWifi(t, p)
	case registry.Camera.Name:
		return d.handleCamera(t, p)
	}
	return ErrUnhandledType
}

func (d *Device) decodeFailed(typeName string, err error) {
	observability.RecordDecodeError(typeName)
	d.log.Warn().Msgf("device.Device.decode type=%s err=%v", typeName, err)
	d.emit.Emit(events.DecodeFailed{Meta: d.meta(), Type: typeName, Error: err.Error()})
}

// SendComplete reports the end of the in-flight transmission.
func (d *Device) SendComplete(err error) {
	if ferr := d.outbox.Complete(err); ferr != nil {
		d.log.Warn().Msgf("device.Device.SendComplete flush err=%v", ferr)
	}
}

// Tick enforces the handshake timeout. It is called periodically by the
// owning session.
func (d *Device) Tick(now time.Time) {
	if d.state != session.Connecting {
		return
	}
	if d.cfg.HandshakeTimeout > 0 && now.Sub(d.hs.startedAt) >= d.cfg.HandshakeTimeout {
		d.failHandshake("timeout")
	}
}

func (d *Device) transition(to session.State) bool {
	from := d.state
	if from == to {
		return false
	}
	if !session.CanTransition(from, to) {
		d.log.Warn().Msgf("device.Device.transition rejected from=%s to=%s", from, to)
		return false
	}
	d.state = to
	d.log.Info().Msgf("device.Device.transition from=%s to=%s", from, to)
	d.emit.Emit(events.ConnectionChanged{Meta: d.meta(), From: from, To: to})
	return true
}

func (d *Device) reset() {
	clear(d.received)
	d.outbox.Reset()
	d.link = nil
	d.hs = handshake{}
	d.battery = batteryState{}
	d.info = informationState{}
	d.sensors.reset()
	d.vibration = vibrationState{}
	d.files = fileState{}
	d.tflite = tfliteState{}
	d.wifi = wifiState{}
	d.camera.reset()
}

func (d *Device) meta() events.Meta {
	return events.NewMeta(d.id, d.clock())
}

func (d *Device) changed(protocol, field string, value any) {
	d.emit.Emit(events.FieldChanged{Meta: d.meta(), Protocol: protocol, Field: field, Value: value})
}

// send queues one message and flushes.
func (d *Device) send(t registry.MessageType, payload []byte) error {
	return d.enqueue(true, t, payload)
}

func (d *Device) enqueue(flush bool, t registry.MessageType, payload []byte) error {
	m, err := d.reg.Message(t, payload)
	if err != nil {
		d.log.Error().Msgf("device.Device.send type=%s err=%v", t, err)
		return err
	}
	observability.RecordMessage("out", t.String())
	return d.outbox.Enqueue(flush, m)
}

// request queues empty-payload requests for types not already pending and
// flushes once.
func (d *Device) request(types ...registry.MessageType) error {
	var errs []error
	for _, t := range types {
		code, err := d.reg.Code(t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if d.outbox.Pending(code) {
			continue
		}
		if err := d.enqueue(false, t, nil); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, d.outbox.Flush())
	return errors.Join(errs...)
}

// requireConnected guards outgoing operations.
func (d *Device) requireConnected() error {
	if d.state != session.Connected {
		return ErrNotConnected
	}
	return nil
}
