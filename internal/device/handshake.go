package device

import (
	"time"

	"github.com/danmuck/wearctl/internal/events"
	"github.com/danmuck/wearctl/internal/observability"
	"github.com/danmuck/wearctl/internal/protocol/registry"
	"github.com/danmuck/wearctl/internal/protocol/session"
	"github.com/danmuck/wearctl/internal/sensor"
)

type handshake struct {
	startedAt time.Time
	// checks counts gate checks that saw no new input since progress last
	// grew.
	checks    int
	progress  int
	requested map[byte]time.Time
	failed    bool
}

func (h *handshake) start(now time.Time) {
	*h = handshake{startedAt: now, requested: make(map[byte]time.Time)}
}

// RequiredTypes are requested on link up and must each be received before a
// session is connected.
var RequiredTypes = []registry.MessageType{
	registry.IsBatteryCharging,
	registry.GetBatteryCurrent,
	registry.GetMtu,
	registry.GetID,
	registry.GetName,
	registry.GetType,
	registry.GetCurrentTime,
	registry.GetSensorConfiguration,
	registry.GetSensorScalars,
	registry.GetVibrationLocations,
	registry.GetFileTypes,
	registry.IsWifiAvailable,
}

// Follow-up sets required only when the device advertises the capability.
var (
	PressureFollowUps = []registry.MessageType{registry.GetPressurePositions}
	WifiFollowUps     = []registry.MessageType{
		registry.GetWifiSSID,
		registry.GetWifiPassword,
		registry.GetWifiConnectionEnabled,
		registry.IsWifiConnected,
		registry.IPAddress,
		registry.IsWifiSecure,
	}
	FileFollowUps = []registry.MessageType{
		registry.MaxFileLength,
		registry.GetFileType,
		registry.GetFileLength,
		registry.GetFileChecksum,
		registry.FileTransferStatus,
	}
	TfliteFollowUps = []registry.MessageType{
		registry.GetTfliteName,
		registry.GetTfliteTask,
		registry.GetTfliteSampleRate,
		registry.GetTfliteSensorTypes,
		registry.IsTfliteReady,
		registry.GetTfliteCaptureDelay,
		registry.GetTfliteThreshold,
		registry.GetTfliteInferencingEnabled,
	}
	CameraFollowUps = []registry.MessageType{
		registry.CameraStatus,
		registry.GetCameraConfiguration,
	}
)

// requiredTypes filters RequiredTypes to those the registry knows.
func (d *Device) requiredTypes() []registry.MessageType {
	return d.registered(RequiredTypes)
}

func (d *Device) registered(types []registry.MessageType) []registry.MessageType {
	out := make([]registry.MessageType, 0, len(types))
	for _, t := range types {
		if d.reg.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// followUps returns the follow-up types for every advertised capability.
func (d *Device) followUps() []registry.MessageType {
	var out []registry.MessageType
	if d.sensors.config.Has(sensor.Pressure) {
		out = append(out, PressureFollowUps...)
	}
	if d.wifi.available {
		out = append(out, WifiFollowUps...)
	}
	if len(d.files.types) > 0 {
		out = append(out, FileFollowUps...)
	}
	if d.files.supports(FileTypeTflite) {
		out = append(out, TfliteFollowUps...)
	}
	if d.sensors.config.Has(sensor.Camera) {
		out = append(out, CameraFollowUps...)
	}
	return d.registered(out)
}

// gate lists what still blocks connecting -> connected, and the message
// types to request for it.
func (d *Device) gate() (missing []string, requests []registry.MessageType) {
	if d.info.currentTime == 0 {
		missing = append(missing, "currentTime")
	}
	if d.battery.level == nil {
		missing = append(missing, "batteryLevel")
	}
	for f := InfoField(0); f < infoFieldCount; f++ {
		if f.Required() && d.info.fields[f] == "" {
			missing = append(missing, "information."+f.String())
		}
	}
	for _, t := range append(d.requiredTypes(), d.followUps()...) {
		if !d.Received(t) {
			missing = append(missing, t.String())
			requests = append(requests, t)
		}
	}
	return missing, requests
}

// checkConnection runs after each inbound batch while connecting.
func (d *Device) checkConnection() {
	if d.state != session.Connecting || d.hs.failed {
		return
	}
	missing, requests := d.gate()
	if len(missing) == 0 {
		observability.RecordHandshake(d.clock().Sub(d.hs.startedAt), true)
		d.transition(session.Connected)
		return
	}
	if p := d.handshakeProgress(); p > d.hs.progress {
		d.hs.progress = p
	} else {
		d.hs.checks++
		if d.cfg.MaxHandshakeChecks > 0 && d.hs.checks >= d.cfg.MaxHandshakeChecks {
			d.failHandshake("max checks")
			return
		}
	}
	if d.Received(registry.GetCurrentTime) && d.info.currentTime == 0 {
		d.syncTime()
	}
	if len(requests) > 0 {
		d.log.Debug().Msgf("device.Device.checkConnection stalled=%d missing=%v", d.hs.checks, missing)
		if err := d.requestHandshake(requests...); err != nil {
			d.log.Warn().Msgf("device.Device.checkConnection request err=%v", err)
		}
	}
}

// handshakeProgress counts the handshake inputs seen this session. It only
// grows while connecting; repeated replies leave it unchanged.
func (d *Device) handshakeProgress() int {
	n := len(d.received)
	if d.info.currentTime != 0 {
		n++
	}
	if d.battery.level != nil {
		n++
	}
	for f := InfoField(0); f < infoFieldCount; f++ {
		if d.info.fields[f] != "" {
			n++
		}
	}
	return n
}

// requestHandshake requests types that are neither queued nor sent within
// the retry interval.
func (d *Device) requestHandshake(types ...registry.MessageType) error {
	if d.hs.requested == nil {
		d.hs.requested = make(map[byte]time.Time)
	}
	now := d.clock()
	due := make([]registry.MessageType, 0, len(types))
	for _, t := range types {
		code, err := d.reg.Code(t)
		if err != nil {
			continue
		}
		if at, ok := d.hs.requested[code]; ok && now.Sub(at) < d.cfg.RequestRetry {
			continue
		}
		if d.outbox.Pending(code) {
			continue
		}
		d.hs.requested[code] = now
		due = append(due, t)
	}
	if len(due) == 0 {
		return nil
	}
	return d.request(due...)
}

// syncTime sends the local clock when the device reports no time.
func (d *Device) syncTime() {
	code, err := d.reg.Code(registry.SetCurrentTime)
	if err != nil || d.outbox.Pending(code) {
		return
	}
	now := uint64(d.clock().UnixMilli())
	if err := d.send(registry.SetCurrentTime, u64Bytes(now)); err != nil {
		d.log.Warn().Msgf("device.Device.syncTime err=%v", err)
	}
}

func (d *Device) failHandshake(reason string) {
	if d.hs.failed {
		return
	}
	d.hs.failed = true
	missing, _ := d.gate()
	observability.RecordHandshake(d.clock().Sub(d.hs.startedAt), false)
	d.log.Warn().Msgf("device.Device.failHandshake reason=%s checks=%d missing=%v", reason, d.hs.checks, missing)
	d.emit.Emit(events.HandshakeFailed{Meta: d.meta(), Reason: reason, Checks: d.hs.checks, Missing: missing})
	if err := d.Disconnect(); err != nil {
		d.log.Warn().Msgf("device.Device.failHandshake disconnect err=%v", err)
	}
}

// Missing returns the unmet handshake requirements while connecting.
func (d *Device) Missing() []string {
	if d.state != session.Connecting {
		return nil
	}
	missing, _ := d.gate()
	return missing
}
