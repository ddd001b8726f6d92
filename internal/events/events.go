package events

import (
	"time"

	"github.com/danmuck/wearctl/internal/protocol/session"
	"github.com/danmuck/wearctl/internal/sensor"
	"github.com/danmuck/wearctl/internal/transfer"
)

// Event is a notification published by a device session.
type Event interface {
	DeviceID() string
	Time() time.Time
	Kind() string
	event()
}

// Meta carries the fields every event shares.
type Meta struct {
	Device string    `json:"device"`
	At     time.Time `json:"at"`
}

func NewMeta(device string, at time.Time) Meta {
	return Meta{Device: device, At: at}
}

func (m Meta) DeviceID() string { return m.Device }
func (m Meta) Time() time.Time  { return m.At }
func (Meta) event()             {}

// Emitter publishes events; a nil Emitter discards them.
type Emitter func(Event)

func (e Emitter) Emit(ev Event) {
	if e != nil {
		e(ev)
	}
}

type ConnectionChanged struct {
	Meta
	From session.State `json:"from"`
	To   session.State `json:"to"`
}

func (ConnectionChanged) Kind() string { return "connection" }

// HandshakeFailed is published when a session gives up waiting for the
// connected gate. Missing lists the unsatisfied requirements.
type HandshakeFailed struct {
	Meta
	Reason  string   `json:"reason"`
	Checks  int      `json:"checks"`
	Missing []string `json:"missing"`
}

func (HandshakeFailed) Kind() string { return "handshakeFailed" }

// FieldChanged reports a new value for a scalar device property such as the
// battery level, device name or wifi SSID.
type FieldChanged struct {
	Meta
	Protocol string `json:"protocol"`
	Field    string `json:"field"`
	Value    any    `json:"value"`
}

func (FieldChanged) Kind() string { return "field" }

type SensorConfigurationChanged struct {
	Meta
	Configuration sensor.Configuration `json:"configuration"`
}

func (SensorConfigurationChanged) Kind() string { return "sensorConfiguration" }

type SampleDecoded struct {
	Meta
	Sample sensor.Sample `json:"sample"`
}

func (SampleDecoded) Kind() string { return "sample" }

// PairPressure is a fused reading of two paired devices. Device is the pair
// name.
type PairPressure struct {
	Meta
	Left     string              `json:"left"`
	Right    string              `json:"right"`
	Pressure sensor.PairPressure `json:"pressure"`
}

func (PairPressure) Kind() string { return "pairPressure" }

type DecodeFailed struct {
	Meta
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (DecodeFailed) Kind() string { return "decodeFailed" }

type CameraProgress struct {
	Meta
	Part     transfer.PartKind `json:"part"`
	Progress float64           `json:"progress"`
}

func (CameraProgress) Kind() string { return "cameraProgress" }

// CameraImage carries a fully assembled capture.
type CameraImage struct {
	Meta
	Image []byte `json:"image"`
}

func (CameraImage) Kind() string { return "cameraImage" }

type FileProgress struct {
	Meta
	Direction string  `json:"direction"`
	Progress  float64 `json:"progress"`
}

func (FileProgress) Kind() string { return "fileProgress" }

type FileReceived struct {
	Meta
	FileType string `json:"fileType"`
	Data     []byte `json:"data"`
}

func (FileReceived) Kind() string { return "fileReceived" }

type TfliteInference struct {
	Meta
	Result []byte `json:"result"`
}

func (TfliteInference) Kind() string { return "tfliteInference" }

// FirmwareProgress reports an external firmware update. Err is set on
// failure and Done on success.
type FirmwareProgress struct {
	Meta
	Progress float64 `json:"progress"`
	Done     bool    `json:"done"`
	Err      string  `json:"error,omitempty"`
}

func (FirmwareProgress) Kind() string { return "firmware" }
