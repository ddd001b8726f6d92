package device

import (
	"errors"
	"fmt"
	"maps"

	"github.com/danmuck/wearctl/internal/events"
	"github.com/danmuck/wearctl/internal/protocol/registry"
	"github.com/danmuck/wearctl/internal/sensor"
	"github.com/danmuck/wearctl/internal/transfer"
)

// CameraState is reported by the camera status message.
type CameraState uint8

const (
	CameraIdle CameraState = iota
	CameraFocusing
	CameraTakingPicture
	CameraAsleep
)

func (s CameraState) String() string {
	switch s {
	case CameraIdle:
		return "idle"
	case CameraFocusing:
		return "focusing"
	case CameraTakingPicture:
		return "takingPicture"
	case CameraAsleep:
		return "asleep"
	default:
		return fmt.Sprintf("camera(%d)", uint8(s))
	}
}

type CameraCommandKind uint8

const (
	CameraFocus CameraCommandKind = iota
	CameraTakePicture
	CameraStop
	CameraSleep
	CameraWake
)

var cameraCommandNames = map[string]CameraCommandKind{
	"focus":       CameraFocus,
	"takePicture": CameraTakePicture,
	"stop":        CameraStop,
	"sleep":       CameraSleep,
	"wake":        CameraWake,
}

func ParseCameraCommand(name string) (CameraCommandKind, bool) {
	c, ok := cameraCommandNames[name]
	return c, ok
}

// CameraSetting keys a camera configuration entry.
type CameraSetting uint8

const (
	CameraResolution CameraSetting = iota
	CameraQuality
	CameraShutter
	CameraGain
	CameraRedGain
	CameraGreenGain
	CameraBlueGain
)

// CameraConfiguration maps a setting to its value.
type CameraConfiguration map[CameraSetting]uint16

func (c CameraConfiguration) Encode() []byte {
	out := make([]byte, 0, len(c)*3)
	for s := CameraResolution; s <= CameraBlueGain; s++ {
		if v, ok := c[s]; ok {
			out = append(out, byte(s))
			out = append(out, u16Bytes(v)...)
		}
	}
	return out
}

type cameraState struct {
	status    *CameraState
	config    CameraConfiguration
	assembler transfer.ImageAssembler
}

func (c *cameraState) reset() {
	c.status = nil
	c.config = nil
	c.assembler.Reset()
}

func (d *Device) handleCamera(t registry.MessageType, p []byte) error {
	switch t {
	case registry.CameraStatus:
		v, err := readU8(p)
		if err != nil {
			return err
		}
		st := CameraState(v)
		d.camera.status = &st
		d.changed("camera", "status", st.String())
	case registry.CameraCommand:
	case registry.GetCameraConfiguration, registry.SetCameraConfiguration:
		entries, err := parseEntries(p)
		if err != nil {
			return err
		}
		cfg := make(CameraConfiguration, len(entries))
		for k, v := range entries {
			cfg[CameraSetting(k)] = v
		}
		d.camera.config = cfg
		d.changed("camera", "configuration", len(cfg))
	case registry.CameraData:
		return d.cameraData(p)
	default:
		return ErrUnhandledType
	}
	return nil
}

// cameraData feeds the capture assembler. Chunks decoded before a malformed
// one are still applied.
func (d *Device) cameraData(p []byte) error {
	chunks, perr := transfer.ParseCameraData(p)
	for _, c := range chunks {
		res, err := d.camera.assembler.Apply(c)
		if err != nil {
			if errors.Is(err, transfer.ErrIncomplete) {
				continue
			}
			d.decodeFailed("cameraData", err)
			continue
		}
		if !c.IsSize() {
			d.emit.Emit(events.CameraProgress{Meta: d.meta(), Part: res.Part, Progress: res.Progress})
		}
		if res.Assembled {
			d.log.Info().Msgf("device.Device.cameraData image bytes=%d", len(res.Image))
			d.emit.Emit(events.CameraImage{Meta: d.meta(), Image: res.Image})
		}
	}
	return perr
}

func (d *Device) requireCamera() error {
	if err := d.requireConnected(); err != nil {
		return err
	}
	if !d.sensors.config.Has(sensor.Camera) {
		return fmt.Errorf("%w: camera", ErrUnsupported)
	}
	return nil
}

func (d *Device) CameraCommand(cmd CameraCommandKind) error {
	if err := d.requireCamera(); err != nil {
		return err
	}
	if cmd > CameraWake {
		return fmt.Errorf("%w: camera command=%d", ErrInvalidArg, cmd)
	}
	return d.send(registry.CameraCommand, []byte{byte(cmd)})
}

func (d *Device) SetCameraConfiguration(cfg CameraConfiguration) error {
	if err := d.requireCamera(); err != nil {
		return err
	}
	if len(cfg) == 0 {
		return fmt.Errorf("%w: empty camera configuration", ErrInvalidArg)
	}
	return d.send(registry.SetCameraConfiguration, cfg.Encode())
}

func (d *Device) CameraConfiguration() CameraConfiguration {
	return maps.Clone(d.camera.config)
}

var cameraSettingNames = [...]string{
	CameraResolution: "resolution",
	CameraQuality:    "quality",
	CameraShutter:    "shutter",
	CameraGain:       "gain",
	CameraRedGain:    "redGain",
	CameraGreenGain:  "greenGain",
	CameraBlueGain:   "blueGain",
}

func (s CameraSetting) String() string {
	if int(s) < len(cameraSettingNames) {
		return cameraSettingNames[s]
	}
	return fmt.Sprintf("setting(%d)", uint8(s))
}

func ParseCameraSetting(name string) (CameraSetting, bool) {
	for i, n := range cameraSettingNames {
		if n == name {
			return CameraSetting(i), true
		}
	}
	return 0, false
}
