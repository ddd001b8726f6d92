package device

import (
	"fmt"

	"github.com/danmuck/wearctl/internal/events"
	"github.com/danmuck/wearctl/internal/protocol/registry"
	"github.com/danmuck/wearctl/internal/sensor"
)

// TfliteTask is the kind of model loaded on the device.
type TfliteTask uint8

const (
	TfliteClassification TfliteTask = iota
	TfliteRegression
)

func (t TfliteTask) String() string {
	switch t {
	case TfliteClassification:
		return "classification"
	case TfliteRegression:
		return "regression"
	default:
		return fmt.Sprintf("task(%d)", uint8(t))
	}
}

// MaxTfliteNameLength bounds model names accepted by SetTfliteName.
const MaxTfliteNameLength = 30

type tfliteState struct {
	name         string
	task         *TfliteTask
	sampleRate   uint16
	sensorTypes  []sensor.Type
	ready        bool
	captureDelay uint16
	threshold    float32
	inferencing  bool
}

func (d *Device) handleTflite(t registry.MessageType, p []byte) error {
	s := &d.tflite
	switch t {
	case registry.GetTfliteName, registry.SetTfliteName:
		s.name = readString(p)
		d.changed("tflite", "name", s.name)
	case registry.GetTfliteTask, registry.SetTfliteTask:
		v, err := readU8(p)
		if err != nil {
			return err
		}
		task := TfliteTask(v)
		s.task = &task
		d.changed("tflite", "task", task.String())
	case registry.GetTfliteSampleRate, registry.SetTfliteSampleRate:
		v, err := readU16(p)
		if err != nil {
			return err
		}
		s.sampleRate = v
		d.changed("tflite", "sampleRate", v)
	case registry.GetTfliteSensorTypes, registry.SetTfliteSensorTypes:
		types := make([]sensor.Type, 0, len(p))
		for _, b := range p {
			st, ok := sensor.ParseType(b)
			if !ok {
				return fmt.Errorf("%w: sensor type=%d", ErrPayload, b)
			}
			types = append(types, st)
		}
		s.sensorTypes = types
		d.changed("tflite", "sensorTypes", len(types))
	case registry.IsTfliteReady:
		v, err := readBool(p)
		if err != nil {
			return err
		}
		s.ready = v
		d.changed("tflite", "ready", v)
	case registry.GetTfliteCaptureDelay, registry.SetTfliteCaptureDelay:
		v, err := readU16(p)
		if err != nil {
			return err
		}
		s.captureDelay = v
		d.changed("tflite", "captureDelay", v)
	case registry.GetTfliteThreshold, registry.SetTfliteThreshold:
		v, err := readF32(p)
		if err != nil {
			return err
		}
		s.threshold = v
		d.changed("tflite", "threshold", v)
	case registry.GetTfliteInferencingEnabled, registry.SetTfliteInferencingEnabled:
		v, err := readBool(p)
		if err != nil {
			return err
		}
		s.inferencing = v
		d.changed("tflite", "inferencingEnabled", v)
	case registry.TfliteInference:
		d.emit.Emit(events.TfliteInference{Meta: d.meta(), Result: append([]byte(nil), p...)})
	default:
		return ErrUnhandledType
	}
	return nil
}

func (d *Device) requireTflite() error {
	if err := d.requireConnected(); err != nil {
		return err
	}
	if !d.files.supports(FileTypeTflite) {
		return fmt.Errorf("%w: tflite", ErrUnsupported)
	}
	return nil
}

func (d *Device) SetTfliteName(name string) error {
	if err := d.requireTflite(); err != nil {
		return err
	}
	if name == "" || len(name) > MaxTfliteNameLength {
		return fmt.Errorf("%w: tflite name length=%d", ErrInvalidArg, len(name))
	}
	return d.send(registry.SetTfliteName, []byte(name))
}

func (d *Device) SetTfliteTask(task TfliteTask) error {
	if err := d.requireTflite(); err != nil {
		return err
	}
	return d.send(registry.SetTfliteTask, []byte{byte(task)})
}

func (d *Device) SetTfliteSampleRate(rate uint16) error {
	if err := d.requireTflite(); err != nil {
		return err
	}
	return d.send(registry.SetTfliteSampleRate, u16Bytes(rate))
}

func (d *Device) SetTfliteSensorTypes(types ...sensor.Type) error {
	if err := d.requireTflite(); err != nil {
		return err
	}
	payload := make([]byte, 0, len(types))
	for _, t := range types {
		if !t.Continuous() {
			return fmt.Errorf("%w: sensor %s", ErrInvalidArg, t)
		}
		payload = append(payload, byte(t))
	}
	return d.send(registry.SetTfliteSensorTypes, payload)
}

func (d *Device) SetTfliteCaptureDelay(ms uint16) error {
	if err := d.requireTflite(); err != nil {
		return err
	}
	return d.send(registry.SetTfliteCaptureDelay, u16Bytes(ms))
}

func (d *Device) SetTfliteThreshold(threshold float32) error {
	if err := d.requireTflite(); err != nil {
		return err
	}
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w: threshold=%v", ErrInvalidArg, threshold)
	}
	return d.send(registry.SetTfliteThreshold, f32Bytes(threshold))
}

func (d *Device) SetTfliteInferencingEnabled(enabled bool) error {
	if err := d.requireTflite(); err != nil {
		return err
	}
	return d.send(registry.SetTfliteInferencingEnabled, boolByte(enabled))
}
