package sensor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/danmuck/wearctl/internal/protocol/codec"
)

const dataHeaderSize = 2

// Decoder holds one device's sensor decode state: scalars, pressure layout
// and running pressure ranges. It is owned by a single device goroutine.
type Decoder struct {
	scalars  Scalars
	pressure PressureDecoder
}

func NewDecoder() *Decoder {
	return &Decoder{scalars: Scalars{}}
}

func (d *Decoder) SetScalars(s Scalars) {
	d.scalars = Scalars{}
	for t, v := range s {
		d.scalars[t] = v
	}
}

func (d *Decoder) Scalar(t Type) (float64, bool) {
	v, ok := d.scalars[t]
	return v, ok
}

func (d *Decoder) SetPressurePositions(positions []Vector2) {
	d.pressure.SetPositions(positions)
}

func (d *Decoder) PressurePositions() []Vector2 {
	return d.pressure.Positions()
}

// Reset forgets scalars, positions and ranges.
func (d *Decoder) Reset() {
	d.scalars = Scalars{}
	d.pressure.Reset()
}

// DecodeData parses a sensor data message: a u16 LE wire timestamp followed
// by nested [type:u8][len:u8][payload] frames. Samples that decode are
// returned even when others fail; failures are joined into the error.
func (d *Decoder) DecodeData(payload []byte, now time.Time) ([]Sample, error) {
	if len(payload) < dataHeaderSize {
		return nil, fmt.Errorf("%w: sensor data=%d", ErrPayloadLength, len(payload))
	}
	ts := ReconstructTimestamp(now, binary.LittleEndian.Uint16(payload))
	msgs, err := codec.Decode(payload, dataHeaderSize, codec.Length8)
	errs := []error{err}
	samples := make([]Sample, 0, len(msgs))
	for _, m := range msgs {
		t, ok := ParseType(m.Type)
		if !ok {
			errs = append(errs, decodeErr(t, ErrUnknownType))
			continue
		}
		s, err := d.Decode(t, m.Payload, ts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		samples = append(samples, s)
	}
	return samples, errors.Join(errs...)
}

// Decode converts one sensor payload into a sample stamped with ts.
func (d *Decoder) Decode(t Type, payload []byte, ts int64) (Sample, error) {
	h := header{Type: t, Time: ts}
	var scalar float64
	if t.NeedsScalar() {
		s, ok := d.scalars[t]
		if !ok {
			return nil, decodeErr(t, ErrMissingScalar)
		}
		scalar = s
	}
	switch t {
	case Acceleration, Gravity, LinearAcceleration, Gyroscope, Magnetometer:
		if err := wantLen(payload, 6); err != nil {
			return nil, decodeErr(t, err)
		}
		return VectorSample{header: h, Value: Vector3{
			X: fixed(payload, 0, scalar),
			Y: fixed(payload, 1, scalar),
			Z: fixed(payload, 2, scalar),
		}}, nil
	case GameRotation, Rotation:
		if err := wantLen(payload, 8); err != nil {
			return nil, decodeErr(t, err)
		}
		return QuaternionSample{header: h, Value: Quaternion{
			X: fixed(payload, 0, scalar),
			Y: fixed(payload, 1, scalar),
			Z: fixed(payload, 2, scalar),
			W: fixed(payload, 3, scalar),
		}}, nil
	case Orientation:
		r, err := DecodeRotation(t, payload, scalar)
		if err != nil {
			return nil, err
		}
		return RotationSample{header: h, Value: r}, nil
	case Pressure:
		frame, err := d.pressure.Decode(payload, scalar)
		if err != nil {
			return nil, decodeErr(t, err)
		}
		return PressureSample{header: h, Frame: frame}, nil
	case Activity:
		if err := wantLen(payload, 1); err != nil {
			return nil, decodeErr(t, err)
		}
		return ActivitySample{header: h, Activity: ActivityFlags(payload[0])}, nil
	case StepCounter:
		if err := wantLen(payload, 4); err != nil {
			return nil, decodeErr(t, err)
		}
		return StepCountSample{header: h, Steps: binary.LittleEndian.Uint32(payload)}, nil
	case StepDetector, TapDetector:
		return EventSample{header: h}, nil
	case DeviceOrientation:
		if err := wantLen(payload, 1); err != nil {
			return nil, decodeErr(t, err)
		}
		p := Posture(payload[0])
		if !p.Valid() {
			return nil, decodeErr(t, fmt.Errorf("%w: posture=%d", ErrInvalidValue, payload[0]))
		}
		return DeviceOrientationSample{header: h, Posture: p}, nil
	case Barometer:
		if err := wantLen(payload, 4); err != nil {
			return nil, decodeErr(t, err)
		}
		v := math.Float32frombits(binary.LittleEndian.Uint32(payload))
		return BarometerSample{header: h, Value: float64(v) * scalar}, nil
	case Camera:
		return nil, decodeErr(t, ErrNotSampled)
	default:
		return nil, decodeErr(t, ErrUnknownType)
	}
}

// DecodeRotation decodes three fixed-point axes and maps them onto pitch,
// yaw and roll. Only orientation has an axis convention: pitch=-y, yaw=-x,
// roll=z.
func DecodeRotation(t Type, payload []byte, scalar float64) (Rotation3, error) {
	if t != Orientation {
		return Rotation3{}, decodeErr(t, ErrNoAxisConvention)
	}
	if err := wantLen(payload, 6); err != nil {
		return Rotation3{}, decodeErr(t, err)
	}
	x := fixed(payload, 0, scalar)
	y := fixed(payload, 1, scalar)
	z := fixed(payload, 2, scalar)
	return Rotation3{Pitch: -y, Yaw: -x, Roll: z}, nil
}

func wantLen(payload []byte, n int) error {
	if len(payload) != n {
		return fmt.Errorf("%w: got=%d want=%d", ErrPayloadLength, len(payload), n)
	}
	return nil
}
