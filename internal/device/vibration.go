package device

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/danmuck/wearctl/internal/protocol/codec"
	"github.com/danmuck/wearctl/internal/protocol/registry"
)

// VibrationLocation is a bitmask of motor positions.
type VibrationLocation uint8

const (
	VibrationFront VibrationLocation = 1 << iota
	VibrationRear
)

func (l VibrationLocation) String() string {
	var parts []string
	if l&VibrationFront != 0 {
		parts = append(parts, "front")
	}
	if l&VibrationRear != 0 {
		parts = append(parts, "rear")
	}
	return strings.Join(parts, "|")
}

// VibrationKind selects how segments are interpreted.
type VibrationKind uint8

const (
	VibrationWaveformEffect VibrationKind = iota
	VibrationWaveform
)

// Wire limits for vibration segments.
const (
	MaxWaveformEffects      = 8
	MaxWaveformEffect       = 123
	MaxWaveformEffectDelay  = 1270 * time.Millisecond
	MaxWaveformSegments     = 20
	MaxWaveformAmplitude    = 127
	MaxWaveformSegmentDelay = 2550 * time.Millisecond
	vibrationStep           = 10 * time.Millisecond
	effectDelayFlag         = 0x80
)

// WaveformEffect is either a built-in effect or a pause.
type WaveformEffect struct {
	Effect uint8
	Delay  time.Duration
}

// WaveformSegment drives the motor at Amplitude in [0,1] for Duration.
type WaveformSegment struct {
	Amplitude float64
	Duration  time.Duration
}

// Vibration is one trigger request.
type Vibration struct {
	Locations VibrationLocation
	Effects   []WaveformEffect
	Segments  []WaveformSegment
}

// Encode builds the trigger payload:
// [locations:u8] followed by a [kind:u8][len:u8][segments] frame.
func (v Vibration) Encode() ([]byte, error) {
	if v.Locations == 0 {
		return nil, fmt.Errorf("%w: no vibration location", ErrInvalidArg)
	}
	var (
		kind VibrationKind
		segs []byte
	)
	switch {
	case len(v.Effects) > 0 && len(v.Segments) > 0:
		return nil, fmt.Errorf("%w: effects and segments are exclusive", ErrInvalidArg)
	case len(v.Effects) > 0:
		if len(v.Effects) > MaxWaveformEffects {
			return nil, fmt.Errorf("%w: %d effects > %d", ErrInvalidArg, len(v.Effects), MaxWaveformEffects)
		}
		kind = VibrationWaveformEffect
		for _, e := range v.Effects {
			b, err := e.encode()
			if err != nil {
				return nil, err
			}
			segs = append(segs, b)
		}
	case len(v.Segments) > 0:
		if len(v.Segments) > MaxWaveformSegments {
			return nil, fmt.Errorf("%w: %d segments > %d", ErrInvalidArg, len(v.Segments), MaxWaveformSegments)
		}
		kind = VibrationWaveform
		for _, s := range v.Segments {
			segs = append(segs, s.encode()...)
		}
	default:
		return nil, fmt.Errorf("%w: empty vibration", ErrInvalidArg)
	}
	return codec.AppendMessage([]byte{byte(v.Locations)}, codec.Message{Type: byte(kind), Payload: segs}, codec.Length8)
}

func (e WaveformEffect) encode() (byte, error) {
	if e.Delay > 0 {
		d := min(e.Delay, MaxWaveformEffectDelay)
		return effectDelayFlag | byte(d/vibrationStep), nil
	}
	if e.Effect > MaxWaveformEffect {
		return 0, fmt.Errorf("%w: effect=%d > %d", ErrInvalidArg, e.Effect, MaxWaveformEffect)
	}
	return e.Effect, nil
}

func (s WaveformSegment) encode() []byte {
	amp := math.Round(min(max(s.Amplitude, 0), 1) * MaxWaveformAmplitude)
	dur := min(max(s.Duration, 0), MaxWaveformSegmentDelay)
	return []byte{byte(amp), byte(dur / vibrationStep)}
}

type vibrationState struct {
	locations *VibrationLocation
}

func (d *Device) handleVibration(t registry.MessageType, p []byte) error {
	switch t {
	case registry.GetVibrationLocations:
		v, err := readU8(p)
		if err != nil {
			return err
		}
		loc := VibrationLocation(v)
		d.vibration.locations = &loc
		d.changed("vibration", "locations", loc.String())
	case registry.TriggerVibration:
		// device echo; nothing to record
	default:
		return ErrUnhandledType
	}
	return nil
}

// Vibrate triggers motors the device has.
func (d *Device) Vibrate(v Vibration) error {
	if err := d.requireConnected(); err != nil {
		return err
	}
	if d.vibration.locations == nil || v.Locations&^*d.vibration.locations != 0 {
		return fmt.Errorf("%w: vibration locations %s", ErrUnsupported, v.Locations)
	}
	payload, err := v.Encode()
	if err != nil {
		return err
	}
	return d.send(registry.TriggerVibration, payload)
}
