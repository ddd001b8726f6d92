package sensor

import (
	"encoding/binary"
	"fmt"
	"maps"
	"math"
	"slices"
)

const (
	configEntrySize = 3
	scalarEntrySize = 5
	positionScale   = 256
)

// Configuration maps a sensor type to its sample interval in milliseconds.
// Zero disables the sensor.
type Configuration map[Type]uint16

// ParseConfiguration decodes repeated [type:u8][value:u16 LE] entries.
// Unknown sensor codes are skipped.
func ParseConfiguration(payload []byte) (Configuration, error) {
	if len(payload)%configEntrySize != 0 {
		return nil, fmt.Errorf("%w: configuration=%d not a multiple of %d", ErrPayloadLength, len(payload), configEntrySize)
	}
	cfg := make(Configuration, len(payload)/configEntrySize)
	for i := 0; i < len(payload); i += configEntrySize {
		t, ok := ParseType(payload[i])
		if !ok {
			continue
		}
		cfg[t] = binary.LittleEndian.Uint16(payload[i+1:])
	}
	return cfg, nil
}

// Encode writes the configuration in ascending type order.
func (c Configuration) Encode() []byte {
	out := make([]byte, 0, len(c)*configEntrySize)
	for _, t := range slices.Sorted(maps.Keys(c)) {
		out = append(out, byte(t))
		out = binary.LittleEndian.AppendUint16(out, c[t])
	}
	return out
}

// Has reports whether the device exposes t at all.
func (c Configuration) Has(t Type) bool {
	_, ok := c[t]
	return ok
}

// Scalars maps a sensor type to its fixed-point multiplier.
type Scalars map[Type]float64

// ParseScalars decodes repeated [type:u8][scalar:f32 LE] entries.
func ParseScalars(payload []byte) (Scalars, error) {
	if len(payload)%scalarEntrySize != 0 {
		return nil, fmt.Errorf("%w: scalars=%d not a multiple of %d", ErrPayloadLength, len(payload), scalarEntrySize)
	}
	out := make(Scalars, len(payload)/scalarEntrySize)
	for i := 0; i < len(payload); i += scalarEntrySize {
		t, ok := ParseType(payload[i])
		if !ok {
			continue
		}
		out[t] = float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[i+1:])))
	}
	return out, nil
}

// EncodeScalars is the inverse of ParseScalars.
func EncodeScalars(s Scalars) []byte {
	out := make([]byte, 0, len(s)*scalarEntrySize)
	for _, t := range slices.Sorted(maps.Keys(s)) {
		out = append(out, byte(t))
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(float32(s[t])))
	}
	return out
}

// ParsePressurePositions decodes [x:u8][y:u8] pairs scaled into the unit
// square.
func ParsePressurePositions(payload []byte) ([]Vector2, error) {
	if len(payload)%2 != 0 {
		return nil, fmt.Errorf("%w: positions=%d odd", ErrPayloadLength, len(payload))
	}
	out := make([]Vector2, 0, len(payload)/2)
	for i := 0; i < len(payload); i += 2 {
		out = append(out, Vector2{
			X: float64(payload[i]) / positionScale,
			Y: float64(payload[i+1]) / positionScale,
		})
	}
	return out, nil
}

func fixed(b []byte, i int, scalar float64) float64 {
	return float64(int16(binary.LittleEndian.Uint16(b[2*i:]))) * scalar
}
