package sensor

import (
	"encoding/binary"
	"fmt"
)

// PressureSensor is one cell of a pressure frame.
type PressureSensor struct {
	Position   Vector2 `json:"position"`
	Raw        uint16  `json:"raw"`
	Scaled     float64 `json:"scaled"`
	Normalized float64 `json:"normalized"`
	// Weighted is Scaled/ScaledSum; zero when the frame sum is zero.
	Weighted float64 `json:"weighted"`
}

// PressureFrame is one decoded pressure reading across all cells.
type PressureFrame struct {
	Sensors       []PressureSensor `json:"sensors"`
	ScaledSum     float64          `json:"scaledSum"`
	NormalizedSum float64          `json:"normalizedSum"`
	// CenterOfPressure is nil when ScaledSum is zero.
	CenterOfPressure           *Vector2 `json:"centerOfPressure,omitempty"`
	NormalizedCenterOfPressure *Vector2 `json:"normalizedCenterOfPressure,omitempty"`
}

// PressureDecoder keeps the running ranges for one device's pressure stream.
type PressureDecoder struct {
	positions []Vector2
	cells     []Range
	sum       Range
	center    Range2D
}

// SetPositions installs the cell layout and drops all running ranges.
func (d *PressureDecoder) SetPositions(positions []Vector2) {
	d.positions = append([]Vector2(nil), positions...)
	d.cells = make([]Range, len(positions))
	d.sum = NewRange()
	d.center = NewRange2D()
}

func (d *PressureDecoder) Positions() []Vector2 {
	return append([]Vector2(nil), d.positions...)
}

func (d *PressureDecoder) Reset() {
	*d = PressureDecoder{}
}

// Decode turns N little-endian u16 raw values into a frame, where N is the
// number of known cell positions.
func (d *PressureDecoder) Decode(payload []byte, scalar float64) (PressureFrame, error) {
	n := len(d.positions)
	if n == 0 {
		return PressureFrame{}, ErrNoPositions
	}
	if len(payload) != 2*n {
		return PressureFrame{}, fmt.Errorf("%w: pressure payload=%d want=%d", ErrPayloadLength, len(payload), 2*n)
	}
	sensors := make([]PressureSensor, n)
	for i := range sensors {
		raw := binary.LittleEndian.Uint16(payload[2*i:])
		scaled := float64(raw) * scalar / float64(n)
		sensors[i] = PressureSensor{
			Position:   d.positions[i],
			Raw:        raw,
			Scaled:     scaled,
			Normalized: d.cells[i].UpdateAndNormalize(scaled),
		}
	}
	return buildFrame(sensors, &d.sum, &d.center), nil
}

// buildFrame fills sums, weights and the center of pressure, feeding the
// running sum and center ranges.
func buildFrame(sensors []PressureSensor, sum *Range, center *Range2D) PressureFrame {
	frame := PressureFrame{Sensors: sensors}
	for _, s := range sensors {
		frame.ScaledSum += s.Scaled
	}
	frame.NormalizedSum = sum.UpdateAndNormalize(frame.ScaledSum)
	cop, ok := CenterOfPressure(sensors, frame.ScaledSum)
	if !ok {
		return frame
	}
	norm := center.UpdateAndNormalize(cop)
	frame.CenterOfPressure = &cop
	frame.NormalizedCenterOfPressure = &norm
	return frame
}

// CenterOfPressure sets each sensor's weight and returns the weighted
// centroid. It reports false when sum is not positive.
func CenterOfPressure(sensors []PressureSensor, sum float64) (Vector2, bool) {
	if sum <= 0 {
		for i := range sensors {
			sensors[i].Weighted = 0
		}
		return Vector2{}, false
	}
	var cop Vector2
	for i := range sensors {
		sensors[i].Weighted = sensors[i].Scaled / sum
		cop = cop.Add(sensors[i].Position.Scale(sensors[i].Weighted))
	}
	return cop, true
}
