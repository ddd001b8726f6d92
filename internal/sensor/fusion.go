package sensor

// Side is the body side of a paired device.
type Side uint8

const (
	SideNone Side = iota
	SideLeft
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "none"
	}
}

// PairPressure is the fused reading of a left and a right device. Frame holds
// the combined cells with x remapped into the shared unit square.
type PairPressure struct {
	Left  PressureFrame `json:"left"`
	Right PressureFrame `json:"right"`
	Frame PressureFrame `json:"frame"`
}

// PairFusion combines pressure frames from two paired devices. A fused
// reading is produced once both sides have contributed, after which the
// accumulation starts over. It is not safe for concurrent use.
type PairFusion struct {
	left, right *PressureFrame
	sum         Range
	center      Range2D
}

func NewPairFusion() *PairFusion {
	return &PairFusion{sum: NewRange(), center: NewRange2D()}
}

// Add records frame for side. A side reporting twice before the other side
// replaces its earlier frame.
func (p *PairFusion) Add(side Side, frame PressureFrame) (PairPressure, bool) {
	switch side {
	case SideLeft:
		p.left = &frame
	case SideRight:
		p.right = &frame
	default:
		return PairPressure{}, false
	}
	if p.left == nil || p.right == nil {
		return PairPressure{}, false
	}
	out := PairPressure{Left: *p.left, Right: *p.right}
	sensors := make([]PressureSensor, 0, len(out.Left.Sensors)+len(out.Right.Sensors))
	sensors = appendRemapped(sensors, out.Left.Sensors, 0)
	sensors = appendRemapped(sensors, out.Right.Sensors, 0.5)
	out.Frame = buildFrame(sensors, &p.sum, &p.center)
	p.left, p.right = nil, nil
	return out, true
}

func appendRemapped(dst, src []PressureSensor, offset float64) []PressureSensor {
	for _, s := range src {
		s.Position.X = s.Position.X*0.5 + offset
		s.Weighted = 0
		dst = append(dst, s)
	}
	return dst
}

// Reset drops the pending accumulation and the running ranges.
func (p *PairFusion) Reset() {
	*p = *NewPairFusion()
}
