package sensor

import "math"

// Range tracks the running minimum and maximum of a value stream.
// The zero value is an empty range.
type Range struct {
	Min  float64
	Max  float64
	seen bool
}

// NewRange returns an empty range.
func NewRange() Range {
	return Range{Min: math.Inf(1), Max: math.Inf(-1)}
}

func (r *Range) Reset() {
	*r = NewRange()
}

// Updated reports whether at least one value has been observed.
func (r Range) Updated() bool {
	return r.seen
}

func (r Range) Span() float64 {
	if !r.Updated() {
		return 0
	}
	return r.Max - r.Min
}

func (r *Range) Update(v float64) {
	if !r.seen {
		r.Min, r.Max, r.seen = v, v, true
		return
	}
	r.Min = min(r.Min, v)
	r.Max = max(r.Max, v)
}

// Normalize maps v into [0,1] against the observed range. It returns 0 until
// the range has a non-zero span.
func (r Range) Normalize(v float64) float64 {
	span := r.Span()
	if span == 0 {
		return 0
	}
	return (v - r.Min) / span
}

func (r *Range) UpdateAndNormalize(v float64) float64 {
	r.Update(v)
	return r.Normalize(v)
}

// Range2D tracks x and y independently.
type Range2D struct {
	X Range
	Y Range
}

func NewRange2D() Range2D {
	return Range2D{X: NewRange(), Y: NewRange()}
}

func (r *Range2D) Reset() {
	r.X.Reset()
	r.Y.Reset()
}

func (r *Range2D) Update(v Vector2) {
	r.X.Update(v.X)
	r.Y.Update(v.Y)
}

func (r Range2D) Normalize(v Vector2) Vector2 {
	return Vector2{X: r.X.Normalize(v.X), Y: r.Y.Normalize(v.Y)}
}

func (r *Range2D) UpdateAndNormalize(v Vector2) Vector2 {
	r.Update(v)
	return r.Normalize(v)
}
