package sensor

import "fmt"

// Type identifies a sensor stream. The numeric value is the wire code used in
// sensor configuration, scalar, and sensor data payloads.
type Type uint8

const (
	Pressure Type = iota
	Acceleration
	Gravity
	LinearAcceleration
	Gyroscope
	Magnetometer
	GameRotation
	Rotation
	Orientation
	Activity
	StepCounter
	StepDetector
	DeviceOrientation
	TapDetector
	Barometer
	Camera

	typeCount
)

var typeNames = [typeCount]string{
	Pressure:           "pressure",
	Acceleration:       "acceleration",
	Gravity:            "gravity",
	LinearAcceleration: "linearAcceleration",
	Gyroscope:          "gyroscope",
	Magnetometer:       "magnetometer",
	GameRotation:       "gameRotation",
	Rotation:           "rotation",
	Orientation:        "orientation",
	Activity:           "activity",
	StepCounter:        "stepCounter",
	StepDetector:       "stepDetector",
	DeviceOrientation:  "deviceOrientation",
	TapDetector:        "tapDetector",
	Barometer:          "barometer",
	Camera:             "camera",
}

func (t Type) String() string {
	if t.Valid() {
		return typeNames[t]
	}
	return fmt.Sprintf("sensor(%d)", uint8(t))
}

func (t Type) Valid() bool { return t < typeCount }

// Continuous reports whether t produces a sample stream decoded by Decoder.
// Camera frames travel through the camera transfer instead.
func (t Type) Continuous() bool {
	return t.Valid() && t != Camera
}

// NeedsScalar reports whether decoding t multiplies raw values by a scalar.
func (t Type) NeedsScalar() bool {
	switch t {
	case Pressure, Acceleration, Gravity, LinearAcceleration, Gyroscope,
		Magnetometer, GameRotation, Rotation, Orientation, Barometer:
		return true
	}
	return false
}

// ParseType resolves a wire code.
func ParseType(code byte) (Type, bool) {
	t := Type(code)
	return t, t.Valid()
}

// ParseTypeName resolves a sensor type from its name.
func ParseTypeName(name string) (Type, bool) {
	for i, n := range typeNames {
		if n == name {
			return Type(i), true
		}
	}
	return 0, false
}

// Types returns every known sensor type in wire order.
func Types() []Type {
	out := make([]Type, 0, typeCount)
	for t := Type(0); t < typeCount; t++ {
		out = append(out, t)
	}
	return out
}
