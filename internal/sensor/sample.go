package sensor

// Sample is one decoded sensor reading. The concrete types below are the
// only implementations.
type Sample interface {
	SensorType() Type
	// Timestamp is the reconstructed time in Unix milliseconds.
	Timestamp() int64
	sample()
}

type header struct {
	Type Type  `json:"type"`
	Time int64 `json:"timestamp"`
}

func (h header) SensorType() Type { return h.Type }
func (h header) Timestamp() int64 { return h.Time }
func (header) sample()            {}

type VectorSample struct {
	header
	Value Vector3 `json:"value"`
}

type QuaternionSample struct {
	header
	Value Quaternion `json:"value"`
}

type RotationSample struct {
	header
	Value Rotation3 `json:"value"`
}

type PressureSample struct {
	header
	Frame PressureFrame `json:"frame"`
}

type StepCountSample struct {
	header
	Steps uint32 `json:"steps"`
}

type ActivitySample struct {
	header
	Activity ActivityFlags `json:"activity"`
}

type DeviceOrientationSample struct {
	header
	Posture Posture `json:"posture"`
}

type BarometerSample struct {
	header
	Value float64 `json:"value"`
}

// EventSample marks a detection with no value (step or tap).
type EventSample struct {
	header
}
