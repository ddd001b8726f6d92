package sensor

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/danmuck/wearctl/internal/protocol/codec"
	"github.com/danmuck/wearctl/internal/testutil/testlog"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func le16(vals ...int16) []byte {
	var out []byte
	for _, v := range vals {
		out = binary.LittleEndian.AppendUint16(out, uint16(v))
	}
	return out
}

func TestReconstructTimestampRollover(t *testing.T) {
	testlog.Start(t)
	base := int64(27_000) * TimestampWrap
	first := time.UnixMilli(base + 60_000)
	second := first.Add(5 * time.Second)

	t1 := ReconstructTimestamp(first, 60_000)
	t2 := ReconstructTimestamp(second, 500)
	if t1 != first.UnixMilli() {
		t.Fatalf("first sample got=%d want=%d", t1, first.UnixMilli())
	}
	// counter advanced 65536-60000+500 ms across the wrap
	if got := t2 - t1; got != 6036 {
		t.Fatalf("rollover delta got=%d want=6036", got)
	}
}

func TestReconstructTimestampLateCounter(t *testing.T) {
	testlog.Start(t)
	now := time.UnixMilli(int64(9)*TimestampWrap + 100)
	got := ReconstructTimestamp(now, 65_000)
	if want := int64(8)*TimestampWrap + 65_000; got != want {
		t.Fatalf("late counter got=%d want=%d", got, want)
	}
	if got := ReconstructTimestamp(now, 50); got != now.UnixMilli()-50 {
		t.Fatalf("in-window counter got=%d", got)
	}
}

func TestRangeNormalize(t *testing.T) {
	testlog.Start(t)
	var r Range
	if r.Updated() || r.Normalize(5) != 0 {
		t.Fatalf("empty range must normalize to 0")
	}
	if got := r.UpdateAndNormalize(0); got != 0 {
		t.Fatalf("zero span got=%v", got)
	}
	r.Update(10)
	if got := r.Normalize(5); !near(got, 0.5) {
		t.Fatalf("normalize got=%v", got)
	}
	if r.Min != 0 || r.Max != 10 || r.Span() != 10 {
		t.Fatalf("range bounds got=%+v", r)
	}
	r.Reset()
	if r.Updated() || !math.IsInf(r.Min, 1) || !math.IsInf(r.Max, -1) {
		t.Fatalf("reset range got=%+v", r)
	}
}

func TestCenterOfPressure(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder()
	d.SetScalars(Scalars{Pressure: 3})
	d.SetPressurePositions([]Vector2{{0, 0}, {1, 0}, {0, 1}})

	s, err := d.Decode(Pressure, le16(1, 1, 2), 0)
	if err != nil {
		t.Fatalf("decode pressure: %v", err)
	}
	frame := s.(PressureSample).Frame
	if !near(frame.ScaledSum, 4) {
		t.Fatalf("scaledSum got=%v", frame.ScaledSum)
	}
	want := []float64{0.25, 0.25, 0.5}
	for i, w := range want {
		if !near(frame.Sensors[i].Weighted, w) {
			t.Fatalf("weight[%d] got=%v want=%v", i, frame.Sensors[i].Weighted, w)
		}
	}
	if frame.CenterOfPressure == nil {
		t.Fatalf("center of pressure missing")
	}
	if cop := *frame.CenterOfPressure; !near(cop.X, 0.25) || !near(cop.Y, 0.5) {
		t.Fatalf("center of pressure got=%+v", cop)
	}
}

func TestPressureFrameAllZero(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder()
	d.SetScalars(Scalars{Pressure: 1})
	d.SetPressurePositions([]Vector2{{0, 0}, {0.5, 0.5}})

	s, err := d.Decode(Pressure, le16(0, 0), 0)
	if err != nil {
		t.Fatalf("decode pressure: %v", err)
	}
	frame := s.(PressureSample).Frame
	if frame.ScaledSum != 0 {
		t.Fatalf("scaledSum got=%v", frame.ScaledSum)
	}
	if frame.CenterOfPressure != nil || frame.NormalizedCenterOfPressure != nil {
		t.Fatalf("center of pressure must be undefined, got=%+v", frame.CenterOfPressure)
	}
}

func TestPressureNormalizationTracksRange(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder()
	d.SetScalars(Scalars{Pressure: 1})
	d.SetPressurePositions([]Vector2{{0, 0}})

	for _, raw := range []int16{10, 30} {
		if _, err := d.Decode(Pressure, le16(raw), 0); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	s, _ := d.Decode(Pressure, le16(20), 0)
	frame := s.(PressureSample).Frame
	if !near(frame.Sensors[0].Normalized, 0.5) || !near(frame.NormalizedSum, 0.5) {
		t.Fatalf("normalized got=%v sum=%v", frame.Sensors[0].Normalized, frame.NormalizedSum)
	}
}

func TestPressureErrors(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder()
	d.SetScalars(Scalars{Pressure: 1})
	if _, err := d.Decode(Pressure, le16(1), 0); !errors.Is(err, ErrNoPositions) {
		t.Fatalf("expected ErrNoPositions, got %v", err)
	}
	d.SetPressurePositions([]Vector2{{0, 0}, {1, 1}})
	_, err := d.Decode(Pressure, le16(1), 0)
	var de *DecodeError
	if !errors.As(err, &de) || de.Type != Pressure || !errors.Is(err, ErrPayloadLength) {
		t.Fatalf("expected pressure length DecodeError, got %v", err)
	}
}

func TestPairFusionRemapsAndWaitsForBothSides(t *testing.T) {
	testlog.Start(t)
	p := NewPairFusion()
	left := PressureFrame{Sensors: []PressureSensor{{Position: Vector2{X: 1, Y: 0.5}, Scaled: 1}}, ScaledSum: 1}
	right := PressureFrame{Sensors: []PressureSensor{{Position: Vector2{X: 0, Y: 0.5}, Scaled: 3}}, ScaledSum: 3}

	if _, ok := p.Add(SideLeft, left); ok {
		t.Fatalf("fusion must wait for the right side")
	}
	if _, ok := p.Add(SideLeft, left); ok {
		t.Fatalf("repeated left frame must not emit")
	}
	fused, ok := p.Add(SideRight, right)
	if !ok {
		t.Fatalf("fusion should emit once both sides reported")
	}
	if fused.Frame.Sensors[0].Position.X != 0.5 || fused.Frame.Sensors[1].Position.X != 0.5 {
		t.Fatalf("remap got left=%v right=%v", fused.Frame.Sensors[0].Position, fused.Frame.Sensors[1].Position)
	}
	if !near(fused.Frame.ScaledSum, 4) || fused.Frame.CenterOfPressure == nil {
		t.Fatalf("combined frame got=%+v", fused.Frame)
	}
	if cop := *fused.Frame.CenterOfPressure; !near(cop.X, 0.5) || !near(cop.Y, 0.5) {
		t.Fatalf("combined center got=%+v", cop)
	}
	if left.Sensors[0].Position.X != 1 {
		t.Fatalf("input frame must not be modified")
	}
	if _, ok := p.Add(SideRight, right); ok {
		t.Fatalf("accumulation must restart after emitting")
	}
}

func TestDecodeDispatch(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder()
	d.SetScalars(Scalars{Acceleration: 0.5, Rotation: 1, Orientation: 2, Barometer: 10})

	s, err := d.Decode(Acceleration, le16(2, -4, 6), 7)
	if err != nil {
		t.Fatalf("vector: %v", err)
	}
	if v := s.(VectorSample); v.Value != (Vector3{1, -2, 3}) || v.Timestamp() != 7 || v.SensorType() != Acceleration {
		t.Fatalf("vector got=%+v", v)
	}

	s, err = d.Decode(Rotation, le16(1, 2, 3, 4), 0)
	if err != nil || s.(QuaternionSample).Value != (Quaternion{1, 2, 3, 4}) {
		t.Fatalf("quaternion got=%+v err=%v", s, err)
	}

	s, err = d.Decode(Orientation, le16(1, 2, 3), 0)
	if err != nil || s.(RotationSample).Value != (Rotation3{Pitch: -4, Yaw: -2, Roll: 6}) {
		t.Fatalf("rotation got=%+v err=%v", s, err)
	}

	baro := binary.LittleEndian.AppendUint32(nil, math.Float32bits(1.5))
	s, err = d.Decode(Barometer, baro, 0)
	if err != nil || s.(BarometerSample).Value != 15 {
		t.Fatalf("barometer got=%+v err=%v", s, err)
	}

	s, err = d.Decode(StepCounter, binary.LittleEndian.AppendUint32(nil, 42), 0)
	if err != nil || s.(StepCountSample).Steps != 42 {
		t.Fatalf("steps got=%+v err=%v", s, err)
	}

	s, err = d.Decode(Activity, []byte{byte(ActivityWalking | ActivityTilting)}, 0)
	if err != nil || !s.(ActivitySample).Activity.Has(ActivityWalking) {
		t.Fatalf("activity got=%+v err=%v", s, err)
	}

	if _, err := d.Decode(TapDetector, nil, 0); err != nil {
		t.Fatalf("tap event: %v", err)
	}
	if _, err := d.Decode(DeviceOrientation, []byte{9}, 0); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
	if _, err := d.Decode(Gyroscope, le16(1, 2, 3), 0); !errors.Is(err, ErrMissingScalar) {
		t.Fatalf("expected ErrMissingScalar, got %v", err)
	}
	if _, err := d.Decode(Camera, nil, 0); !errors.Is(err, ErrNotSampled) {
		t.Fatalf("expected ErrNotSampled, got %v", err)
	}
}

func TestDecodeRotationWithoutConvention(t *testing.T) {
	testlog.Start(t)
	_, err := DecodeRotation(Gyroscope, le16(1, 2, 3), 1)
	if !errors.Is(err, ErrNoAxisConvention) {
		t.Fatalf("expected ErrNoAxisConvention, got %v", err)
	}
}

func TestDecodeDataNestedFrames(t *testing.T) {
	testlog.Start(t)
	d := NewDecoder()
	d.SetScalars(Scalars{Gravity: 1})

	payload := binary.LittleEndian.AppendUint16(nil, 1234)
	payload, _ = codec.AppendMessage(payload, codec.Message{Type: byte(Gravity), Payload: le16(1, 2, 3)}, codec.Length8)
	payload, _ = codec.AppendMessage(payload, codec.Message{Type: 0xEE, Payload: []byte{1}}, codec.Length8)
	payload, _ = codec.AppendMessage(payload, codec.Message{Type: byte(StepDetector)}, codec.Length8)

	now := time.UnixMilli(int64(100)*TimestampWrap + 1300)
	samples, err := d.DecodeData(payload, now)
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected unknown type error, got %v", err)
	}
	if want := int64(100)*TimestampWrap + 1234; samples[0].Timestamp() != want {
		t.Fatalf("timestamp got=%d want=%d", samples[0].Timestamp(), want)
	}
	if _, err := d.DecodeData([]byte{1}, now); !errors.Is(err, ErrPayloadLength) {
		t.Fatalf("expected ErrPayloadLength, got %v", err)
	}
}

func TestConfigurationWire(t *testing.T) {
	testlog.Start(t)
	cfg := Configuration{Pressure: 20, Acceleration: 10}
	raw := cfg.Encode()
	if len(raw) != 6 || raw[0] != byte(Pressure) || raw[3] != byte(Acceleration) {
		t.Fatalf("encode order got=%v", raw)
	}
	got, err := ParseConfiguration(append(raw, 0xF0, 1, 0))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 2 || got[Pressure] != 20 || !got.Has(Acceleration) {
		t.Fatalf("parse got=%v", got)
	}
	if _, err := ParseConfiguration([]byte{1, 2}); !errors.Is(err, ErrPayloadLength) {
		t.Fatalf("expected ErrPayloadLength, got %v", err)
	}

	scalars, err := ParseScalars(EncodeScalars(Scalars{Gyroscope: 0.25}))
	if err != nil || scalars[Gyroscope] != 0.25 {
		t.Fatalf("scalars got=%v err=%v", scalars, err)
	}

	pos, err := ParsePressurePositions([]byte{128, 64, 0, 255})
	if err != nil || pos[0] != (Vector2{0.5, 0.25}) || pos[1].Y != 255.0/256 {
		t.Fatalf("positions got=%v err=%v", pos, err)
	}
}
