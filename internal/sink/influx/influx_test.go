package influx

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/wearctl/internal/events"
	"github.com/danmuck/wearctl/internal/sensor"
	"github.com/danmuck/wearctl/internal/testutil/testlog"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

type fakeWriter struct {
	mu     sync.Mutex
	points []*write.Point
	writes int
}

func (w *fakeWriter) WritePoint(_ context.Context, points ...*write.Point) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, points...)
	w.writes++
	return nil
}

func field(p *write.Point, key string) (any, bool) {
	for _, f := range p.FieldList() {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

func tag(p *write.Point, key string) string {
	for _, t := range p.TagList() {
		if t.Key == key {
			return t.Value
		}
	}
	return ""
}

func TestPointsForPressureSample(t *testing.T) {
	testlog.Start(t)
	frame := sensor.PressureFrame{
		Sensors:          []sensor.PressureSensor{{Scaled: 1}, {Scaled: 3}},
		ScaledSum:        4,
		CenterOfPressure: &sensor.Vector2{X: 0.25, Y: 0.5},
	}
	ev := events.SampleDecoded{Meta: events.NewMeta("dev-1", time.Now()), Sample: sensor.PressureSample{Frame: frame}}
	points := Points(ev)
	if len(points) != 1 {
		t.Fatalf("expected one point, got=%d", len(points))
	}
	p := points[0]
	if p.Name() != sensor.Pressure.String() {
		t.Fatalf("measurement got=%s", p.Name())
	}
	if tag(p, "device") != "dev-1" {
		t.Fatalf("device tag got=%s", tag(p, "device"))
	}
	if v, ok := field(p, "copX"); !ok || v != 0.25 {
		t.Fatalf("copX got=%v", v)
	}
	if v, ok := field(p, "cell01"); !ok || v != 3.0 {
		t.Fatalf("cell01 got=%v", v)
	}
}

func TestPointsSkipNonMetricEvents(t *testing.T) {
	testlog.Start(t)
	meta := events.NewMeta("dev-1", time.Now())
	if got := Points(events.FieldChanged{Meta: meta, Protocol: "information", Field: "name", Value: "x"}); got != nil {
		t.Fatalf("information is not a metric, got=%d points", len(got))
	}
	if got := Points(events.FieldChanged{Meta: meta, Protocol: "battery", Field: "level", Value: uint8(50)}); len(got) != 1 {
		t.Fatalf("battery level should be a point, got=%d", len(got))
	}
	// frame without center of pressure still records sums
	fields := SampleFields(sensor.PressureSample{})
	if _, ok := fields["copX"]; ok {
		t.Fatalf("all-zero frame must not carry a center of pressure")
	}
}

func TestSinkBatchesAndFlushesOnClose(t *testing.T) {
	testlog.Start(t)
	w := &fakeWriter{}
	s := NewWithWriter(Config{BatchSize: 2, FlushInterval: time.Hour}, w)
	sub := make(chan events.Event, 4)
	meta := events.NewMeta("dev-1", time.Now())
	for range 3 {
		sub <- events.SampleDecoded{Meta: meta, Sample: sensor.BarometerSample{Value: 1013.2}}
	}
	close(sub)
	if err := s.Run(context.Background(), sub); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(w.points) != 3 || w.writes != 2 {
		t.Fatalf("expected 3 points in 2 writes, got points=%d writes=%d", len(w.points), w.writes)
	}
}
