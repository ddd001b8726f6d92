// Package influx writes decoded sensor samples to InfluxDB as points, one
// measurement per sensor type.
package influx

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/wearctl/internal/events"
	"github.com/danmuck/wearctl/internal/sensor"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog/log"
)

type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	// BatchSize points are buffered before a write; FlushInterval bounds
	// how long a partial batch waits.
	BatchSize     int
	FlushInterval time.Duration
}

// PointWriter is the blocking write API.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type Sink struct {
	cfg    Config
	client influxdb2.Client
	writer PointWriter
}

func New(cfg Config) *Sink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	s := NewWithWriter(cfg, client.WriteAPIBlocking(cfg.Org, cfg.Bucket))
	s.client = client
	log.Info().Msgf("influx.New url=%s org=%s bucket=%s", cfg.URL, cfg.Org, cfg.Bucket)
	return s
}

func NewWithWriter(cfg Config, w PointWriter) *Sink {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	return &Sink{cfg: cfg, writer: w}
}

func (s *Sink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

// Run batches points from sub until it closes or ctx is done. The last
// partial batch is written on the way out.
func (s *Sink) Run(ctx context.Context, sub <-chan events.Event) error {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()
	batch := make([]*write.Point, 0, s.cfg.BatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := s.writer.WritePoint(ctx, batch...); err != nil {
			log.Warn().Msgf("influx.Sink.flush points=%d err=%v", len(batch), err)
		}
		clear(batch)
		batch = batch[:0]
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		flush(ctx)
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			flush(ctx)
		case ev, ok := <-sub:
			if !ok {
				return nil
			}
			batch = append(batch, Points(ev)...)
			if len(batch) >= s.cfg.BatchSize {
				flush(ctx)
			}
		}
	}
}

// Points converts one event to zero or more points.
func Points(ev events.Event) []*write.Point {
	switch e := ev.(type) {
	case events.SampleDecoded:
		if e.Sample == nil {
			return nil
		}
		fields := SampleFields(e.Sample)
		if len(fields) == 0 {
			return nil
		}
		st := e.Sample.SensorType()
		tags := map[string]string{"device": e.Device, "sensor": st.String()}
		return []*write.Point{influxdb2.NewPoint(st.String(), tags, fields, time.UnixMilli(e.Sample.Timestamp()))}
	case events.PairPressure:
		fields := frameFields(e.Pressure.Frame)
		if len(fields) == 0 {
			return nil
		}
		tags := map[string]string{"pair": e.Device, "left": e.Left, "right": e.Right}
		return []*write.Point{influxdb2.NewPoint("pairPressure", tags, fields, e.At)}
	case events.FieldChanged:
		if e.Protocol != "battery" {
			return nil
		}
		return []*write.Point{influxdb2.NewPoint("battery", map[string]string{"device": e.Device}, map[string]any{e.Field: e.Value}, e.At)}
	}
	return nil
}

// SampleFields flattens a sample's value into point fields.
func SampleFields(s sensor.Sample) map[string]any {
	switch v := s.(type) {
	case sensor.VectorSample:
		return map[string]any{"x": v.Value.X, "y": v.Value.Y, "z": v.Value.Z}
	case sensor.QuaternionSample:
		return map[string]any{"x": v.Value.X, "y": v.Value.Y, "z": v.Value.Z, "w": v.Value.W}
	case sensor.RotationSample:
		return map[string]any{"pitch": v.Value.Pitch, "yaw": v.Value.Yaw, "roll": v.Value.Roll}
	case sensor.PressureSample:
		return frameFields(v.Frame)
	case sensor.StepCountSample:
		return map[string]any{"steps": int64(v.Steps)}
	case sensor.ActivitySample:
		return map[string]any{"activity": int64(v.Activity)}
	case sensor.DeviceOrientationSample:
		return map[string]any{"posture": v.Posture.String()}
	case sensor.BarometerSample:
		return map[string]any{"value": v.Value}
	case sensor.EventSample:
		return map[string]any{"count": int64(1)}
	}
	return nil
}

func frameFields(f sensor.PressureFrame) map[string]any {
	fields := map[string]any{
		"scaledSum":     f.ScaledSum,
		"normalizedSum": f.NormalizedSum,
	}
	if c := f.CenterOfPressure; c != nil {
		fields["copX"], fields["copY"] = c.X, c.Y
	}
	if c := f.NormalizedCenterOfPressure; c != nil {
		fields["normalizedCopX"], fields["normalizedCopY"] = c.X, c.Y
	}
	for i, cell := range f.Sensors {
		fields[fmt.Sprintf("cell%02d", i)] = cell.Scaled
	}
	return fields
}
