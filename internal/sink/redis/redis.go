// Package redis mirrors device state into redis hashes and republishes
// device events as CBOR records.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/danmuck/wearctl/internal/events"
	"github.com/fxamacker/cbor/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// PublishSamples also republishes decoded samples, which can be
	// hundreds of events per second per device.
	PublishSamples bool
}

// Record is the CBOR document published for each event.
type Record struct {
	Device string `cbor:"device"`
	Kind   string `cbor:"kind"`
	Time   int64  `cbor:"time"`
	Event  any    `cbor:"event"`
}

type Sink struct {
	cfg    Config
	client *goredis.Client
}

// New connects and pings the server.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "wearctl"
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: connect %s: %w", cfg.Addr, err)
	}
	log.Info().Msgf("redis.New addr=%s db=%d prefix=%s", cfg.Addr, cfg.DB, cfg.Prefix)
	return &Sink{cfg: cfg, client: client}, nil
}

func (s *Sink) Close() error { return s.client.Close() }

func (s *Sink) DeviceKey(id string) string { return s.cfg.Prefix + ":device:" + id }

func (s *Sink) EventChannel(id string) string { return s.cfg.Prefix + ":events:" + id }

// Run consumes sub until it closes or ctx is done.
func (s *Sink) Run(ctx context.Context, sub <-chan events.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub:
			if !ok {
				return nil
			}
			if err := s.Write(ctx, ev); err != nil {
				log.Warn().Str("device", ev.DeviceID()).Msgf("redis.Sink.Run kind=%s err=%v", ev.Kind(), err)
			}
		}
	}
}

// Write applies one event in a single pipeline.
func (s *Sink) Write(ctx context.Context, ev events.Event) error {
	fields := StateFields(ev)
	publish := s.cfg.PublishSamples || ev.Kind() != "sample"
	if len(fields) == 0 && !publish {
		return nil
	}
	pipe := s.client.Pipeline()
	if len(fields) > 0 {
		pipe.HSet(ctx, s.DeviceKey(ev.DeviceID()), fields)
	}
	if publish {
		payload, err := EncodeRecord(ev)
		if err != nil {
			return err
		}
		pipe.Publish(ctx, s.EventChannel(ev.DeviceID()), payload)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// EncodeRecord wraps ev in a Record and encodes it.
func EncodeRecord(ev events.Event) ([]byte, error) {
	return cbor.Marshal(Record{
		Device: ev.DeviceID(),
		Kind:   ev.Kind(),
		Time:   ev.Time().UnixMilli(),
		Event:  ev,
	})
}

// StateFields returns the hash fields an event updates. Events that are not
// device state return nil.
func StateFields(ev events.Event) map[string]any {
	fields := map[string]any{"updatedAt": ev.Time().Format(time.RFC3339Nano)}
	switch e := ev.(type) {
	case events.ConnectionChanged:
		fields["state"] = e.To.String()
	case events.HandshakeFailed:
		fields["handshakeFailed"] = e.Reason
	case events.FieldChanged:
		fields[e.Protocol+"."+e.Field] = fieldValue(e.Value)
	case events.SensorConfigurationChanged:
		for t, rate := range e.Configuration {
			fields["sensors."+t.String()] = rate
		}
	case events.FirmwareProgress:
		fields["firmware.progress"] = strconv.FormatFloat(e.Progress, 'f', 3, 64)
		if e.Err != "" {
			fields["firmware.error"] = e.Err
		}
	default:
		return nil
	}
	return fields
}

func fieldValue(v any) any {
	switch x := v.(type) {
	case string, bool, int, int64, uint8, uint16, uint32, uint64, float32, float64:
		return x
	case fmt.Stringer:
		return x.String()
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
