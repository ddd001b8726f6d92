package device

import (
	"fmt"
	"maps"

	"github.com/danmuck/wearctl/internal/events"
	"github.com/danmuck/wearctl/internal/protocol/registry"
	"github.com/danmuck/wearctl/internal/sensor"
)

type sensorState struct {
	config  sensor.Configuration
	decoder *sensor.Decoder
}

func (s *sensorState) init() {
	s.config = sensor.Configuration{}
	s.decoder = sensor.NewDecoder()
}

func (s *sensorState) reset() {
	s.config = sensor.Configuration{}
	s.decoder.Reset()
}

func (d *Device) handleSensors(t registry.MessageType, p []byte) error {
	switch t {
	case registry.GetSensorConfiguration, registry.SetSensorConfiguration:
		cfg, err := sensor.ParseConfiguration(p)
		if err != nil {
			return err
		}
		d.sensors.config = cfg
		d.emit.Emit(events.SensorConfigurationChanged{Meta: d.meta(), Configuration: maps.Clone(cfg)})
	case registry.GetSensorScalars:
		scalars, err := sensor.ParseScalars(p)
		if err != nil {
			return err
		}
		d.sensors.decoder.SetScalars(scalars)
		d.changed("sensorData", "scalars", len(scalars))
	case registry.GetPressurePositions:
		positions, err := sensor.ParsePressurePositions(p)
		if err != nil {
			return err
		}
		d.sensors.decoder.SetPressurePositions(positions)
		d.changed("sensorData", "pressurePositions", len(positions))
	case registry.SensorData:
		samples, err := d.sensors.decoder.DecodeData(p, d.clock())
		for _, s := range samples {
			d.emit.Emit(events.SampleDecoded{Meta: d.meta(), Sample: s})
		}
		if err != nil {
			if len(samples) == 0 {
				return err
			}
			d.decodeFailed(t.String(), err)
		}
	default:
		return ErrUnhandledType
	}
	return nil
}

// SensorConfiguration returns a copy of the device's sensor configuration.
func (d *Device) SensorConfiguration() sensor.Configuration {
	return maps.Clone(d.sensors.config)
}

// SetSensorConfiguration sends new sample intervals. Every type must be one
// the device advertised.
func (d *Device) SetSensorConfiguration(cfg sensor.Configuration) error {
	if err := d.requireConnected(); err != nil {
		return err
	}
	if len(cfg) == 0 {
		return fmt.Errorf("%w: empty sensor configuration", ErrInvalidArg)
	}
	for t := range cfg {
		if !d.sensors.config.Has(t) {
			return fmt.Errorf("%w: sensor %s", ErrUnsupported, t)
		}
	}
	return d.send(registry.SetSensorConfiguration, cfg.Encode())
}
