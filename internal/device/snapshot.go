package device

import (
	"maps"
	"slices"

	"github.com/danmuck/wearctl/internal/sensor"
)

// Snapshot is a read-only copy of a device's decoded state.
type Snapshot struct {
	ID             string            `json:"id"`
	State          string            `json:"state"`
	Missing        []string          `json:"missing,omitempty"`
	MaxMessageSize int               `json:"maxMessageSize"`
	Battery        BatterySnapshot   `json:"battery"`
	Information    InfoSnapshot      `json:"information"`
	Sensors        map[string]uint16 `json:"sensors"`
	Vibration      string            `json:"vibration,omitempty"`
	Files          FilesSnapshot     `json:"files"`
	Tflite         *TfliteSnapshot   `json:"tflite,omitempty"`
	Wifi           *WifiSnapshot     `json:"wifi,omitempty"`
	Camera         *CameraSnapshot   `json:"camera,omitempty"`
}

type BatterySnapshot struct {
	Level    *uint8   `json:"level,omitempty"`
	Charging *bool    `json:"charging,omitempty"`
	Current  *float32 `json:"current,omitempty"`
}

type InfoSnapshot struct {
	MTU         uint16            `json:"mtu"`
	ReportedID  string            `json:"reportedId,omitempty"`
	Name        string            `json:"name,omitempty"`
	Type        string            `json:"type,omitempty"`
	CurrentTime uint64            `json:"currentTime"`
	Fields      map[string]string `json:"fields,omitempty"`
}

type FilesSnapshot struct {
	Types     []string `json:"types,omitempty"`
	MaxLength uint32   `json:"maxLength,omitempty"`
	Status    string   `json:"status"`
	Busy      bool     `json:"busy"`
}

type TfliteSnapshot struct {
	Name         string   `json:"name"`
	Task         string   `json:"task,omitempty"`
	SampleRate   uint16   `json:"sampleRate"`
	SensorTypes  []string `json:"sensorTypes,omitempty"`
	Ready        bool     `json:"ready"`
	CaptureDelay uint16   `json:"captureDelay"`
	Threshold    float32  `json:"threshold"`
	Inferencing  bool     `json:"inferencing"`
}

type WifiSnapshot struct {
	SSID              string `json:"ssid"`
	ConnectionEnabled bool   `json:"connectionEnabled"`
	Connected         bool   `json:"connected"`
	IPAddress         string `json:"ipAddress,omitempty"`
	Secure            bool   `json:"secure"`
}

type CameraSnapshot struct {
	Status        string            `json:"status,omitempty"`
	Configuration map[string]uint16 `json:"configuration,omitempty"`
}

func (d *Device) Snapshot() Snapshot {
	s := Snapshot{
		ID:             d.id,
		State:          d.state.String(),
		Missing:        d.Missing(),
		MaxMessageSize: d.MaxMessageSize(),
		Battery: BatterySnapshot{
			Level:    d.battery.level,
			Charging: d.battery.charging,
			Current:  d.battery.current,
		},
		Information: InfoSnapshot{
			MTU:         d.info.mtu,
			ReportedID:  d.info.reportedID,
			Name:        d.info.name,
			CurrentTime: d.info.currentTime,
		},
		Sensors: make(map[string]uint16, len(d.sensors.config)),
		Files: FilesSnapshot{
			MaxLength: d.files.maxLength,
			Status:    d.files.status.String(),
			Busy:      d.files.busy(),
		},
	}
	if dt, ok := d.DeviceType(); ok {
		s.Information.Type = dt.String()
	}
	for f := InfoField(0); f < infoFieldCount; f++ {
		if v := d.info.fields[f]; v != "" {
			if s.Information.Fields == nil {
				s.Information.Fields = map[string]string{}
			}
			s.Information.Fields[f.String()] = v
		}
	}
	for t, v := range d.sensors.config {
		s.Sensors[t.String()] = v
	}
	if d.vibration.locations != nil {
		s.Vibration = d.vibration.locations.String()
	}
	for _, ft := range d.files.types {
		s.Files.Types = append(s.Files.Types, ft.String())
	}
	if d.files.supports(FileTypeTflite) {
		t := d.tflite
		ts := &TfliteSnapshot{
			Name:         t.name,
			SampleRate:   t.sampleRate,
			Ready:        t.ready,
			CaptureDelay: t.captureDelay,
			Threshold:    t.threshold,
			Inferencing:  t.inferencing,
		}
		if t.task != nil {
			ts.Task = t.task.String()
		}
		for _, st := range t.sensorTypes {
			ts.SensorTypes = append(ts.SensorTypes, st.String())
		}
		s.Tflite = ts
	}
	if d.wifi.available {
		s.Wifi = &WifiSnapshot{
			SSID:              d.wifi.ssid,
			ConnectionEnabled: d.wifi.connectionEnabled,
			Connected:         d.wifi.connected,
			IPAddress:         d.wifi.ipAddress,
			Secure:            d.wifi.secure,
		}
	}
	if d.sensors.config.Has(sensor.Camera) {
		cs := &CameraSnapshot{}
		if d.camera.status != nil {
			cs.Status = d.camera.status.String()
		}
		if len(d.camera.config) > 0 {
			cs.Configuration = make(map[string]uint16, len(d.camera.config))
			for _, k := range slices.Sorted(maps.Keys(d.camera.config)) {
				cs.Configuration[k.String()] = d.camera.config[k]
			}
		}
		s.Camera = cs
	}
	return s
}
