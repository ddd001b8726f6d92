package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

var ErrInvalid = errors.New("config: invalid")

// File is the on-disk wearctl configuration.
type File struct {
	Name        string   `toml:"name"`
	AdminAddr   string   `toml:"admin_addr"`
	CORSOrigins []string `toml:"cors_origins"`
	Heartbeat   string   `toml:"heartbeat"`

	AdminTLS *AdminTLSSection `toml:"admin_tls,omitempty"`
	Session  SessionSection   `toml:"session"`
	Relays   []RelaySection   `toml:"relays"`
	Serial   *SerialSection   `toml:"serial,omitempty"`
	Redis    *RedisSection    `toml:"redis,omitempty"`
	Influx   *InfluxSection   `toml:"influx,omitempty"`
	Pairs    []PairSection    `toml:"pairs"`
}

// AdminTLSSection serves the admin surface over HTTPS. With client_ca_file
// set, clients must present a certificate it signed.
type AdminTLSSection struct {
	CertFile     string `toml:"cert_file"`
	KeyFile      string `toml:"key_file"`
	ClientCAFile string `toml:"client_ca_file"`
}

type SessionSection struct {
	HandshakeTimeout    string  `toml:"handshake_timeout"`
	MaxHandshakeChecks  int     `toml:"max_handshake_checks"`
	RequestRetry        string  `toml:"request_retry"`
	TickInterval        string  `toml:"tick_interval"`
	ReconnectInitial    string  `toml:"reconnect_initial"`
	ReconnectMax        string  `toml:"reconnect_max"`
	ReconnectMultiplier float64 `toml:"reconnect_multiplier"`
}

type RelaySection struct {
	Name         string `toml:"name"`
	Addr         string `toml:"addr"`
	ListenAddr   string `toml:"listen_addr"`
	PingInterval string `toml:"ping_interval"`
	PingTimeout  string `toml:"ping_timeout"`
}

type SerialSection struct {
	Device string `toml:"device"`
	Baud   int    `toml:"baud"`
}

type RedisSection struct {
	Addr           string `toml:"addr"`
	Password       string `toml:"password"`
	DB             int    `toml:"db"`
	Prefix         string `toml:"prefix"`
	PublishSamples bool   `toml:"publish_samples"`
}

type InfluxSection struct {
	URL           string `toml:"url"`
	Token         string `toml:"token"`
	Org           string `toml:"org"`
	Bucket        string `toml:"bucket"`
	BatchSize     int    `toml:"batch_size"`
	FlushInterval string `toml:"flush_interval"`
}

// PairSection fuses pressure from two devices; sides come from the device
// types they report.
type PairSection struct {
	Name    string   `toml:"name"`
	Devices []string `toml:"devices"`
}

// Default returns the configuration written by WriteTemplate.
func Default() File {
	return File{
		Name:        "wearctl",
		AdminAddr:   "127.0.0.1:7080",
		CORSOrigins: []string{"http://localhost:3000"},
		Heartbeat:   "10s",
		Session: SessionSection{
			HandshakeTimeout:    "15s",
			MaxHandshakeChecks:  64,
			RequestRetry:        "1s",
			TickInterval:        "250ms",
			ReconnectInitial:    "250ms",
			ReconnectMax:        "5s",
			ReconnectMultiplier: 2,
		},
		Relays: []RelaySection{{
			Name:         "phone",
			Addr:         "127.0.0.1:9999",
			ListenAddr:   ":0",
			PingInterval: "2s",
			PingTimeout:  "6s",
		}},
		Pairs: []PairSection{},
	}
}

// Load reads and validates path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := Validate(f); err != nil {
		return File{}, err
	}
	return f, nil
}

// Render encodes f as TOML.
func Render(f File) ([]byte, error) {
	return toml.Marshal(f)
}

// WriteTemplate writes the default configuration to path.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	data, err := Render(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks the fields the runtime cannot default.
func Validate(f File) error {
	var errs []error
	check := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			return
		}
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrInvalid, name, err))
		}
	}
	check("heartbeat", f.Heartbeat)
	check("session.handshake_timeout", f.Session.HandshakeTimeout)
	check("session.request_retry", f.Session.RequestRetry)
	check("session.tick_interval", f.Session.TickInterval)
	check("session.reconnect_initial", f.Session.ReconnectInitial)
	check("session.reconnect_max", f.Session.ReconnectMax)
	if t := f.AdminTLS; t != nil && (strings.TrimSpace(t.CertFile) == "" || strings.TrimSpace(t.KeyFile) == "") {
		errs = append(errs, fmt.Errorf("%w: admin_tls.cert_file and admin_tls.key_file are required", ErrInvalid))
	}
	if f.Session.MaxHandshakeChecks < 0 {
		errs = append(errs, fmt.Errorf("%w: session.max_handshake_checks < 0", ErrInvalid))
	}
	names := make(map[string]bool)
	for i, r := range f.Relays {
		if strings.TrimSpace(r.Addr) == "" {
			errs = append(errs, fmt.Errorf("%w: relays[%d] addr is required", ErrInvalid, i))
		}
		if names[r.Name] && r.Name != "" {
			errs = append(errs, fmt.Errorf("%w: relays[%d] duplicate name %q", ErrInvalid, i, r.Name))
		}
		names[r.Name] = true
		check(fmt.Sprintf("relays[%d].ping_interval", i), r.PingInterval)
		check(fmt.Sprintf("relays[%d].ping_timeout", i), r.PingTimeout)
	}
	if f.Serial != nil && strings.TrimSpace(f.Serial.Device) == "" {
		errs = append(errs, fmt.Errorf("%w: serial.device is required", ErrInvalid))
	}
	if f.Redis != nil && strings.TrimSpace(f.Redis.Addr) == "" {
		errs = append(errs, fmt.Errorf("%w: redis.addr is required", ErrInvalid))
	}
	if f.Influx != nil {
		if strings.TrimSpace(f.Influx.URL) == "" || strings.TrimSpace(f.Influx.Bucket) == "" {
			errs = append(errs, fmt.Errorf("%w: influx.url and influx.bucket are required", ErrInvalid))
		}
		check("influx.flush_interval", f.Influx.FlushInterval)
	}
	for i, p := range f.Pairs {
		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Errorf("%w: pairs[%d] name is required", ErrInvalid, i))
		}
		if len(p.Devices) != 2 || p.Devices[0] == p.Devices[1] {
			errs = append(errs, fmt.Errorf("%w: pairs[%d] needs two distinct devices", ErrInvalid, i))
		}
	}
	return errors.Join(errs...)
}
