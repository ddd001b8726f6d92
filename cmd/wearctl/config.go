package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/wearctl/internal/config"
	"github.com/danmuck/wearctl/internal/engine"
	"github.com/danmuck/wearctl/internal/server"
	"github.com/danmuck/wearctl/internal/sink/influx"
	"github.com/danmuck/wearctl/internal/sink/redis"
	"github.com/danmuck/wearctl/internal/transport/serial"
	"github.com/danmuck/wearctl/internal/transport/udp"
)

// loadServiceConfig overlays the keys present in path onto the defaults.
func loadServiceConfig(path string) (engine.ServiceConfig, error) {
	cfg := engine.DefaultServiceConfig()

	var raw config.File
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return engine.ServiceConfig{}, fmt.Errorf("load wearctl config: %w", err)
	}
	if err := config.Validate(raw); err != nil {
		return engine.ServiceConfig{}, err
	}

	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Name = name
		}
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CORSOrigins
	}
	if meta.IsDefined("heartbeat") {
		if cfg.HeartbeatInterval, err = parseDuration("heartbeat", raw.Heartbeat); err != nil {
			return engine.ServiceConfig{}, err
		}
	}

	if t := raw.AdminTLS; t != nil {
		cfg.AdminTLS = &server.TLSConfig{
			CertFile:     t.CertFile,
			KeyFile:      t.KeyFile,
			ClientCAFile: t.ClientCAFile,
			Mutual:       strings.TrimSpace(t.ClientCAFile) != "",
		}
	}

	sess := &cfg.Manager.Session
	if meta.IsDefined("session", "handshake_timeout") {
		if sess.HandshakeTimeout, err = parseDuration("session.handshake_timeout", raw.Session.HandshakeTimeout); err != nil {
			return engine.ServiceConfig{}, err
		}
	}
	if meta.IsDefined("session", "max_handshake_checks") {
		sess.MaxHandshakeChecks = raw.Session.MaxHandshakeChecks
	}
	if meta.IsDefined("session", "request_retry") {
		if sess.RequestRetry, err = parseDuration("session.request_retry", raw.Session.RequestRetry); err != nil {
			return engine.ServiceConfig{}, err
		}
	}
	if meta.IsDefined("session", "tick_interval") {
		if cfg.Manager.TickInterval, err = parseDuration("session.tick_interval", raw.Session.TickInterval); err != nil {
			return engine.ServiceConfig{}, err
		}
	}
	if meta.IsDefined("session", "reconnect_initial") {
		if sess.Backoff.InitialDelay, err = parseDuration("session.reconnect_initial", raw.Session.ReconnectInitial); err != nil {
			return engine.ServiceConfig{}, err
		}
	}
	if meta.IsDefined("session", "reconnect_max") {
		if sess.Backoff.MaxDelay, err = parseDuration("session.reconnect_max", raw.Session.ReconnectMax); err != nil {
			return engine.ServiceConfig{}, err
		}
	}
	if meta.IsDefined("session", "reconnect_multiplier") {
		sess.Backoff.Multiplier = raw.Session.ReconnectMultiplier
	}

	for i, r := range raw.Relays {
		rc := udp.Config{
			Name:       strings.TrimSpace(r.Name),
			Addr:       strings.TrimSpace(r.Addr),
			ListenAddr: strings.TrimSpace(r.ListenAddr),
		}
		if rc.PingInterval, err = parseOptionalDuration(fmt.Sprintf("relays[%d].ping_interval", i), r.PingInterval); err != nil {
			return engine.ServiceConfig{}, err
		}
		if rc.PingTimeout, err = parseOptionalDuration(fmt.Sprintf("relays[%d].ping_timeout", i), r.PingTimeout); err != nil {
			return engine.ServiceConfig{}, err
		}
		cfg.Relays = append(cfg.Relays, rc)
	}
	if raw.Serial != nil {
		cfg.Serial = &serial.Config{Device: raw.Serial.Device, Baud: raw.Serial.Baud}
	}
	if raw.Redis != nil {
		cfg.Redis = &redis.Config{
			Addr:           raw.Redis.Addr,
			Password:       raw.Redis.Password,
			DB:             raw.Redis.DB,
			Prefix:         raw.Redis.Prefix,
			PublishSamples: raw.Redis.PublishSamples,
		}
	}
	if raw.Influx != nil {
		ic := &influx.Config{
			URL:       raw.Influx.URL,
			Token:     raw.Influx.Token,
			Org:       raw.Influx.Org,
			Bucket:    raw.Influx.Bucket,
			BatchSize: raw.Influx.BatchSize,
		}
		if ic.FlushInterval, err = parseOptionalDuration("influx.flush_interval", raw.Influx.FlushInterval); err != nil {
			return engine.ServiceConfig{}, err
		}
		cfg.Influx = ic
	}
	for _, p := range raw.Pairs {
		cfg.Manager.Pairs = append(cfg.Manager.Pairs, engine.PairConfig{
			Name:    strings.TrimSpace(p.Name),
			Devices: [2]string{p.Devices[0], p.Devices[1]},
		})
	}
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func parseOptionalDuration(key, raw string) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	return parseDuration(key, raw)
}
