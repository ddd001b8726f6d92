package engine

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/wearctl/internal/events"
	"github.com/danmuck/wearctl/internal/protocol/registry"
	"github.com/danmuck/wearctl/internal/server"
	"github.com/danmuck/wearctl/internal/sink/influx"
	"github.com/danmuck/wearctl/internal/sink/redis"
	"github.com/danmuck/wearctl/internal/transport/serial"
	"github.com/danmuck/wearctl/internal/transport/udp"
	"github.com/rs/zerolog/log"
)

var ErrInvalidHeartbeatInterval = errors.New("engine: invalid heartbeat interval")

// ServiceConfig configures the standalone runtime. Nil sections are
// disabled.
type ServiceConfig struct {
	Name              string
	AdminAddr         string
	CORSOrigins       []string
	AdminTLS          *server.TLSConfig
	HeartbeatInterval time.Duration
	Manager           ManagerConfig
	Relays            []udp.Config
	Serial            *serial.Config
	Redis             *redis.Config
	Influx            *influx.Config
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:              "wearctl",
		AdminAddr:         "127.0.0.1:7080",
		HeartbeatInterval: 10 * time.Second,
		Manager:           DefaultManagerConfig(),
	}
}

// Service wires transports, the device manager, sinks and the admin server
// around one event hub.
type Service struct {
	cfg     ServiceConfig
	hub     *events.Hub
	manager *Manager
	relays  []*udp.Relay
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	cfg.Manager.Session = cfg.Manager.Session.WithDefaults()
	hub := events.NewHub()
	s := &Service{
		cfg:     cfg,
		hub:     hub,
		manager: NewManager(cfg.Manager, registry.Default(), hub),
	}
	for _, rc := range cfg.Relays {
		if rc.Backoff.InitialDelay <= 0 {
			rc.Backoff = cfg.Manager.Session.Backoff
		}
		s.relays = append(s.relays, udp.New(rc, s.manager))
	}
	return s
}

func (s *Service) Manager() *Manager { return s.manager }

func (s *Service) Hub() *events.Hub { return s.hub }

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done or one of
// them fails. Components are stopped and awaited before it returns.
func (s *Service) RunContext(ctx context.Context) error {
	if s.cfg.HeartbeatInterval <= 0 {
		return ErrInvalidHeartbeatInterval
	}
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 8+len(s.relays))
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.hub.Run(ctx)
	}()
	s.manager.attach(ctx)
	start("manager", s.manager.Run)
	if err := s.startSinks(ctx, start); err != nil {
		cancel()
		return err
	}
	for _, r := range s.relays {
		start("relay "+r.Name(), r.Run)
	}
	if s.cfg.Serial != nil {
		bridge, err := serial.Open(*s.cfg.Serial, s.manager)
		if err != nil {
			cancel()
			return err
		}
		start("serial", bridge.Run)
	}
	if s.cfg.AdminAddr != "" {
		srv := server.New(server.Config{Addr: s.cfg.AdminAddr, CORSOrigins: s.cfg.CORSOrigins, TLS: s.cfg.AdminTLS}, s.manager, s.hub)
		start("admin", srv.Run)
	}
	log.Info().Msgf("engine.Service.Run ready name=%s relays=%d serial=%v admin=%q", s.cfg.Name, len(s.relays), s.cfg.Serial != nil, s.cfg.AdminAddr)
	return s.serve(ctx, errCh)
}

func (s *Service) startSinks(ctx context.Context, start func(string, func(context.Context) error)) error {
	if s.cfg.Redis != nil {
		sink, err := redis.New(ctx, *s.cfg.Redis)
		if err != nil {
			return err
		}
		sub := s.hub.Subscribe()
		start("redis", func(ctx context.Context) error {
			defer sink.Close()
			return sink.Run(ctx, sub)
		})
	}
	if s.cfg.Influx != nil {
		sink := influx.New(*s.cfg.Influx)
		sub := s.hub.Subscribe()
		start("influx", func(ctx context.Context) error {
			defer sink.Close()
			return sink.Run(ctx, sub)
		})
	}
	return nil
}

func (s *Service) serve(ctx context.Context, errCh <-chan error) error {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("engine.Service.serve shutdown")
			return nil
		case err := <-errCh:
			log.Error().Msgf("engine.Service.serve component failed err=%v", err)
			return err
		case <-ticker.C:
			alive := 0
			for _, r := range s.relays {
				if r.Alive() {
					alive++
				}
			}
			log.Info().Msgf("engine.Service.heartbeat name=%s devices=%d relays_alive=%d/%d",
				s.cfg.Name, len(s.manager.Devices()), alive, len(s.relays))
		}
	}
}
