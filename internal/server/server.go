// Package server is the admin HTTP surface: device state, commands, metrics
// and a live event stream.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/wearctl/internal/device"
	"github.com/danmuck/wearctl/internal/events"
	"github.com/danmuck/wearctl/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Devices is the engine surface the server drives.
type Devices interface {
	Devices() []string
	Snapshot(ctx context.Context, id string) (device.Snapshot, error)
	Do(ctx context.Context, id string, fn func(*device.Device) error) error
	UpdateFirmware(ctx context.Context, id string, image io.Reader) error
}

// Subscriber hands out event subscriptions.
type Subscriber interface {
	Subscribe() <-chan events.Event
	Unsubscribe(<-chan events.Event)
}

type Config struct {
	Addr         string
	CORSOrigins  []string
	RequestLimit time.Duration
	// TLS switches the listener to HTTPS when set.
	TLS *TLSConfig
}

type Server struct {
	cfg     Config
	devices Devices
	events  Subscriber
	router  *gin.Engine
	started time.Time
}

func New(cfg Config, devices Devices, sub Subscriber) *Server {
	if cfg.RequestLimit <= 0 {
		cfg.RequestLimit = 5 * time.Second
	}
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:     cfg,
		devices: devices,
		events:  sub,
		router:  r,
		started: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if s.cfg.TLS != nil {
		tlsCfg, err := s.cfg.TLS.build()
		if err != nil {
			return err
		}
		srv.TLSConfig = tlsCfg
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, srv, ln)
}

func (s *Server) serve(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("server.Server.Run listening addr=%s tls=%v", ln.Addr(), srv.TLSConfig != nil)
		if srv.TLSConfig != nil {
			errCh <- srv.ServeTLS(ln, "", "")
			return
		}
		errCh <- srv.Serve(ln)
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
