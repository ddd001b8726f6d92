package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danmuck/wearctl/internal/device"
	"github.com/danmuck/wearctl/internal/sensor"
	"github.com/danmuck/wearctl/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"devices": len(s.devices.Devices()),
			"version": "0.1.0",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", s.handleWS)

	devices := r.Group("/devices")
	devices.GET("", s.listDevices)
	devices.GET("/:id", s.getDevice)
	devices.POST("/:id/sensor-configuration", s.setSensorConfiguration)
	devices.POST("/:id/vibrate", s.vibrate)
	devices.POST("/:id/camera/:command", s.cameraCommand)
	devices.POST("/:id/firmware", s.updateFirmware)
	devices.POST("/:id/disconnect", s.disconnect)
}

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.cfg.RequestLimit)
}

func (s *Server) listDevices(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	out := make([]device.Snapshot, 0)
	for _, id := range s.devices.Devices() {
		snap, err := s.devices.Snapshot(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, snap)
	}
	c.JSON(http.StatusOK, gin.H{"devices": out})
}

func (s *Server) getDevice(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	snap, err := s.devices.Snapshot(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// setSensorConfiguration takes {"<sensor type>": <rate ms>, ...}.
func (s *Server) setSensorConfiguration(c *gin.Context) {
	var body map[string]uint16
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg := make(sensor.Configuration, len(body))
	for name, rate := range body {
		t, ok := sensor.ParseTypeName(name)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown sensor type %q", name)})
			return
		}
		cfg[t] = rate
	}
	s.do(c, func(d *device.Device) error { return d.SetSensorConfiguration(cfg) })
}

type vibrationRequest struct {
	Locations []string `json:"locations"`
	Effects   []struct {
		Effect  uint8 `json:"effect"`
		DelayMS int   `json:"delayMs"`
	} `json:"effects"`
	Segments []struct {
		Amplitude  float64 `json:"amplitude"`
		DurationMS int     `json:"durationMs"`
	} `json:"segments"`
}

func (req vibrationRequest) vibration() (device.Vibration, error) {
	var v device.Vibration
	for _, loc := range req.Locations {
		switch loc {
		case "front":
			v.Locations |= device.VibrationFront
		case "rear":
			v.Locations |= device.VibrationRear
		default:
			return v, fmt.Errorf("%w: vibration location %q", device.ErrInvalidArg, loc)
		}
	}
	for _, e := range req.Effects {
		v.Effects = append(v.Effects, device.WaveformEffect{Effect: e.Effect, Delay: time.Duration(e.DelayMS) * time.Millisecond})
	}
	for _, seg := range req.Segments {
		v.Segments = append(v.Segments, device.WaveformSegment{Amplitude: seg.Amplitude, Duration: time.Duration(seg.DurationMS) * time.Millisecond})
	}
	return v, nil
}

func (s *Server) vibrate(c *gin.Context) {
	var req vibrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	v, err := req.vibration()
	if err != nil {
		writeError(c, err)
		return
	}
	s.do(c, func(d *device.Device) error { return d.Vibrate(v) })
}

func (s *Server) cameraCommand(c *gin.Context) {
	cmd, ok := device.ParseCameraCommand(c.Param("command"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown camera command %q", c.Param("command"))})
		return
	}
	s.do(c, func(d *device.Device) error { return d.CameraCommand(cmd) })
}

func (s *Server) disconnect(c *gin.Context) {
	s.do(c, func(d *device.Device) error { return d.Disconnect() })
}

// updateFirmware streams the request body to the configured updater and
// answers when the update ends.
func (s *Server) updateFirmware(c *gin.Context) {
	if err := s.devices.UpdateFirmware(c.Request.Context(), c.Param("id"), c.Request.Body); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) do(c *gin.Context, fn func(*device.Device) error) {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	if err := s.devices.Do(ctx, c.Param("id"), fn); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, transport.ErrUnknown):
		status = http.StatusNotFound
	case errors.Is(err, device.ErrNotConnected), errors.Is(err, device.ErrTransferBusy):
		status = http.StatusConflict
	case errors.Is(err, device.ErrInvalidArg), errors.Is(err, device.ErrUnsupported):
		status = http.StatusBadRequest
	case errors.Is(err, device.ErrNoUpdater):
		status = http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
