package device

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/danmuck/wearctl/internal/events"
	"github.com/rs/zerolog/log"
)

var ErrNoUpdater = errors.New("device: no firmware updater configured")

// FirmwareUpdater pushes a firmware image to a device over its own
// protocol. Progress is reported in [0,1].
type FirmwareUpdater interface {
	Update(ctx context.Context, deviceID string, image io.Reader, progress func(float64)) error
}

// UpdateFirmware runs updater for deviceID and publishes progress, success
// and failure events. It blocks until the update ends and touches no Device
// state, so it may run outside the device goroutine.
func UpdateFirmware(ctx context.Context, deviceID string, updater FirmwareUpdater, image io.Reader, emit events.Emitter) error {
	if updater == nil {
		return ErrNoUpdater
	}
	meta := func() events.Meta { return events.NewMeta(deviceID, time.Now()) }
	log.Info().Str("device", deviceID).Msg("device.UpdateFirmware start")
	err := updater.Update(ctx, deviceID, image, func(p float64) {
		emit.Emit(events.FirmwareProgress{Meta: meta(), Progress: min(max(p, 0), 1)})
	})
	if err != nil {
		log.Warn().Str("device", deviceID).Msgf("device.UpdateFirmware failed err=%v", err)
		emit.Emit(events.FirmwareProgress{Meta: meta(), Err: err.Error()})
		return err
	}
	emit.Emit(events.FirmwareProgress{Meta: meta(), Progress: 1, Done: true})
	log.Info().Str("device", deviceID).Msg("device.UpdateFirmware done")
	return nil
}
