// Package privacy applies the privacy and location toggles that sit next
// to the PQ settings: microphone capture, the camera HAL service, GNSS and
// geoclue.
package privacy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattjoyce/pqd/internal/dispatch"
	"github.com/mattjoyce/pqd/internal/log"
)

// Service states reported by init.svc.* properties.
const (
	StateRunning = "running"
	StateStopped = "stopped"
)

// Properties reads and writes Android system properties.
type Properties interface {
	Get(ctx context.Context, name, def string) (string, error)
	Set(ctx context.Context, name, value string) error
}

// Mixer toggles an ALSA capture switch.
type Mixer interface {
	SetCaptureEnabled(ctx context.Context, device, element string, enabled bool) error
}

// Units restarts and stops systemd units.
type Units interface {
	Restart(ctx context.Context, unit string) error
	Stop(ctx context.Context, unit string) error
}

// Config names the services and devices the controller touches.
type Config struct {
	CameraService string
	GNSSService   string
	GeoclueUnit   string
	MixerDevice   string
	MixerElement  string
	// CacheDir is removed when the camera comes back so GStreamer rescans
	// its plugins.
	CacheDir string
}

// DefaultConfig returns the stock service names.
func DefaultConfig() Config {
	cfg := Config{
		CameraService: "camerahalserver",
		GNSSService:   "vendor.gnss-default",
		GeoclueUnit:   "geoclue.service",
		MixerDevice:   "default",
		MixerElement:  "Capture",
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.CacheDir = filepath.Join(home, ".cache", "gstreamer-1.0")
	}
	return cfg
}

// Controller applies privacy toggles.
type Controller struct {
	cfg    Config
	props  Properties
	mixer  Mixer
	units  Units
	logger *slog.Logger
}

func New(cfg Config, props Properties, mixer Mixer, units Units) *Controller {
	return &Controller{
		cfg:    cfg,
		props:  props,
		mixer:  mixer,
		units:  units,
		logger: log.WithComponent("privacy"),
	}
}

// Handlers returns the dispatcher passthroughs for the watched keys.
func (c *Controller) Handlers() map[string]dispatch.Passthrough {
	return map[string]dispatch.Passthrough{
		dispatch.KeyDisableMicrophone:  func(ctx context.Context, v int64) error { return c.Microphone(ctx, v != 0) },
		dispatch.KeyDisableCamera:      func(ctx context.Context, v int64) error { return c.Camera(ctx, v != 0) },
		dispatch.KeyDisableSoundOutput: func(ctx context.Context, v int64) error { return c.SoundOutput(ctx, v != 0) },
		dispatch.KeyLocationEnabled:    func(ctx context.Context, v int64) error { return c.Location(ctx, v != 0) },
	}
}

// Microphone mutes capture when disabled and unmutes it otherwise.
func (c *Controller) Microphone(ctx context.Context, disabled bool) error {
	c.logger.Info("microphone privacy changed", "disabled", disabled)
	if err := c.mixer.SetCaptureEnabled(ctx, c.cfg.MixerDevice, c.cfg.MixerElement, !disabled); err != nil {
		return fmt.Errorf("set capture %s/%s: %w", c.cfg.MixerDevice, c.cfg.MixerElement, err)
	}
	return nil
}

// Camera stops the camera HAL when disabled and it is running; when
// enabled and stopped it starts the HAL and clears the GStreamer cache.
func (c *Controller) Camera(ctx context.Context, disabled bool) error {
	svc := c.cfg.CameraService
	if disabled {
		state, err := c.props.Get(ctx, "init.svc."+svc, StateStopped)
		if err != nil {
			return err
		}
		if state != StateRunning {
			return nil
		}
		if err := c.props.Set(ctx, "ctl.stop", svc); err != nil {
			return fmt.Errorf("stop %s: %w", svc, err)
		}
		c.logger.Info("camera service stopped", "service", svc)
		return nil
	}

	state, err := c.props.Get(ctx, "init.svc."+svc, StateRunning)
	if err != nil {
		return err
	}
	if state != StateStopped {
		return nil
	}
	if err := c.props.Set(ctx, "ctl.start", svc); err != nil {
		return fmt.Errorf("start %s: %w", svc, err)
	}
	c.logger.Info("camera service started", "service", svc)

	if c.cfg.CacheDir != "" {
		if err := os.RemoveAll(c.cfg.CacheDir); err != nil {
			return fmt.Errorf("clear gstreamer cache: %w", err)
		}
		c.logger.Info("gstreamer cache cleared", "path", c.cfg.CacheDir)
	}
	return nil
}

// Location starts GNSS and restarts geoclue when enabled and GNSS is
// stopped; it stops both when disabled and GNSS is running.
func (c *Controller) Location(ctx context.Context, enabled bool) error {
	svc := c.cfg.GNSSService
	if enabled {
		state, err := c.props.Get(ctx, "init.svc."+svc, StateRunning)
		if err != nil {
			return err
		}
		if state != StateStopped {
			return nil
		}
		if err := c.props.Set(ctx, "ctl.start", svc); err != nil {
			return fmt.Errorf("start %s: %w", svc, err)
		}
		c.logger.Info("gnss service started", "service", svc)
		return c.units.Restart(ctx, c.cfg.GeoclueUnit)
	}

	state, err := c.props.Get(ctx, "init.svc."+svc, StateStopped)
	if err != nil {
		return err
	}
	if state != StateRunning {
		return nil
	}
	if err := c.props.Set(ctx, "ctl.stop", svc); err != nil {
		return fmt.Errorf("stop %s: %w", svc, err)
	}
	c.logger.Info("gnss service stopped", "service", svc)
	return c.units.Stop(ctx, c.cfg.GeoclueUnit)
}

// SoundOutput is watched but has no effect yet.
func (c *Controller) SoundOutput(_ context.Context, disabled bool) error {
	c.logger.Info("sound output privacy changed", "disabled", disabled)
	return nil
}
