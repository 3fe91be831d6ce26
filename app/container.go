package app

import (
	"image"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/soocke/needle-align/assets"
	"github.com/soocke/needle-align/config"
	"github.com/soocke/needle-align/domain/actuator"
	"github.com/soocke/needle-align/domain/align"
	"github.com/soocke/needle-align/domain/capture"
	"github.com/soocke/needle-align/domain/schedule"
	"github.com/soocke/needle-align/domain/vision"
	"github.com/soocke/needle-align/ui/model"
)

// AppContainer assembles the alignment core, its collaborators and the UI models.
// Presenters and views are wired by the app once Tk is running.
type AppContainer struct {
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger

	Model      image.Image
	Locator    vision.Locator
	Source     align.FrameSource
	CaptureSvc capture.Service // nil unless frames come from the screen
	Driver     actuator.Driver
	Serial     *actuator.SerialDriver // nil unless the serial transport is used
	Sim        *actuator.SimDriver    // nil unless the simulated transport is used
	Bank       *actuator.Bank
	Smoother   *vision.Smoother
	Machine    *align.Machine
	Controller *align.Controller
	Scheduler  *schedule.Scheduler

	Attempts *model.AttemptModel
	ROIs     *model.ROIModel
}

// BuildContainer constructs all components. The only side effects are loading
// images and opening the serial port.
func BuildContainer(cfg *config.Config, logger *slog.Logger, cfgPath string) (*AppContainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &AppContainer{Config: cfg, ConfigPath: cfgPath, Logger: logger}
	core := cfg.Clone()

	var err error
	if c.Model, err = loadModel(core.Locator.TemplatePath); err != nil {
		return nil, err
	}
	if c.Locator, err = newLocator(core, c.Model); err != nil {
		return nil, err
	}
	axes := toActuatorAxes(core.Axes)
	if err = c.buildDriver(core, axes); err != nil {
		return nil, err
	}
	c.buildSource(core)

	c.Bank, err = actuator.NewBank(c.Driver, channelOptions(core), axes, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Smoother = vision.NewSmoother(vision.DefaultSmootherOptions())
	c.Machine, err = align.NewMachine(core, c.Locator, c.Source, c.Bank, c.Smoother, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Controller = align.NewController(c.Machine, c.Bank, logger)
	c.Scheduler, err = schedule.New(c.Controller, core.TickInterval(), logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Attempts = model.NewAttemptModel()
	c.ROIs = model.NewROIModel(core.ROI.Rectangle())
	return c, nil
}

func loadModel(path string) (image.Image, error) {
	if path == "" {
		return assets.NeedleModelImage()
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open model template %s", path)
	}
	return img, nil
}

func newLocator(cfg *config.Config, tmpl image.Image) (vision.Locator, error) {
	l := cfg.Locator
	switch l.Method {
	case "template":
		return vision.NewTemplateLocator(tmpl, vision.TemplateOptions{
			MatchScore:  l.MatchScore,
			MinScale:    l.MinScale,
			MaxScale:    l.MaxScale,
			ScaleStep:   l.ScaleStep,
			Stride:      l.Stride,
			Refine:      l.Refine,
			StopOnScore: l.StopOnScore,
		})
	default:
		return vision.NewCentroidLocator(vision.CentroidOptions{
			Threshold: l.Threshold,
			Dark:      l.DarkPattern,
			MinPixels: l.MinPixels,
		}), nil
	}
}

func (c *AppContainer) buildDriver(cfg *config.Config, axes []actuator.Axis) error {
	d := cfg.Driver
	switch d.Kind {
	case "serial":
		drv, err := actuator.OpenSerialDriver(d.Port, actuator.PortOptions{
			BaudRate: d.BaudRate,
			DataBits: d.DataBits,
			StopBits: d.StopBits,
			Parity:   d.Parity,
		}, c.Logger)
		if err != nil {
			return err
		}
		c.Serial, c.Driver = drv, drv
	default:
		c.Sim = actuator.NewSimDriver(time.Duration(d.SimLatencyMs)*time.Millisecond, axes)
		c.Driver = c.Sim
	}
	return nil
}

func (c *AppContainer) buildSource(cfg *config.Config) {
	roi := cfg.ROI.Rectangle()
	switch cfg.Source.Kind {
	case "file":
		c.Source = capture.NewFileSource(cfg.Source.Path)
	case "sim":
		t := cfg.TargetPoint(roi)
		center := vision.Point{X: t.X + cfg.Source.Offset.X, Y: t.Y + cfg.Source.Offset.Y}
		var offsets capture.OffsetProvider
		if c.Sim != nil {
			offsets = c.Sim
		}
		c.Source = capture.NewSimSource(roi.Max.X, roi.Max.Y, c.Model, center, offsets)
	default:
		// the whole screen; the ROI selects the region analysed
		c.CaptureSvc = capture.NewCaptureService(c.Logger, image.Rectangle{}, nil)
		c.Source = c.CaptureSvc
	}
}

func toActuatorAxes(axes []config.Axis) []actuator.Axis {
	out := make([]actuator.Axis, len(axes))
	for i, a := range axes {
		out[i] = actuator.Axis{X: a[0], Y: a[1]}
	}
	return out
}

func channelOptions(cfg *config.Config) []actuator.ChannelOptions {
	opts := make([]actuator.ChannelOptions, cfg.ChannelCount)
	for i := range opts {
		opts[i] = actuator.ChannelOptions{
			Index:        i,
			TravelMin:    cfg.TravelMin,
			TravelMax:    cfg.TravelMax,
			MaxMagnitude: cfg.MaxStepMagnitude,
			AckTimeout:   cfg.AckTimeout(i),
		}
	}
	return opts
}

// Close stops the loop, leaves every channel disabled and releases the port.
func (c *AppContainer) Close() {
	if c == nil {
		return
	}
	if c.Controller != nil {
		c.Controller.Close()
	} else if c.Bank != nil {
		c.Bank.DisableAll()
	}
	if c.CaptureSvc != nil {
		c.CaptureSvc.Stop()
	}
	if c.Serial != nil {
		if err := c.Serial.Close(); err != nil && c.Logger != nil {
			c.Logger.Warn("close serial port", "error", err)
		}
	}
}
